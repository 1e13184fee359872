package client

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"corpstore/internal/protocol"
)

// control members never folded into DATA.
var controlKeys = map[string]bool{"UUID": true, "ACTION": true, "ID": true, "DATA": true}

// DefaultUUID returns the 12-hex node identifier of this host.
func DefaultUUID() string {
	return hex.EncodeToString(uuid.NodeID())
}

// LoadRequest reads a request object from a JSON file. Numbers are kept
// as written.
func LoadRequest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse request %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse request %s: not a JSON object", path)
	}
	return raw, nil
}

// Normalize turns a hand-written request into one the server accepts:
//   - a missing UUID becomes DefaultUUID; the UUID is lower-cased
//   - ACTION is trimmed and lower-cased and must be get, set or list
//   - for set without a DATA object, every non-control member becomes DATA
//   - for set without ID, DATA.id (or DATA.ID) is lifted into ID
//   - list drops any ID
//
// raw is not modified.
func Normalize(raw map[string]any) (map[string]any, error) {
	req := make(map[string]any, len(raw))
	for k, v := range raw {
		req[k] = v
	}

	u := strings.ToLower(strings.TrimSpace(stringOf(req["UUID"])))
	if u == "" {
		u = DefaultUUID()
	}
	if !protocol.ValidUUID(u) {
		return nil, fmt.Errorf("invalid UUID %q: expected 12 hex digits or a UUID", u)
	}
	req["UUID"] = u

	action := protocol.Action(strings.ToLower(strings.TrimSpace(stringOf(req["ACTION"]))))
	switch action {
	case protocol.ActionGet, protocol.ActionSet, protocol.ActionList:
	default:
		return nil, fmt.Errorf("ACTION must be one of get, list, set; got %q", stringOf(req["ACTION"]))
	}
	req["ACTION"] = string(action)

	if v, ok := req["ID"]; ok {
		id := strings.TrimSpace(stringOf(v))
		if id == "" {
			delete(req, "ID")
		} else {
			req["ID"] = id
		}
	}

	switch action {
	case protocol.ActionSet:
		data, ok := req["DATA"].(map[string]any)
		if !ok {
			data = make(map[string]any)
			for k, v := range req {
				if !controlKeys[k] {
					data[k] = v
					delete(req, k)
				}
			}
			req["DATA"] = data
		}
		if _, ok := req["ID"]; !ok {
			alt := strings.TrimSpace(stringOf(data["id"]))
			if alt == "" {
				alt = strings.TrimSpace(stringOf(data["ID"]))
			}
			if alt == "" {
				return nil, fmt.Errorf("missing 'ID' for ACTION 'set'")
			}
			req["ID"] = alt
		}
	case protocol.ActionGet:
		if _, ok := req["ID"]; !ok {
			return nil, fmt.Errorf("missing 'ID' for ACTION 'get'")
		}
	case protocol.ActionList:
		delete(req, "ID")
	}

	return req, nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
