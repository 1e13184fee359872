package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"corpstore/internal/storage"
)

// Action names a request operation.
type Action string

const (
	ActionGet       Action = "get"
	ActionSet       Action = "set"
	ActionList      Action = "list"
	ActionSubscribe Action = "subscribe"
)

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	switch a {
	case ActionGet, ActionSet, ActionList, ActionSubscribe:
		return true
	default:
		return false
	}
}

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// EventNotify is the EVENT value of every pushed notification.
const EventNotify = "notify"

// nodeIDPattern matches the 12-hex node identifier older clients derive
// from their MAC address.
var nodeIDPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

// ValidUUID reports whether s is a UUID in any textual form accepted by
// uuid.Parse, or a 12-hex node identifier.
func ValidUUID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	return nodeIDPattern.MatchString(strings.ToLower(s))
}

// ValidationError reports a request that cannot be dispatched.
type ValidationError struct {
	Field   string // offending member, empty for whole-message problems
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Request is a validated request.
type Request struct {
	UUID   string
	Action Action
	// ID is the record key for get and set.
	ID string
	// Record carries the fields to upsert for set, keyed by ID.
	Record storage.Record
}

// Decode parses and validates payload. On failure the returned Request
// still carries the UUID when one could be read, so the error response
// can echo it; the error is always a *ValidationError.
func Decode(payload []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return Request{}, invalid("", "malformed json")
	}

	var req Request
	rawUUID, uuidOK := stringMember(raw, "UUID")
	req.UUID = strings.TrimSpace(rawUUID)
	if !uuidOK || req.UUID == "" {
		return req, invalid("UUID", "missing 'UUID'")
	}
	if !ValidUUID(req.UUID) {
		return req, invalid("UUID", "invalid 'UUID' %q: expected a UUID or 12 hex digits", req.UUID)
	}

	rawAction, ok := stringMember(raw, "ACTION")
	action := Action(strings.ToLower(strings.TrimSpace(rawAction)))
	if !ok || action == "" {
		return req, invalid("ACTION", "missing 'ACTION'")
	}
	if !action.Valid() {
		return req, invalid("ACTION", "unknown ACTION %q: must be one of get, set, list, subscribe", rawAction)
	}
	req.Action = action

	switch action {
	case ActionGet:
		id, _ := stringMember(raw, "ID")
		req.ID = strings.TrimSpace(id)
		if req.ID == "" {
			return req, invalid("ID", "missing 'ID' for ACTION 'get'")
		}
	case ActionSet:
		if err := decodeSet(raw, &req); err != nil {
			return req, err
		}
	}
	return req, nil
}

func decodeSet(raw map[string]json.RawMessage, req *Request) error {
	data, ok := raw["DATA"]
	if !ok || string(data) == "null" {
		return invalid("DATA", "missing 'DATA' for ACTION 'set'")
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return invalid("DATA", "'DATA' must be an object")
	}
	if len(members) == 0 {
		return invalid("DATA", "'DATA' must not be empty")
	}

	fields, dataID, err := storage.FieldsFromRaw(members)
	if err != nil {
		return invalid("DATA", "invalid 'DATA': %v", err)
	}

	topID, _ := stringMember(raw, "ID")
	topID = strings.TrimSpace(topID)
	switch {
	case topID != "" && dataID != "" && topID != dataID:
		return invalid("ID", "'ID' %q does not match 'DATA.id' %q", topID, dataID)
	case topID != "":
		req.ID = topID
	case dataID != "":
		req.ID = dataID
	default:
		return invalid("ID", "missing 'ID' for ACTION 'set'")
	}

	req.Record = storage.Record{ID: req.ID, Fields: fields}
	return nil
}

// stringMember returns raw[key] decoded as a string. ok is false when the
// member is absent or not a JSON string.
func stringMember(raw map[string]json.RawMessage, key string) (string, bool) {
	v, exists := raw[key]
	if !exists {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}
