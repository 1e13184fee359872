package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Table names, as exposed to operators and in errors.
const (
	TableRecords = "CorporateData"
	TableLog     = "CorporateLog"
)

// Record is one row of the record table. On the wire it is a flat JSON
// object with the id under "id" next to the fields.
type Record struct {
	ID     string
	Fields map[string]string
}

// NewRecord creates a record with a copy of fields.
func NewRecord(id string, fields map[string]string) Record {
	r := Record{ID: id, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		r.Fields[k] = v
	}
	return r
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	return NewRecord(r.ID, r.Fields)
}

// Merge returns a copy of r with every field of update applied on top.
// Fields of r that update does not name are kept.
func (r Record) Merge(update Record) Record {
	merged := r.Clone()
	if update.ID != "" {
		merged.ID = update.ID
	}
	for k, v := range update.Fields {
		merged.Fields[k] = v
	}
	return merged
}

// Equal reports whether both records have the same id and fields.
func (r Record) Equal(other Record) bool {
	if r.ID != other.ID || len(r.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range r.Fields {
		if ov, ok := other.Fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a flat object. Keys come out sorted.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["id"] = r.ID
	return json.Marshal(flat)
}

// UnmarshalJSON decodes a flat object. "id" (or "ID") becomes the record
// id; string values are kept as is and any other JSON value is stored as
// its compact JSON text.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record must be a JSON object")
	}
	fields, id, err := FieldsFromRaw(raw)
	if err != nil {
		return err
	}
	r.ID = id
	r.Fields = fields
	return nil
}

// FieldsFromRaw converts decoded JSON members into record fields. The
// returned id is taken from "id", falling back to "ID"; neither key is
// kept as a field.
func FieldsFromRaw(raw map[string]json.RawMessage) (map[string]string, string, error) {
	fields := make(map[string]string, len(raw))
	var id, upperID string
	for k, v := range raw {
		s, err := fieldValue(v)
		if err != nil {
			return nil, "", fmt.Errorf("field %q: %w", k, err)
		}
		switch k {
		case "id":
			id = strings.TrimSpace(s)
		case "ID":
			upperID = strings.TrimSpace(s)
		default:
			fields[k] = s
		}
	}
	if id == "" {
		id = upperID
	}
	return fields, id, nil
}

func fieldValue(v json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return "", err
	}
	return compact.String(), nil
}

// SortRecords orders records by id.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
}

// LogEntry is one row of the action log.
type LogEntry struct {
	UUID      string    `json:"UUID"`
	SessionID string    `json:"session"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"ts"`
	ID        string    `json:"id,omitempty"` // requested or written record id, for get/set
}
