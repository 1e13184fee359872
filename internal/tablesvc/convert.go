package tablesvc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"corpstore/internal/storage"
)

// Struct keys. Record fields travel nested under "fields" so a field can
// never collide with the id.
const (
	keyID      = "id"
	keyFields  = "fields"
	keyUUID    = "uuid"
	keySession = "session"
	keyAction  = "action"
	keyTS      = "ts"
)

func recordToStruct(rec storage.Record) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyID:     structpb.NewStringValue(rec.ID),
		keyFields: structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}
}

func structToRecord(s *structpb.Struct) (storage.Record, error) {
	id, err := stringField(s, keyID)
	if err != nil {
		return storage.Record{}, err
	}
	if id == "" {
		return storage.Record{}, fmt.Errorf("record id is empty")
	}

	rec := storage.Record{ID: id, Fields: map[string]string{}}
	v, ok := s.GetFields()[keyFields]
	if !ok {
		return rec, nil
	}
	inner := v.GetStructValue()
	if inner == nil {
		return storage.Record{}, fmt.Errorf("record %q: %s is not an object", id, keyFields)
	}
	for k, fv := range inner.GetFields() {
		sv, ok := fv.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return storage.Record{}, fmt.Errorf("record %q: field %q is not a string", id, k)
		}
		rec.Fields[k] = sv.StringValue
	}
	return rec, nil
}

func logEntryToStruct(e storage.LogEntry) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyUUID:    structpb.NewStringValue(e.UUID),
		keySession: structpb.NewStringValue(e.SessionID),
		keyAction:  structpb.NewStringValue(e.Action),
		keyTS:      structpb.NewStringValue(e.Timestamp.UTC().Format(time.RFC3339Nano)),
		keyID:      structpb.NewStringValue(e.ID),
	}}
}

func structToLogEntry(s *structpb.Struct) (storage.LogEntry, error) {
	var (
		e   storage.LogEntry
		err error
	)
	if e.UUID, err = stringField(s, keyUUID); err != nil {
		return e, err
	}
	if e.SessionID, err = stringField(s, keySession); err != nil {
		return e, err
	}
	if e.Action, err = stringField(s, keyAction); err != nil {
		return e, err
	}
	if e.ID, err = stringField(s, keyID); err != nil {
		return e, err
	}
	ts, err := stringField(s, keyTS)
	if err != nil {
		return e, err
	}
	if ts != "" {
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return e, fmt.Errorf("log entry ts: %w", err)
		}
	}
	return e, nil
}

// stringField returns s[key] as a string; a missing key is "".
func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%s is not a string", key)
	}
	return sv.StringValue, nil
}

func listOf(items []*structpb.Struct) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(items))
	for _, s := range items {
		values = append(values, structpb.NewStructValue(s))
	}
	return &structpb.ListValue{Values: values}
}

func structsOf(l *structpb.ListValue) ([]*structpb.Struct, error) {
	out := make([]*structpb.Struct, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("list item %d is not an object", i)
		}
		out = append(out, s)
	}
	return out, nil
}
