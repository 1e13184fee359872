package protocol

import (
	"encoding/json"
	"fmt"

	"corpstore/internal/storage"
)

// Response is the envelope returned for every request.
type Response struct {
	UUID   string          `json:"UUID"`
	Status string          `json:"STATUS"`
	Result json.RawMessage `json:"RESULT,omitempty"`
	Error  string          `json:"ERROR,omitempty"`
}

// OK builds a successful response. A nil result encodes as RESULT:null.
func OK(uuid string, result any) (Response, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}
	return Response{UUID: uuid, Status: StatusOK, Result: body}, nil
}

// Fail builds an error response.
func Fail(uuid string, message string) Response {
	return Response{UUID: uuid, Status: StatusError, Error: message}
}

// IsOK reports whether the response carries STATUS "ok".
func (r Response) IsOK() bool {
	return r.Status == StatusOK
}

// DecodeResult unmarshals RESULT into v.
func (r Response) DecodeResult(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("response has no RESULT")
	}
	return json.Unmarshal(r.Result, v)
}

// SubscribeAck is the RESULT of a successful subscribe.
type SubscribeAck struct {
	Action  Action `json:"ACTION"`
	Session string `json:"SESSION"`
}

// Notification is pushed to subscribers after every set.
type Notification struct {
	Event  string         `json:"EVENT"`
	Record storage.Record `json:"RECORD"`
}

// NewNotification builds the notification for an updated record.
func NewNotification(rec storage.Record) Notification {
	return Notification{Event: EventNotify, Record: rec}
}

// Encode marshals any protocol message.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeResponse parses a response frame.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != StatusOK && resp.Status != StatusError {
		return Response{}, fmt.Errorf("decode response: unknown STATUS %q", resp.Status)
	}
	return resp, nil
}

// DecodeNotification parses a notification frame.
func DecodeNotification(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Event != EventNotify {
		return Notification{}, fmt.Errorf("decode notification: unexpected EVENT %q", n.Event)
	}
	return n, nil
}
