package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

// trickleWriter accepts at most one byte per Write call.
type trickleWriter struct {
	buf bytes.Buffer
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return w.buf.Write(p[:1])
}

func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"UUID":"a1b2c3d4e5f6","ACTION":"list"}`)

	if err := Write(&buf, payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.Len() != HeaderSize+len(payload) {
		t.Fatalf("Expected %d bytes on the wire, got %d", HeaderSize+len(payload), buf.Len())
	}
	if got := buf.Bytes()[:HeaderSize]; !bytes.Equal(got, []byte{0, 0, 0, byte(len(payload))}) {
		t.Errorf("Unexpected header %v", got)
	}

	got, err := Read(&buf, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}
}

func TestWrite_PartialWrites(t *testing.T) {
	w := &trickleWriter{}
	payload := []byte("hello")
	if err := Write(w, payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(&w.buf, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected 'hello', got '%s'", got)
	}
}

func TestRead_PartialReads(t *testing.T) {
	var buf bytes.Buffer
	_ = Write(&buf, []byte("first"))
	_ = Write(&buf, []byte("second"))

	r := iotest.OneByteReader(&buf)
	for _, want := range []string{"first", "second"} {
		got, err := Read(r, 0)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if string(got) != want {
			t.Errorf("Expected '%s', got '%s'", want, got)
		}
	}

	if _, err := Read(r, 0); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after last frame, got %v", err)
	}
}

func TestRead_EmptyPayload(t *testing.T) {
	got, err := Read(bytes.NewReader([]byte{0, 0, 0, 0}), 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(got))
	}
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		max     int
		wantErr error
	}{
		{
			name:    "half header",
			input:   []byte{0, 0},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "truncated body",
			input:   []byte{0, 0, 0, 10, 'a', 'b'},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "header only",
			input:   []byte{0, 0, 0, 3},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "max uint32 length",
			input:   []byte{0xFF, 0xFF, 0xFF, 0xFF},
			wantErr: ErrTooLarge,
		},
		{
			name:    "above explicit limit",
			input:   []byte{0, 0, 0, 9, '1', '2', '3', '4', '5', '6', '7', '8', '9'},
			max:     8,
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.input), tt.max)
			var ferr *Error
			if !errors.As(err, &ferr) {
				t.Fatalf("Expected *frame.Error, got %T (%v)", err, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error wrapping %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRead_CleanEOF(t *testing.T) {
	_, err := Read(bytes.NewReader(nil), 0)
	if err != io.EOF {
		t.Errorf("Expected bare io.EOF, got %v", err)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWrite_PropagatesWriterError(t *testing.T) {
	boom := errors.New("connection reset")
	err := Write(failingWriter{err: boom}, []byte("x"))

	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("Expected *frame.Error, got %T", err)
	}
	if ferr.Op != "write" {
		t.Errorf("Expected op 'write', got '%s'", ferr.Op)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped writer error, got %v", err)
	}
}
