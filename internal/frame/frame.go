package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 4
	// DefaultMaxSize is the largest payload Read accepts when no limit is given.
	DefaultMaxSize = 16 << 20
)

// Error reports a malformed or truncated frame. It is fatal to the
// connection it was read from.
type Error struct {
	Op     string // "read header", "read body", "write"
	Length uint32 // declared length, when known
	Err    error
}

func (e *Error) Error() string {
	if e.Length > 0 {
		return fmt.Sprintf("frame %s (length=%d): %v", e.Op, e.Length, e.Err)
	}
	return fmt.Sprintf("frame %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrTooLarge is wrapped by Error when a declared length exceeds the limit.
var ErrTooLarge = errors.New("frame exceeds maximum size")

// Write sends payload as a single frame. Header and body go out in one
// Write call so concurrent writers on distinct frames never interleave
// below the frame boundary.
func Write(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return &Error{Op: "write", Err: ErrTooLarge}
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	for off := 0; off < len(buf); {
		n, err := w.Write(buf[off:])
		if err != nil {
			return &Error{Op: "write", Length: uint32(len(payload)), Err: err}
		}
		if n == 0 {
			return &Error{Op: "write", Length: uint32(len(payload)), Err: io.ErrShortWrite}
		}
		off += n
	}
	return nil
}

// Read blocks until one complete frame has been read and returns its
// payload. A connection closed before any header byte yields io.EOF;
// anything else short of a full frame yields *Error.
// maxSize <= 0 selects DefaultMaxSize.
func Read(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	var header [HeaderSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &Error{Op: "read header", Err: fmt.Errorf("got %d of %d bytes: %w", n, HeaderSize, err)}
		}
		return nil, &Error{Op: "read header", Err: err}
	}

	length := binary.BigEndian.Uint32(header[:])
	if uint64(length) > uint64(maxSize) {
		return nil, &Error{Op: "read header", Length: length, Err: ErrTooLarge}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &Error{Op: "read body", Length: length, Err: err}
	}
	return payload, nil
}
