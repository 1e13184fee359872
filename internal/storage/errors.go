package storage

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by a Store or Backend used after Close.
var ErrClosed = errors.New("storage closed")

// Error reports a failed backend operation on one table.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}
