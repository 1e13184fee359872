package server

import (
	"fmt"
	"net"
)

// BindError reports that the listen address could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Listen binds a TCP listener on addr. A taken port fails immediately with
// a *BindError wrapping the syscall error.
func Listen(addr string) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return lis, nil
}
