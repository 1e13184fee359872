package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"corpstore/internal/frame"
	"corpstore/internal/protocol"
)

// DefaultTimeout bounds dialing.
const DefaultTimeout = 10 * time.Second

// Client is one persistent connection to a corpstore server.
type Client struct {
	conn     net.Conn
	maxFrame int
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	d := net.Dialer{Timeout: DefaultTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn, maxFrame: frame.DefaultMaxSize}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request and waits for its response. req is any value that
// encodes to a request object.
func (c *Client) Do(ctx context.Context, req any) (protocol.Response, error) {
	payload, err := protocol.Encode(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode request: %w", err)
	}

	stop := c.bind(ctx)
	defer stop()

	if err := frame.Write(c.conn, payload); err != nil {
		return protocol.Response{}, c.ctxErr(ctx, err)
	}
	body, err := frame.Read(c.conn, c.maxFrame)
	if err != nil {
		return protocol.Response{}, c.ctxErr(ctx, err)
	}
	return protocol.DecodeResponse(body)
}

// Subscribe turns the connection into a subscription and returns the
// acknowledgement. Only Next may be used afterwards.
func (c *Client) Subscribe(ctx context.Context, requestUUID string) (protocol.SubscribeAck, error) {
	resp, err := c.Do(ctx, map[string]string{"UUID": requestUUID, "ACTION": string(protocol.ActionSubscribe)})
	if err != nil {
		return protocol.SubscribeAck{}, err
	}
	if !resp.IsOK() {
		return protocol.SubscribeAck{}, fmt.Errorf("subscribe rejected: %s", resp.Error)
	}
	var ack protocol.SubscribeAck
	if err := resp.DecodeResult(&ack); err != nil {
		return protocol.SubscribeAck{}, fmt.Errorf("decode subscribe ack: %w", err)
	}
	return ack, nil
}

// Next blocks until the next notification arrives and returns it with its
// raw frame.
func (c *Client) Next(ctx context.Context) (protocol.Notification, []byte, error) {
	stop := c.bind(ctx)
	defer stop()

	body, err := frame.Read(c.conn, c.maxFrame)
	if err != nil {
		return protocol.Notification{}, nil, c.ctxErr(ctx, err)
	}
	n, err := protocol.DecodeNotification(body)
	if err != nil {
		return protocol.Notification{}, body, err
	}
	return n, body, nil
}

// bind applies the ctx deadline to the connection and interrupts blocked
// I/O when ctx is cancelled.
func (c *Client) bind(ctx context.Context) func() {
	deadline, _ := ctx.Deadline() // zero clears any earlier deadline
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The conn deadline can fire a moment before the context notices.
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}
