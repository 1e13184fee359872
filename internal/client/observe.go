package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"corpstore/internal/protocol"
)

// DefaultRetry is the pause between subscription attempts.
const DefaultRetry = 30 * time.Second

// ObserveOptions configures Observe.
type ObserveOptions struct {
	Addr   string
	UUID   string
	Retry  time.Duration // DefaultRetry when <= 0
	Logger *slog.Logger
	// OnSubscribed, when set, is called after every successful subscribe.
	OnSubscribed func(protocol.SubscribeAck)
}

// Handler receives every notification with its raw frame. Returning an
// error stops Observe with that error.
type Handler func(n protocol.Notification, raw []byte) error

// Observe subscribes to the server and hands notifications to handle until
// ctx is cancelled. A lost or refused connection is retried after
// opts.Retry. It returns nil once ctx is done.
func Observe(ctx context.Context, opts ObserveOptions, handle Handler) error {
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("addr", opts.Addr)

	for {
		err := observeOnce(ctx, opts, log, handle)
		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			log.Warn("connection closed by server")
		} else {
			log.Error("subscription lost", "error", err)
		}
		log.Info("retrying", "in", opts.Retry)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.Retry):
		}
	}
}

type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }

func observeOnce(ctx context.Context, opts ObserveOptions, log *slog.Logger, handle Handler) error {
	c, err := Dial(ctx, opts.Addr)
	if err != nil {
		return err
	}
	defer c.Close()

	subCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	ack, err := c.Subscribe(subCtx, opts.UUID)
	cancel()
	if err != nil {
		return err
	}
	log.Info("subscribed", "session", ack.Session)
	if opts.OnSubscribed != nil {
		opts.OnSubscribed(ack)
	}

	for {
		n, raw, err := c.Next(ctx)
		if err != nil {
			if raw != nil {
				// Readable frame that is not a notification.
				log.Warn("unexpected frame", "error", err)
				continue
			}
			return err
		}
		if err := handle(n, raw); err != nil {
			return &handlerError{err: err}
		}
	}
}
