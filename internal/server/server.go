package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"corpstore/internal/frame"
	"corpstore/internal/observer"
	"corpstore/internal/protocol"
	"corpstore/internal/storage"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Options configures a Server.
type Options struct {
	MaxFrameSize int // frame.DefaultMaxSize when <= 0
	Logger       *slog.Logger
}

// Server accepts client connections and serves requests on them.
type Server struct {
	dispatcher *Dispatcher
	registry   *observer.Registry
	maxFrame   int
	log        *slog.Logger
	newSession func() string

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// New creates a server over the store and the subscriber registry.
func New(store *storage.Store, registry *observer.Registry, opts Options) *Server {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = frame.DefaultMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		dispatcher: NewDispatcher(store, registry, opts.Logger),
		registry:   registry,
		maxFrame:   opts.MaxFrameSize,
		log:        opts.Logger,
		newSession: uuid.NewString,
		conns:      make(map[*conn]struct{}),
	}
}

// Serve accepts connections on lis until ctx is cancelled, then closes the
// listener and every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = lis.Close() })
	defer stop()

	err := s.acceptLoop(ctx, lis)
	_ = lis.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.nc.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.log.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener) error {
	var backoff time.Duration
	for {
		nc, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				// Resource exhaustion (EMFILE and friends) shows up here;
				// back off and keep accepting.
				s.log.Warn("accept failed", "error", err)
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		c := s.track(nc)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.serve(ctx)
		}()
	}
}

func (s *Server) track(nc net.Conn) *conn {
	c := &conn{
		srv:     s,
		nc:      nc,
		session: s.newSession(),
	}
	c.log = s.log.With("session", c.session, "remote", nc.RemoteAddr().String())

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)
	return c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// ConnStates returns the state of every open connection keyed by session.
func (s *Server) ConnStates() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.conns))
	for c := range s.conns {
		out[c.session] = c.State()
	}
	return out
}

// conn is one accepted client connection.
type conn struct {
	srv     *Server
	nc      net.Conn
	session string
	log     *slog.Logger
	state   atomic.Int32
}

func (c *conn) State() State {
	return State(c.state.Load())
}

func (c *conn) setState(st State) {
	c.state.Store(int32(st))
}

func (c *conn) serve(ctx context.Context) {
	c.log.Info("client connected")
	defer c.close()

	for {
		payload, err := frame.Read(c.nc, c.srv.maxFrame)
		if err != nil {
			c.logReadError(err)
			return
		}

		if c.State() == StateSubscribed {
			c.log.Debug("dropping frame from subscriber", "bytes", len(payload))
			continue
		}

		res := c.srv.dispatcher.Handle(ctx, c.session, payload)
		body, err := protocol.Encode(res.Response)
		if err != nil {
			c.log.Error("encode response failed", "error", err)
			return
		}

		if res.Subscribe {
			if !c.srv.registry.Register(c.nc, c.session, body) {
				return
			}
			c.setState(StateSubscribed)
			c.log.Info("client subscribed")
			continue
		}

		if err := frame.Write(c.nc, body); err != nil {
			c.log.Warn("write response failed", "error", err)
			return
		}
	}
}

func (c *conn) logReadError(err error) {
	var ferr *frame.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug("connection closed", "error", err)
	case errors.As(err, &ferr):
		c.log.Warn("framing error, closing connection", "error", err)
	default:
		c.log.Warn("read failed", "error", fmt.Errorf("read frame: %w", err))
	}
}

func (c *conn) close() {
	if c.State() == StateSubscribed {
		c.srv.registry.Unregister(c.nc)
	}
	_ = c.nc.Close()
	c.setState(StateClosed)
	c.log.Info("client disconnected")
}
