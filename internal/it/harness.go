package it

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"corpstore/internal/client"
	"corpstore/internal/config"
	"corpstore/internal/server"
	"corpstore/internal/tablesvc"
)

// Harness runs corpstore servers and table services in-process, each
// logging to its own file.
type Harness struct {
	logDir string

	mu      sync.Mutex
	servers []*Server
}

// Server is one running process-equivalent: a record server or a table
// service.
type Server struct {
	Name string
	Addr string

	cancel  context.CancelFunc
	done    chan error
	logFile *os.File
}

// NewHarness creates a harness writing logs under logDir.
func NewHarness(logDir string) (*Harness, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Harness{logDir: logDir}, nil
}

func (h *Harness) logger(name string) (*slog.Logger, *os.File, error) {
	f, err := os.Create(filepath.Join(h.logDir, name+".log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f, nil
}

// StartServer runs a record server with cfg on a free loopback port and
// waits until it accepts connections.
func (h *Harness) StartServer(ctx context.Context, name string, cfg config.Config) (*Server, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	cfg.Host, cfg.Port = "127.0.0.1", port

	log, logFile, err := h.logger(name)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{Name: name, Addr: cfg.Addr(), cancel: cancel, done: make(chan error, 1), logFile: logFile}
	go func() { s.done <- server.Run(runCtx, cfg, log) }()

	if err := waitForReady(ctx, s, 10*time.Second); err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("server %s failed to become ready: %w", name, err)
	}
	h.track(s)
	return s, nil
}

// StartTables runs a table service over the backend described by cfg.
func (h *Harness) StartTables(ctx context.Context, name string, cfg config.Storage) (*Server, error) {
	lis, err := server.Listen("127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	backend, err := server.OpenBackend(ctx, cfg)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	log, logFile, err := h.logger(name)
	if err != nil {
		_ = lis.Close()
		_ = backend.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{Name: name, Addr: lis.Addr().String(), cancel: cancel, done: make(chan error, 1), logFile: logFile}
	go func() {
		err := tablesvc.Serve(runCtx, lis, backend, log)
		s.done <- errors.Join(err, backend.Close())
	}()
	h.track(s)
	return s, nil
}

func (h *Harness) track(s *Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.servers = append(h.servers, s)
}

// Stop stops every server, most recent first.
func (h *Harness) Stop() {
	h.mu.Lock()
	servers := h.servers
	h.servers = nil
	h.mu.Unlock()

	for i := len(servers) - 1; i >= 0; i-- {
		_ = servers[i].Stop()
	}
}

// Stop cancels the server and waits for it to exit. It is safe to call
// more than once.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	select {
	case err = <-s.done:
		s.done <- err
	case <-time.After(10 * time.Second):
		err = fmt.Errorf("server %s did not stop", s.Name)
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return err
}

// Client dials the server.
func (s *Server) Client(ctx context.Context) (*client.Client, error) {
	return client.Dial(ctx, s.Addr)
}

// waitForReady polls until the server answers a list request.
func waitForReady(ctx context.Context, s *Server, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.done:
			s.done <- err
			return fmt.Errorf("server exited: %w", err)
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for server %s to be ready", s.Name)
			}

			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			err := ping(pingCtx, s.Addr)
			cancel()
			if err == nil {
				return nil
			}
		}
	}
}

func ping(ctx context.Context, addr string) error {
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Close()
	resp, err := c.Do(ctx, map[string]string{"UUID": client.DefaultUUID(), "ACTION": "list"})
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return errors.New(resp.Error)
	}
	return nil
}

// freePort reserves and releases a loopback port.
func freePort() (int, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port, nil
}
