package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpstore/internal/observer"
	"corpstore/internal/protocol"
	"corpstore/internal/server"
	"corpstore/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs an in-memory server and returns its address and a
// function that stops it.
func startServer(t *testing.T) (string, func()) {
	t.Helper()

	lis, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	store := storage.NewStore(storage.NewMemoryBackend())
	registry := observer.NewRegistry(observer.Options{Logger: quietLogger()})
	srv := server.New(store, registry, server.Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			registry.Close()
			_ = store.Close()
		})
	}
	t.Cleanup(stop)
	return lis.Addr().String(), stop
}

func TestClient_Do(t *testing.T) {
	addr, _ := startServer(t)
	ctx := context.Background()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	req, err := Normalize(map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "id": "A", "cp": "3260"})
	require.NoError(t, err)
	resp, err := c.Do(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.IsOK(), resp.Error)

	resp, err = c.Do(ctx, map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "get", "ID": "A"})
	require.NoError(t, err)
	var rec storage.Record
	require.NoError(t, resp.DecodeResult(&rec))
	assert.Equal(t, "3260", rec.Fields["cp"])
}

func TestClient_DoHonoursContext(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	// A subscribed connection never answers further requests, so Do blocks
	// until the deadline.
	_, err = c.Subscribe(context.Background(), "a1b2c3d4e5f6")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "list"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_Refused(t *testing.T) {
	addr, stop := startServer(t)
	stop()

	_, err := Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestObserve_ReceivesNotifications(t *testing.T) {
	addr, _ := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(chan protocol.SubscribeAck, 1)
	got := make(chan protocol.Notification, 4)
	done := make(chan error, 1)
	go func() {
		done <- Observe(ctx, ObserveOptions{
			Addr:         addr,
			UUID:         "a1b2c3d4e5f6",
			Retry:        50 * time.Millisecond,
			Logger:       quietLogger(),
			OnSubscribed: func(ack protocol.SubscribeAck) { subscribed <- ack },
		}, func(n protocol.Notification, raw []byte) error {
			assert.NotEmpty(t, raw)
			got <- n
			return nil
		})
	}()

	select {
	case ack := <-subscribed:
		assert.NotEmpty(t, ack.Session)
	case <-time.After(2 * time.Second):
		t.Fatal("not subscribed")
	}

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()
	resp, err := c.Do(context.Background(), map[string]any{
		"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "A", "DATA": map[string]any{"x": "1"},
	})
	require.NoError(t, err)
	require.True(t, resp.IsOK(), resp.Error)

	select {
	case n := <-got:
		assert.Equal(t, "A", n.Record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("observe did not stop")
	}
}

func TestObserve_RetriesUntilServerAppears(t *testing.T) {
	addr, stop := startServer(t)
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Observe(ctx, ObserveOptions{Addr: addr, UUID: "a1b2c3d4e5f6", Retry: 20 * time.Millisecond, Logger: quietLogger()},
		func(protocol.Notification, []byte) error { return nil })
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestObserve_HandlerErrorStops(t *testing.T) {
	addr, _ := startServer(t)
	stopErr := errors.New("enough")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subscribed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Observe(ctx, ObserveOptions{
			Addr: addr, UUID: "a1b2c3d4e5f6", Logger: quietLogger(),
			OnSubscribed: func(protocol.SubscribeAck) { subscribed <- struct{}{} },
		}, func(protocol.Notification, []byte) error { return stopErr })
	}()
	<-subscribed

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Do(ctx, map[string]any{"UUID": "a1b2c3d4e5f6", "ACTION": "set", "ID": "A", "DATA": map[string]any{"x": "1"}})
	require.NoError(t, err)

	assert.ErrorIs(t, <-done, stopErr)
}
