package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpstore/internal/observer"
	"corpstore/internal/protocol"
	"corpstore/internal/server"
	"corpstore/internal/storage"
	"corpstore/internal/storage/jsonfile"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "corpstore", cmd.Use)
	assert.Contains(t, cmd.Long, "CorporateData")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "tables", "client", "observe", "logs"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name, shorthand, def string
	}{
		{"verbose", "v", "false"},
		{"host", "s", "127.0.0.1"},
		{"port", "p", "8080"},
		{"config", "", ""},
	}
	for _, tt := range tests {
		flag := cmd.PersistentFlags().Lookup(tt.name)
		require.NotNil(t, flag, tt.name)
		assert.Equal(t, tt.shorthand, flag.Shorthand, tt.name)
		assert.Equal(t, tt.def, flag.DefValue, tt.name)
	}
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		cmd, flag, shorthand string
	}{
		{"client", "input", "i"},
		{"client", "output", "o"},
		{"observe", "output", "o"},
		{"observe", "retry", "r"},
		{"observe", "uuid", ""},
		{"serve", "storage", ""},
		{"serve", "data-dir", ""},
		{"tables", "listen", ""},
		{"logs", "json", ""},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find([]string{tt.cmd})
		require.NoError(t, err)
		flag := sub.Flags().Lookup(tt.flag)
		require.NotNil(t, flag, "%s --%s", tt.cmd, tt.flag)
		assert.Equal(t, tt.shorthand, flag.Shorthand)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", assert.AnError)))

	err := WrapExitError(ExitCommandError, "cannot start server", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "cannot start server: "+assert.AnError.Error(), err.Error())
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func startServer(t *testing.T) string {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	lis, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	store := storage.NewStore(storage.NewMemoryBackend())
	registry := observer.NewRegistry(observer.Options{Logger: quiet})
	srv := server.New(store, registry, server.Options{Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		registry.Close()
		_ = store.Close()
	})

	_, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	return port
}

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClientCommand(t *testing.T) {
	port := startServer(t)
	dir := t.TempDir()

	set := writeJSON(t, dir, "set.json", `{"UUID":"a1b2c3d4e5f6","ACTION":"SET","id":"UADER-FCyT-IS2","cp":"3260"}`)
	out, err := execute(t, "client", "-i", set, "-p", port)
	require.NoError(t, err)
	assert.Contains(t, out, `"STATUS": "ok"`)

	get := writeJSON(t, dir, "get.json", `{"ACTION":"get","ID":"UADER-FCyT-IS2"}`)
	respPath := filepath.Join(dir, "resp.json")
	out, err = execute(t, "client", "-i", get, "-o", respPath, "--port", port, "--host", "127.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(respPath)
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(data)
	require.NoError(t, err)
	require.True(t, resp.IsOK(), resp.Error)
	var rec storage.Record
	require.NoError(t, resp.DecodeResult(&rec))
	assert.Equal(t, "3260", rec.Fields["cp"])
}

func TestClientCommand_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "client", "-i", filepath.Join(dir, "missing.json"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := writeJSON(t, dir, "bad.json", `{"ACTION":"drop"}`)
	_, err = execute(t, "client", "-i", bad)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid request")

	// Nothing listens on a port we just released.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(lis.Addr().(*net.TCPAddr).Port)
	require.NoError(t, lis.Close())

	list := writeJSON(t, dir, "list.json", `{"ACTION":"list"}`)
	_, err = execute(t, "client", "-i", list, "-p", port)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "connection failed")
}

func TestServeCommand_PortTaken(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	port := strconv.Itoa(lis.Addr().(*net.TCPAddr).Port)

	_, err = execute(t, "serve", "--storage", "memory", "-p", port)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	var bindErr *server.BindError
	assert.ErrorAs(t, err, &bindErr)
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--storage", "dynamo")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown storage mode")
}

func TestTablesCommand_RejectsRemote(t *testing.T) {
	_, err := execute(t, "tables", "--storage", "remote")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFlagLayering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeJSON(t, dir, "corpstore.yaml", "storage:\n  mode: memory\n")

	// Storage comes from the file.
	out, err := execute(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Equal(t, "CorporateLog is empty\n", out)

	// An explicit flag beats the file.
	_, err = execute(t, "--config", cfgPath, "logs", "--storage", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage mode")

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "logs")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogsCommand(t *testing.T) {
	dir := t.TempDir()
	backend, err := jsonfile.Open(dir)
	require.NoError(t, err)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, backend.AppendLog(context.Background(), storage.LogEntry{
		UUID: "a1b2c3d4e5f6", SessionID: "s-1", Action: "set", Timestamp: ts, ID: "A",
	}))
	require.NoError(t, backend.AppendLog(context.Background(), storage.LogEntry{
		UUID: "a1b2c3d4e5f6", SessionID: "s-1", Action: "list", Timestamp: ts.Add(time.Second),
	}))
	require.NoError(t, backend.Close())

	out, err := execute(t, "logs", "--storage", "file", "--data-dir", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ACTION")
	assert.Contains(t, lines[1], "set")
	assert.Contains(t, lines[1], "2025-03-01T12:00:00Z")
	assert.Contains(t, lines[2], "list")

	out, err = execute(t, "logs", "--storage", "file", "--data-dir", dir, "--json")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var e storage.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, "A", e.ID)
	assert.Equal(t, "s-1", e.SessionID)
}

func TestLogsCommand_Empty(t *testing.T) {
	out, err := execute(t, "logs", "--storage", "memory")
	require.NoError(t, err)
	assert.Equal(t, "CorporateLog is empty\n", out)
}

func TestNotificationPrinter(t *testing.T) {
	var out, sink bytes.Buffer
	p := newNotificationPrinter(&out, &sink)

	n := protocol.NewNotification(storage.NewRecord("A", map[string]string{"x": "1"}))
	raw, err := protocol.Encode(n)
	require.NoError(t, err)
	require.NoError(t, p.print(n, raw))

	assert.Equal(t, "notify A "+string(raw)+"\n", out.String())
	assert.Equal(t, string(raw)+"\n", sink.String())
}

func TestObserveCommand_InvalidUUID(t *testing.T) {
	_, err := execute(t, "observe", "--uuid", "nothex")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
