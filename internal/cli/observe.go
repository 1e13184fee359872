package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"corpstore/internal/client"
	"corpstore/internal/protocol"
)

// ObserveOptions holds flags for the observe command.
type ObserveOptions struct {
	*RootOptions
	Output string
	Retry  time.Duration
	UUID   string
}

// NewObserveCommand creates the observe command.
func NewObserveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ObserveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Subscribe and print every notification",
		Long: `Subscribe to the server and print one JSON line per notification,
reconnecting after --retry whenever the connection drops. With -o every
line is also appended to a file.

Example:
  corpstore observe
  corpstore observe -o notifications.jsonl --retry 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObserve(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "append notifications to this file")
	cmd.Flags().DurationVarP(&opts.Retry, "retry", "r", client.DefaultRetry, "pause between reconnection attempts")
	cmd.Flags().StringVar(&opts.UUID, "uuid", "", "request UUID (default: this host's node id)")

	return cmd
}

func runObserve(cmd *cobra.Command, opts *ObserveOptions) error {
	id := strings.ToLower(strings.TrimSpace(opts.UUID))
	if id == "" {
		id = client.DefaultUUID()
	}
	if !protocol.ValidUUID(id) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid UUID %q", id))
	}

	var sink io.Writer
	if opts.Output != "" {
		f, err := openAppend(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open output", err)
		}
		defer f.Close()
		sink = f
	}

	p := newNotificationPrinter(cmd.OutOrStdout(), sink)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := client.Observe(ctx, client.ObserveOptions{
		Addr:   opts.Config.Addr(),
		UUID:   id,
		Retry:  opts.Retry,
		Logger: opts.Logger,
	}, p.print)
	if err != nil {
		return WrapExitError(ExitFailure, "observe failed", err)
	}
	opts.Logger.Info("observer stopped")
	return nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// notificationPrinter writes one line per notification, coloured when the
// destination is a terminal. The file sink always gets plain lines.
type notificationPrinter struct {
	out   io.Writer
	sink  io.Writer
	event *color.Color
	id    *color.Color
}

func newNotificationPrinter(out, sink io.Writer) *notificationPrinter {
	p := &notificationPrinter{
		out:   out,
		sink:  sink,
		event: color.New(color.FgGreen, color.Bold),
		id:    color.New(color.FgCyan),
	}
	if !isTerminal(out) {
		p.event.DisableColor()
		p.id.DisableColor()
	} else {
		p.event.EnableColor()
		p.id.EnableColor()
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *notificationPrinter) print(n protocol.Notification, raw []byte) error {
	line := string(raw)
	if p.sink != nil {
		if _, err := fmt.Fprintln(p.sink, line); err != nil {
			return fmt.Errorf("append notification: %w", err)
		}
	}
	_, err := fmt.Fprintf(p.out, "%s %s %s\n", p.event.Sprint(n.Event), p.id.Sprint(n.Record.ID), line)
	return err
}
