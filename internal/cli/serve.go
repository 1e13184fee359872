package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"corpstore/internal/config"
	"corpstore/internal/server"
)

// StorageFlags are the backend selection flags shared by serve, tables
// and logs.
type StorageFlags struct {
	Mode       string
	DataDir    string
	SQLitePath string
	RemoteAddr string
}

func (f *StorageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Mode, "storage", config.ModeFile, "storage backend (memory|file|sqlite|remote)")
	cmd.Flags().StringVar(&f.DataDir, "data-dir", config.DefaultDataDir, "directory of the JSON table files (file mode)")
	cmd.Flags().StringVar(&f.SQLitePath, "sqlite-path", config.DefaultSQLitePath, "database path (sqlite mode)")
	cmd.Flags().StringVar(&f.RemoteAddr, "remote-addr", config.DefaultTablesAddr, "table service address (remote mode)")
}

// apply copies the flags the user set onto cfg.
func (f *StorageFlags) apply(cmd *cobra.Command, cfg *config.Storage) {
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Mode = f.Mode
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = f.DataDir
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = f.SQLitePath
	}
	if flags.Changed("remote-addr") {
		cfg.RemoteAddr = f.RemoteAddr
	}
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Storage      StorageFlags
	MaxFrameSize int
	QueueSize    int
	WriteTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the record server",
		Long: `Run the record server until interrupted.

Example:
  corpstore serve -p 8080
  MOCK_DB=1 corpstore serve -v
  corpstore serve --storage sqlite --sqlite-path ./corp.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	opts.Storage.register(cmd)
	cmd.Flags().IntVar(&opts.MaxFrameSize, "max-frame-size", 0, "largest accepted request frame in bytes")
	cmd.Flags().IntVar(&opts.QueueSize, "queue-size", 0, "notifications buffered per subscriber")
	cmd.Flags().DurationVar(&opts.WriteTimeout, "write-timeout", 0, "per-notification write deadline")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := opts.Config
	opts.Storage.apply(cmd, &cfg.Storage)
	flags := cmd.Flags()
	if flags.Changed("max-frame-size") {
		cfg.MaxFrameSize = opts.MaxFrameSize
	}
	if flags.Changed("queue-size") {
		cfg.Subscribers.QueueSize = opts.QueueSize
	}
	if flags.Changed("write-timeout") {
		cfg.Subscribers.WriteTimeout = opts.WriteTimeout
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := server.Run(ctx, cfg, opts.Logger)
	var bindErr *server.BindError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &bindErr):
		return WrapExitError(ExitCommandError, "cannot start server", err)
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return WrapExitError(ExitCommandError, "server failed", err)
	}
}
