package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"corpstore/internal/config"
	"corpstore/internal/server"
	"corpstore/internal/tablesvc"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Storage StorageFlags
	Listen  string
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Serve the tables over gRPC for remote storage mode",
		Long: `Expose a local backend as the corpstore.tables.v1.Tables gRPC service.

A server started with --storage remote --remote-addr <listen> keeps its
tables here. The gRPC health service and reflection are registered too.

Example:
  corpstore tables --listen 127.0.0.1:50051 --storage sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(cmd, opts)
		},
	}

	opts.Storage.register(cmd)
	cmd.Flags().StringVar(&opts.Listen, "listen", config.DefaultTablesAddr, "gRPC listen address")

	return cmd
}

func runTables(cmd *cobra.Command, opts *TablesOptions) error {
	cfg := opts.Config.Storage
	opts.Storage.apply(cmd, &cfg)
	if cfg.Mode == config.ModeRemote {
		return NewExitError(ExitCommandError, "tables cannot serve a remote backend")
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := server.Listen(opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot start table service", err)
	}

	backend, err := server.OpenBackend(ctx, cfg)
	if err != nil {
		_ = lis.Close()
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			opts.Logger.Warn("close storage", "error", err)
		}
	}()

	if err := tablesvc.Serve(ctx, lis, backend, opts.Logger.With("backend", cfg.Mode)); err != nil {
		return WrapExitError(ExitFailure, "table service failed", err)
	}
	return nil
}
