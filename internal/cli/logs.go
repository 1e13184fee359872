package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"corpstore/internal/server"
	"corpstore/internal/storage"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Storage StorageFlags
	JSON    bool
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the action log",
		Long: `Print every CorporateLog entry of the configured backend in append order.

Example:
  corpstore logs
  corpstore logs --storage sqlite --sqlite-path ./corp.db --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}

	opts.Storage.register(cmd)
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "one JSON object per line")

	return cmd
}

func runLogs(cmd *cobra.Command, opts *LogsOptions) error {
	cfg := opts.Config.Storage
	opts.Storage.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx := cmd.Context()
	backend, err := server.OpenBackend(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	store := storage.NewStore(backend)
	defer store.Close()

	entries, err := store.ListLog(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintf(out, "%s is empty\n", storage.TableLog)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tUUID\tACTION\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.SessionID, e.UUID, e.Action, e.ID)
	}
	return tw.Flush()
}
