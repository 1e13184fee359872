package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"corpstore/internal/config"
)

// RootOptions holds global flags for all commands and the state resolved
// from them before a subcommand runs.
type RootOptions struct {
	Verbose    bool
	ConfigPath string
	Host       string
	Port       int

	Config config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the corpstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "corpstore",
		Short: "corpstore - corporate record server",
		Long: `A TCP server holding the CorporateData and CorporateLog tables.

Clients send length-prefixed JSON requests (get, set, list, subscribe);
subscribers receive a notification after every set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.Host, "host", "s", config.DefaultHost, "server host")
	cmd.PersistentFlags().IntVarP(&opts.Port, "port", "p", config.DefaultPort, "server TCP port")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewClientCommand(opts))
	cmd.AddCommand(NewObserveCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))

	return cmd
}

// resolve loads the layered config, applies explicitly set flags on top
// and configures logging.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.Host
	}
	if flags.Changed("port") {
		cfg.Port = o.Port
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.Verbose
	}

	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(o.Logger)
	return nil
}

// newLogger returns a text logger at debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
