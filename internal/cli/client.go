package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"corpstore/internal/client"
)

// ClientOptions holds flags for the client command.
type ClientOptions struct {
	*RootOptions
	Input  string
	Output string
}

// NewClientCommand creates the client command.
func NewClientCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Send one request from a JSON file",
		Long: `Send one get, set or list request read from a JSON file and print the
response, or save it with -o.

The request is normalized first: a missing UUID is filled with this host's
node id, ACTION is lower-cased, a flat set (fields at the top level) gets
its DATA built, and DATA.id is used when ID is absent.

Example:
  corpstore client -i get.json
  corpstore client -i set.json -o response.json -s 127.0.0.1 -p 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "request JSON file (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the response here instead of stdout")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runClient(cmd *cobra.Command, opts *ClientOptions) error {
	raw, err := client.LoadRequest(opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read request", err)
	}
	req, err := client.Normalize(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
	defer cancel()

	addr := opts.Config.Addr()
	opts.Logger.Debug("sending request", "addr", addr, "action", req["ACTION"])
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "connection failed", err)
	}
	defer c.Close()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return WrapExitError(ExitCommandError, "request failed", err)
	}

	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "cannot encode response", err)
	}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(body, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "cannot write response", err)
		}
		opts.Logger.Debug("response saved", "path", opts.Output, "status", resp.Status)
		return nil
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}
