package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// ReadSinceOptions holds flags for the read-since command.
type ReadSinceOptions struct {
	*RootOptions
	Since string
}

// NewReadSinceCommand creates the read-since command.
func NewReadSinceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadSinceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "read-since",
		Short:         "Read all commits across every stream with CommitStamp >= --since",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReadSince(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "RFC3339 timestamp, inclusive lower bound")
	cmd.MarkFlagRequired("since")

	return cmd
}

func runReadSince(cmd *cobra.Command, opts *ReadSinceOptions) error {
	since, err := time.Parse(time.RFC3339, opts.Since)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --since", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	engine, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer engine.Close()

	it, err := engine.GetFromStamp(cmd.Context(), since)
	if err != nil {
		return WrapExitError(ExitFailure, "read-since", err)
	}
	defer it.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var out []any
	for {
		c, ok, err := it.Next(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "read-since", err)
		}
		if !ok {
			break
		}
		out = append(out, map[string]any{
			"stream_id":    c.StreamID,
			"commit_id":    c.CommitID,
			"commit_stamp": c.CommitStamp,
		})
	}
	return f.Success(out)
}
