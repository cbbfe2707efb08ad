package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/eventstore/internal/metrics"
)

// NewUndispatchedCommand creates the undispatched command.
func NewUndispatchedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "undispatched",
		Short:         "List commits not yet dispatched to an out-of-process publisher",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndispatched(cmd, rootOpts)
		},
	}
	return cmd
}

func runUndispatched(cmd *cobra.Command, rootOpts *RootOptions) error {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	engine, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer engine.Close()

	it, err := engine.GetUndispatchedCommits(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "undispatched", err)
	}
	defer it.Close()

	f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

	var out []any
	for {
		c, ok, err := it.Next(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "undispatched", err)
		}
		if !ok {
			break
		}
		out = append(out, map[string]any{
			"stream_id": c.StreamID,
			"commit_id": c.CommitID,
		})
	}
	metrics.SetUndispatchedBacklog(len(out))
	return f.Success(out)
}
