package cli

import (
	"github.com/spf13/cobra"
)

// StreamsToSnapshotOptions holds flags for the streams-to-snapshot command.
type StreamsToSnapshotOptions struct {
	*RootOptions
	Threshold int
}

// NewStreamsToSnapshotCommand creates the streams-to-snapshot command.
func NewStreamsToSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamsToSnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "streams-to-snapshot",
		Short:         "List streams whose snapshot age has crossed the threshold",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreamsToSnapshot(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "minimum SnapshotAge to report (defaults to the config's snapshot_threshold when 0)")

	return cmd
}

func runStreamsToSnapshot(cmd *cobra.Command, opts *StreamsToSnapshotOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = cfg.SnapshotThreshold
	}

	engine, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer engine.Close()

	it, err := engine.GetStreamsToSnapshot(cmd.Context(), threshold)
	if err != nil {
		return WrapExitError(ExitFailure, "streams-to-snapshot", err)
	}
	defer it.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var out []any
	for {
		h, ok, err := it.Next(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "streams-to-snapshot", err)
		}
		if !ok {
			break
		}
		out = append(out, map[string]any{
			"stream_id":         h.StreamID,
			"head_revision":     h.HeadRevision,
			"snapshot_revision": h.SnapshotRevision,
			"snapshot_age":      h.SnapshotAge(),
		})
	}
	return f.Success(out)
}
