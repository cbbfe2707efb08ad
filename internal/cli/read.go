package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	StreamID    string
	MinRevision int
	MaxRevision int
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "read",
		Short:         "Read commits on a stream within a revision window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StreamID, "stream", "", "stream id (uuid)")
	cmd.Flags().IntVar(&opts.MinRevision, "min", 0, "minimum stream revision")
	cmd.Flags().IntVar(&opts.MaxRevision, "max", 1<<30, "maximum stream revision")
	cmd.MarkFlagRequired("stream")

	return cmd
}

func runRead(cmd *cobra.Command, opts *ReadOptions) error {
	streamID, err := uuid.Parse(opts.StreamID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --stream", err)
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

	it, err := engine.GetFrom(cmd.Context(), streamID, opts.MinRevision, opts.MaxRevision)
	if err != nil {
		return WrapExitError(ExitFailure, "read", err)
	}
	defer it.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var out []any
	for {
		c, ok, err := it.Next(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "read", err)
		}
		if !ok {
			break
		}
		out = append(out, map[string]any{
			"commit_id":       c.CommitID,
			"commit_sequence": c.CommitSequence,
			"stream_revision": c.StreamRevision,
			"dispatched":      c.Dispatched,
			"events":          len(c.Events),
		})
	}
	return f.Success(out)
}
