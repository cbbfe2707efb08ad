package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	StreamID string
	CommitID string
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "dispatch",
		Short:         "Mark a commit as dispatched",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StreamID, "stream", "", "stream id (uuid)")
	cmd.Flags().StringVar(&opts.CommitID, "commit", "", "commit id (uuid)")
	cmd.MarkFlagRequired("stream")
	cmd.MarkFlagRequired("commit")

	return cmd
}

func runDispatch(cmd *cobra.Command, opts *DispatchOptions) error {
	streamID, err := uuid.Parse(opts.StreamID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --stream", err)
	}
	commitID, err := uuid.Parse(opts.CommitID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --commit", err)
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

	if err := engine.MarkCommitAsDispatched(cmd.Context(), streamID, commitID); err != nil {
		return WrapExitError(ExitFailure, "dispatch", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(map[string]any{"stream_id": streamID, "commit_id": commitID, "dispatched": true})
}
