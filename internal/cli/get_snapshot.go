package cli

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// GetSnapshotOptions holds flags for the get-snapshot command.
type GetSnapshotOptions struct {
	*RootOptions
	StreamID    string
	MaxRevision int
}

// NewGetSnapshotCommand creates the get-snapshot command.
func NewGetSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetSnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "get-snapshot",
		Short:         "Fetch the most recent snapshot at or before a revision",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetSnapshot(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StreamID, "stream", "", "stream id (uuid)")
	cmd.Flags().IntVar(&opts.MaxRevision, "max-revision", 1<<30, "upper bound on the snapshot's stream revision")
	cmd.MarkFlagRequired("stream")

	return cmd
}

func runGetSnapshot(cmd *cobra.Command, opts *GetSnapshotOptions) error {
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

	snap, err := engine.GetSnapshot(cmd.Context(), streamID, opts.MaxRevision)
	if err != nil {
		return WrapExitError(ExitFailure, "get-snapshot", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if snap == nil {
		return f.Success(nil)
	}

	var payload any
	if err := json.Unmarshal(snap.Payload, &payload); err != nil {
		payload = string(snap.Payload)
	}
	return f.Success(map[string]any{
		"stream_id": snap.StreamID,
		"revision":  snap.StreamRevision,
		"payload":   payload,
	})
}
