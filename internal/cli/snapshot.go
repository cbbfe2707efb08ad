package cli

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/eventstore/internal/event"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	StreamID    string
	Revision    int
	PayloadJSON string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "snapshot",
		Short:         "Add a snapshot of a stream at a revision",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StreamID, "stream", "", "stream id (uuid)")
	cmd.Flags().IntVar(&opts.Revision, "revision", 0, "stream revision the snapshot represents")
	cmd.Flags().StringVar(&opts.PayloadJSON, "payload", "{}", "opaque snapshot payload as JSON")
	cmd.MarkFlagRequired("stream")
	cmd.MarkFlagRequired("revision")

	return cmd
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	streamID, err := uuid.Parse(opts.StreamID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --stream", err)
	}
	if !json.Valid([]byte(opts.PayloadJSON)) {
		return WrapExitError(ExitCommandError, "invalid --payload JSON", nil)
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

	added, err := engine.AddSnapshot(cmd.Context(), event.Snapshot{
		StreamID:       streamID,
		StreamRevision: opts.Revision,
		Payload:        []byte(opts.PayloadJSON),
	})
	if err != nil {
		return WrapExitError(ExitFailure, "snapshot", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(map[string]any{"stream_id": streamID, "revision": opts.Revision, "added": added})
}
