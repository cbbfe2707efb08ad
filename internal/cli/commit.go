package cli

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/eventstore/internal/event"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	StreamID         string
	CommitSequence   int
	StartingRevision int
	StreamRevision   int
	EventsJSON       string
	HeadersJSON      string
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Append a commit to a stream",
		Long: `Append a commit to a stream.

Example:
  eventstore commit --stream 3fa85f64-5717-4562-b3fc-2c963f66afa6 \
    --sequence 1 --starting-revision 1 --revision 1 \
    --events '[{"event_type":"Created","data":"eyJuIjoxfQ=="}]'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.StreamID, "stream", "", "stream id (uuid)")
	cmd.Flags().IntVar(&opts.CommitSequence, "sequence", 0, "commit sequence number")
	cmd.Flags().IntVar(&opts.StartingRevision, "starting-revision", 0, "starting stream revision of this commit")
	cmd.Flags().IntVar(&opts.StreamRevision, "revision", 0, "ending stream revision of this commit")
	cmd.Flags().StringVar(&opts.EventsJSON, "events", "[]", "events as a JSON array of {event_type, data}")
	cmd.Flags().StringVar(&opts.HeadersJSON, "headers", "{}", "commit headers as a JSON object")
	cmd.MarkFlagRequired("stream")

	return cmd
}

func runCommit(cmd *cobra.Command, opts *CommitOptions) error {
	streamID, err := uuid.Parse(opts.StreamID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --stream", err)
	}

	var events []event.EventRecord
	if err := json.Unmarshal([]byte(opts.EventsJSON), &events); err != nil {
		return WrapExitError(ExitCommandError, "invalid --events JSON", err)
	}

	var headers map[string]any
	if err := json.Unmarshal([]byte(opts.HeadersJSON), &headers); err != nil {
		return WrapExitError(ExitCommandError, "invalid --headers JSON", err)
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

	commit := event.Commit{
		StreamID:               streamID,
		CommitID:               uuid.New(),
		CommitSequence:         opts.CommitSequence,
		StartingStreamRevision: opts.StartingRevision,
		StreamRevision:         opts.StreamRevision,
		CommitStamp:            time.Now().UTC(),
		Headers:                headers,
		Events:                 events,
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if err := engine.Commit(cmd.Context(), commit); err != nil {
		if kind, ok := event.KindOf(err); ok {
			if ferr := f.Error(string(kind), err.Error(), nil); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(ExitFailure, "commit", err)
	}

	return f.Success(map[string]any{
		"stream_id": commit.StreamID,
		"commit_id": commit.CommitID,
		"revision":  commit.StreamRevision,
	})
}
