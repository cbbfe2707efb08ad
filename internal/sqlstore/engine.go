package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/eventstore/internal/dialect"
	"github.com/roach88/eventstore/internal/event"
	"github.com/roach88/eventstore/internal/metrics"
	"github.com/roach88/eventstore/internal/persistence"
)

// Commit appends one commit, applying the concurrency discrimination
// algorithm from spec.md §4.2 on a uniqueness violation: a single targeted
// read-back by (StreamID, CommitSequence), comparing CommitID only.
func (s *Store) Commit(ctx context.Context, attempt event.Commit) error {
	ctx, span := s.tracer.Start(ctx, "sqlstore.commit",
		trace.WithAttributes(
			attribute.String("stream.id", attempt.StreamID.String()),
			attribute.Int("commit.sequence", attempt.CommitSequence),
			attribute.Int("event.count", len(attempt.Events)),
		),
	)
	defer span.End()

	if err := attempt.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	headers, payload, err := s.marshalCommitBlobs(attempt)
	if err != nil {
		return event.NewStorage(err)
	}

	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	stmt := s.dialect.Statement(dialect.OpInsertCommit)
	_, err = b.Exec(ctx, stmt,
		attempt.StreamID.String(), attempt.CommitID.String(), attempt.CommitSequence,
		attempt.StartingStreamRevision, attempt.StreamRevision,
		attempt.CommitStamp.UTC().Format(time.RFC3339Nano), headers, payload,
	)
	if err == nil {
		s.heads.Enqueue(persistence.HeadUpdate{
			StreamID:     attempt.StreamID,
			HeadRevision: attempt.StreamRevision,
		})
		slog.Info("commit appended",
			"stream_id", attempt.StreamID,
			"commit_sequence", attempt.CommitSequence,
			"stream_revision", attempt.StreamRevision,
		)
		metrics.RecordCommit()
		span.SetAttributes(attribute.Bool("commit.success", true))
		return nil
	}

	if !s.dialect.IsUniqueViolation(err, "") {
		slog.Error("commit failed", "stream_id", attempt.StreamID, "error", err)
		span.RecordError(err)
		return event.NewStorage(err)
	}

	// Uniqueness violation: read back the existing commit at the
	// deterministic key and compare CommitID only (spec.md §4.2).
	existing, lookupErr := s.readCommitByKey(ctx, attempt.StreamID, attempt.CommitSequence)
	if lookupErr != nil {
		span.RecordError(lookupErr)
		return event.NewStorage(fmt.Errorf("discriminate conflict: %w", lookupErr))
	}
	if existing.CommitID == attempt.CommitID {
		span.SetAttributes(attribute.String("commit.conflict", "duplicate"))
		metrics.RecordConflict(string(event.KindDuplicateCommit))
		return event.NewDuplicateCommit(attempt.StreamID, attempt.CommitID)
	}
	span.SetAttributes(attribute.String("commit.conflict", "concurrency"))
	metrics.RecordConflict(string(event.KindConcurrency))
	return event.NewConcurrency(attempt.StreamID, attempt.CommitID)
}

func (s *Store) readCommitByKey(ctx context.Context, streamID uuid.UUID, commitSequence int) (event.Commit, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	row := b.QueryRow(ctx, s.dialect.Statement(dialect.OpSelectCommitByKey), streamID.String(), commitSequence)
	return s.scanCommit(row)
}

// GetFrom returns commits on streamID whose window intersects
// [minRevision, maxRevision], ordered ascending by StartingStreamRevision.
func (s *Store) GetFrom(ctx context.Context, streamID uuid.UUID, minRevision, maxRevision int) (persistence.CommitIterator, error) {
	ctx, span := s.tracer.Start(ctx, "sqlstore.get_from",
		trace.WithAttributes(
			attribute.String("stream.id", streamID.String()),
			attribute.Int("revision.min", minRevision),
			attribute.Int("revision.max", maxRevision),
		),
	)
	defer span.End()

	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	rows, err := b.Query(ctx, s.dialect.Statement(dialect.OpSelectFromRevision), streamID.String(), maxRevision, minRevision)
	if err != nil {
		span.RecordError(err)
		return nil, event.NewStorage(err)
	}

	commits, err := s.scanCommitRows(rows)
	if err != nil {
		span.RecordError(err)
		return nil, event.NewStorage(err)
	}
	span.SetAttributes(attribute.Int("commit.count", len(commits)))
	return persistence.NewCommitSlice(commits), nil
}

// GetFromStamp returns all commits with CommitStamp >= start, ordered
// ascending by CommitStamp.
func (s *Store) GetFromStamp(ctx context.Context, start time.Time) (persistence.CommitIterator, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	rows, err := b.Query(ctx, s.dialect.Statement(dialect.OpSelectFromStamp), start.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, event.NewStorage(err)
	}

	commits, err := s.scanCommitRows(rows)
	if err != nil {
		return nil, event.NewStorage(err)
	}
	return persistence.NewCommitSlice(commits), nil
}

// GetUndispatchedCommits returns all commits with Dispatched == false,
// ordered ascending by CommitStamp. May be stale; never omits a commit
// whose flag is still false at observation time, since the read is a
// direct query against the authoritative log.
func (s *Store) GetUndispatchedCommits(ctx context.Context) (persistence.CommitIterator, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	rows, err := b.Query(ctx, s.dialect.Statement(dialect.OpSelectUndispatched))
	if err != nil {
		return nil, event.NewStorage(err)
	}

	commits, err := s.scanCommitRows(rows)
	if err != nil {
		return nil, event.NewStorage(err)
	}
	return persistence.NewCommitSlice(commits), nil
}

// MarkCommitAsDispatched monotonically sets Dispatched = true. Idempotent:
// re-marking an already-dispatched commit leaves it true, and an UPDATE
// that matches zero rows (no such commit) is not an error.
func (s *Store) MarkCommitAsDispatched(ctx context.Context, streamID, commitID uuid.UUID) error {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	_, err := b.Exec(ctx, s.dialect.Statement(dialect.OpMarkDispatched), streamID.String(), commitID.String())
	if err != nil {
		return event.NewStorage(err)
	}
	return nil
}

// GetSnapshot returns the snapshot of greatest StreamRevision <= maxRevision,
// or (nil, nil) if none exists.
func (s *Store) GetSnapshot(ctx context.Context, streamID uuid.UUID, maxRevision int) (*event.Snapshot, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	row := b.QueryRow(ctx, s.dialect.Statement(dialect.OpSelectSnapshot), streamID.String(), maxRevision)
	snap, err := s.scanSnapshot(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, event.NewStorage(err)
	}
	return &snap, nil
}

// AddSnapshot inserts a snapshot and enqueues a stream-head update. Returns
// false (not an error) if the backend rejects the write as a duplicate key.
func (s *Store) AddSnapshot(ctx context.Context, snapshot event.Snapshot) (bool, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	_, err := b.Exec(ctx, s.dialect.Statement(dialect.OpInsertSnapshot), snapshot.StreamID.String(), snapshot.StreamRevision, snapshot.Payload)
	if err != nil {
		if s.dialect.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, event.NewStorage(err)
	}

	rev := snapshot.StreamRevision
	s.heads.Enqueue(persistence.HeadUpdate{
		StreamID:         snapshot.StreamID,
		SnapshotRevision: &rev,
	})
	metrics.RecordSnapshot()
	return true, nil
}

// GetStreamsToSnapshot returns stream heads whose SnapshotAge >= maxThreshold.
func (s *Store) GetStreamsToSnapshot(ctx context.Context, maxThreshold int) (persistence.StreamHeadIterator, error) {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	rows, err := b.Query(ctx, s.dialect.Statement(dialect.OpSelectStreamsToSnap), maxThreshold)
	if err != nil {
		return nil, event.NewStorage(err)
	}

	var heads []event.StreamHead
	for rows.Next() {
		h, err := s.scanStreamHead(rows)
		if err != nil {
			return nil, event.NewStorage(err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, event.NewStorage(err)
	}
	if heads == nil {
		heads = []event.StreamHead{}
	}
	return persistence.NewStreamHeadSlice(heads), nil
}

// ApplyHeadUpdate implements persistence.HeadApplier. A commit-driven
// update (SnapshotRevision == nil) advances HeadRevision; a
// snapshot-driven update advances SnapshotRevision. Either may create the
// stream head row if this is the first update seen for the stream. Writes
// are non-optimistic: last write wins, per spec.md §4.3.
func (s *Store) ApplyHeadUpdate(ctx context.Context, upd persistence.HeadUpdate) error {
	b := s.dialect.NewStatementBuilder(s.db, nil)
	defer b.Close()

	if upd.SnapshotRevision == nil {
		if _, err := b.Exec(ctx, s.dialect.Statement(dialect.OpInsertStreamHeadIfAbsent), upd.StreamID.String(), upd.HeadRevision); err != nil {
			return err
		}
		_, err := b.Exec(ctx, s.dialect.Statement(dialect.OpUpdateStreamHeadRevision), upd.HeadRevision, upd.StreamID.String())
		return err
	}

	if _, err := b.Exec(ctx, s.dialect.Statement(dialect.OpInsertStreamHeadIfAbsent), upd.StreamID.String(), *upd.SnapshotRevision); err != nil {
		return err
	}
	_, err := b.Exec(ctx, s.dialect.Statement(dialect.OpUpdateStreamHeadSnapshot), *upd.SnapshotRevision, upd.StreamID.String())
	return err
}
