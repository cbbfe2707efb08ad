// Package persistence defines the backend-agnostic engine contract: the
// public surface every storage backend (internal/sqlstore,
// internal/docstore) implements, plus the pull iterators and the
// stream-head maintainer both backends share.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eventstore/internal/event"
)

// Engine is the persistence core's public contract. All errors are
// *event.Error values (see internal/event/errors.go) so callers can branch
// on Kind without string matching.
type Engine interface {
	// Initialize ensures schema/indexes exist. Idempotent.
	Initialize(ctx context.Context) error

	// Commit appends one commit. On a uniqueness violation each
	// implementation reads back the commit at (StreamID, CommitSequence):
	// the same CommitID yields KindDuplicateCommit, a different one
	// KindConcurrency.
	Commit(ctx context.Context, attempt event.Commit) error

	// GetFrom returns, in ascending StartingStreamRevision order, the
	// commits on streamID whose [StartingStreamRevision, StreamRevision]
	// window intersects [minRevision, maxRevision].
	GetFrom(ctx context.Context, streamID uuid.UUID, minRevision, maxRevision int) (CommitIterator, error)

	// GetFromStamp returns, in ascending CommitStamp order, all commits
	// across all streams with CommitStamp >= start.
	GetFromStamp(ctx context.Context, start time.Time) (CommitIterator, error)

	// GetUndispatchedCommits returns, in ascending CommitStamp order, all
	// commits with Dispatched == false.
	GetUndispatchedCommits(ctx context.Context) (CommitIterator, error)

	// MarkCommitAsDispatched monotonically sets Dispatched = true. Idempotent.
	MarkCommitAsDispatched(ctx context.Context, streamID, commitID uuid.UUID) error

	// GetSnapshot returns the snapshot of greatest StreamRevision <=
	// maxRevision for streamID, or (nil, nil) if none exists.
	GetSnapshot(ctx context.Context, streamID uuid.UUID, maxRevision int) (*event.Snapshot, error)

	// AddSnapshot inserts a snapshot and enqueues a stream-head update.
	// Returns false (no error) when the backend refuses the write because
	// a snapshot already exists at that revision.
	AddSnapshot(ctx context.Context, snapshot event.Snapshot) (bool, error)

	// GetStreamsToSnapshot returns stream heads whose SnapshotAge >=
	// maxThreshold, per the best-effort stream-head summary.
	GetStreamsToSnapshot(ctx context.Context, maxThreshold int) (StreamHeadIterator, error)

	// Close releases the backend connection/session. Safe to call once.
	Close() error
}

// CommitIterator is a pull-based lazy sequence of commits, the Go-idiomatic
// realization of the spec's "lazy ordered sequence". Next returns
// (zero, false, nil) when exhausted.
type CommitIterator interface {
	Next(ctx context.Context) (event.Commit, bool, error)
	Close() error
}

// StreamHeadIterator is the analogous pull iterator for stream heads.
type StreamHeadIterator interface {
	Next(ctx context.Context) (event.StreamHead, bool, error)
	Close() error
}
