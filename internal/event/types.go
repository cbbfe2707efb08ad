// Package event defines the data model of the persistence core: the
// immutable Commit, the derived Snapshot, and the best-effort StreamHead
// summary, together with the invariants that bind them.
package event

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is one opaque event within a commit. The core never inspects
// Data; it is produced and consumed entirely by the caller's serializer.
type EventRecord struct {
	EventType string `json:"event_type"`
	Data      []byte `json:"data"`
}

// Commit is an immutable append to one stream.
//
// Invariants (2 is enforced by the backends' unique constraints, 3 by
// Validate; no engine checks that CommitSequence values are contiguous):
//  1. For a stream, CommitSequence values are contiguous 1..N in insertion order.
//  2. (StreamID, CommitSequence) is unique; (StreamID, StreamRevision) is unique;
//     CommitID is globally unique.
//  3. StartingStreamRevision <= StreamRevision; len(Events) == StreamRevision - StartingStreamRevision + 1.
//  4. Once persisted, a commit is never mutated except Dispatched false->true.
type Commit struct {
	StreamID               uuid.UUID
	CommitID               uuid.UUID
	CommitSequence         int
	StartingStreamRevision int
	StreamRevision         int
	CommitStamp            time.Time
	Headers                map[string]any
	Events                 []EventRecord
	Dispatched             bool
}

// Snapshot is a materialised state of a stream at a revision.
type Snapshot struct {
	StreamID       uuid.UUID
	StreamRevision int
	Payload        []byte
}

// StreamHead is a derived, best-effort per-stream summary. It MUST NOT be
// used for concurrency checks; only the commit log is authoritative.
type StreamHead struct {
	StreamID         uuid.UUID
	HeadRevision     int
	SnapshotRevision int
}

// SnapshotAge is HeadRevision - SnapshotRevision, the number of revisions
// since the last snapshot. Streams whose SnapshotAge crosses an operator
// threshold are candidates for GetStreamsToSnapshot.
func (h StreamHead) SnapshotAge() int {
	return h.HeadRevision - h.SnapshotRevision
}

// Validate checks the structural preconditions a Commit must satisfy before
// it is handed to a persistence engine. It does not (and cannot) check
// uniqueness or sequence contiguity across the stream. Uniqueness is
// checked by the engine against the backend; contiguity is not checked.
func (c Commit) Validate() error {
	switch {
	case c.StreamID == uuid.Nil:
		return newInvalidCommit("stream id is required")
	case c.CommitID == uuid.Nil:
		return newInvalidCommit("commit id is required")
	case c.CommitSequence < 1:
		return newInvalidCommit("commit sequence must be >= 1")
	case c.StartingStreamRevision < 1:
		return newInvalidCommit("starting stream revision must be >= 1")
	case c.StreamRevision < c.StartingStreamRevision:
		return newInvalidCommit("stream revision must be >= starting stream revision")
	case len(c.Events) == 0:
		return newInvalidCommit("commit must contain at least one event")
	case len(c.Events) != c.StreamRevision-c.StartingStreamRevision+1:
		return newInvalidCommit("event count must equal stream revision - starting stream revision + 1")
	}
	return nil
}
