package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eventstore/internal/event"
	"github.com/roach88/eventstore/internal/metrics"
	"github.com/roach88/eventstore/internal/persistence"
	"github.com/roach88/eventstore/internal/serializer"
)

// Store is an embedded document-store engine: records are BSON-encoded
// (so the on-the-wire shape matches a real MongoDB deployment) but held in
// process memory behind a mutex, which stands in for the unique indexes a
// live mongod enforces. This lets the module run its docstore tests and
// CLI demos without an external database, mirroring how the
// teacher's own tests open SQLite at ":memory:" rather than requiring a
// running server.
type Store struct {
	serializer serializer.Serializer

	mu          sync.Mutex
	commits     []commitDoc          // ordered by insertion (== seq_no analogue)
	byKey       map[string]int       // commitKey -> index into commits
	byCommitID  map[string]struct{}  // global CommitID uniqueness
	snapshots   map[string]snapshotDoc // commitKey(streamID, revision) -> snapshot
	streamHeads map[string]streamHeadDoc

	heads *persistence.HeadMaintainer
}

var _ persistence.Engine = (*Store)(nil)

// New constructs an embedded document-store engine.
func New(opts ...Option) *Store {
	o := options{serializer: serializer.NewJSON()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		serializer:  o.serializer,
		byKey:       make(map[string]int),
		byCommitID:  make(map[string]struct{}),
		snapshots:   make(map[string]snapshotDoc),
		streamHeads: make(map[string]streamHeadDoc),
	}
	s.heads = persistence.NewHeadMaintainer(s)
	return s
}

// Option configures New.
type Option func(*options)

type options struct {
	serializer serializer.Serializer
}

// WithSerializer overrides the default JSON serializer for headers/events blobs.
func WithSerializer(s serializer.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// Initialize is a no-op for the embedded engine: its "indexes" are the Go
// maps built in New, which always exist. Present so callers can treat every
// backend uniformly.
func (s *Store) Initialize(ctx context.Context) error {
	slog.Info("docstore initialized", "mode", "embedded")
	return nil
}

// Close stops the head maintainer. Safe to call once.
func (s *Store) Close() error {
	s.heads.Stop()
	return nil
}

// Commit appends one commit, applying the same concurrency-discrimination
// algorithm as the relational backend: on a primary-key collision, read
// back the existing document at that key and compare CommitID only.
func (s *Store) Commit(ctx context.Context, attempt event.Commit) error {
	if err := attempt.Validate(); err != nil {
		return err
	}

	doc, err := toCommitDoc(s.serializer, attempt)
	if err != nil {
		return event.NewStorage(err)
	}
	// Round-trip through real BSON bytes so the stored representation is
	// exactly what a mongod-backed deployment would write.
	raw, err := encodeBSON(doc)
	if err != nil {
		return event.NewStorage(fmt.Errorf("docstore: bson marshal: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, exists := s.byKey[doc.ID]; exists {
		existing := s.commits[idx]
		if existing.CommitID == doc.CommitID {
			metrics.RecordConflict(string(event.KindDuplicateCommit))
			return event.NewDuplicateCommit(attempt.StreamID, attempt.CommitID)
		}
		metrics.RecordConflict(string(event.KindConcurrency))
		return event.NewConcurrency(attempt.StreamID, attempt.CommitID)
	}
	if _, exists := s.byCommitID[doc.CommitID]; exists {
		return event.NewStorage(fmt.Errorf("docstore: commit id %s already used on another stream", doc.CommitID))
	}

	var stored commitDoc
	if err := decodeBSON(raw, &stored); err != nil {
		return event.NewStorage(fmt.Errorf("docstore: bson unmarshal: %w", err))
	}

	s.byKey[doc.ID] = len(s.commits)
	s.byCommitID[doc.CommitID] = struct{}{}
	s.commits = append(s.commits, stored)

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
	return nil
}

// GetFrom returns commits on streamID whose window intersects
// [minRevision, maxRevision], ordered ascending by StartingStreamRevision.
func (s *Store) GetFrom(ctx context.Context, streamID uuid.UUID, minRevision, maxRevision int) (persistence.CommitIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []commitDoc
	sid := streamID.String()
	for _, d := range s.commits {
		if d.StreamID != sid {
			continue
		}
		if d.StartingStreamRevision <= maxRevision && d.StreamRevision >= minRevision {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartingStreamRevision < matches[j].StartingStreamRevision
	})
	return s.decodeSlice(matches)
}

// GetFromStamp returns all commits with CommitStamp >= start, ordered
// ascending by CommitStamp.
func (s *Store) GetFromStamp(ctx context.Context, start time.Time) (persistence.CommitIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []commitDoc
	for _, d := range s.commits {
		if !d.CommitStamp.Before(start) {
			matches = append(matches, d)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CommitStamp.Before(matches[j].CommitStamp)
	})
	return s.decodeSlice(matches)
}

// GetUndispatchedCommits returns all commits with Dispatched == false,
// ordered ascending by CommitStamp.
func (s *Store) GetUndispatchedCommits(ctx context.Context) (persistence.CommitIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []commitDoc
	for _, d := range s.commits {
		if !d.Dispatched {
			matches = append(matches, d)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CommitStamp.Before(matches[j].CommitStamp)
	})
	return s.decodeSlice(matches)
}

// MarkCommitAsDispatched monotonically sets Dispatched = true. Idempotent.
func (s *Store) MarkCommitAsDispatched(ctx context.Context, streamID, commitID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, cid := streamID.String(), commitID.String()
	for i, d := range s.commits {
		if d.StreamID == sid && d.CommitID == cid {
			s.commits[i].Dispatched = true
			return nil
		}
	}
	// No matching commit: idempotent no-op, consistent with the relational
	// backend's UPDATE-affecting-zero-rows behavior.
	return nil
}

// GetSnapshot returns the snapshot of greatest StreamRevision <= maxRevision,
// or (nil, nil) if none exists.
func (s *Store) GetSnapshot(ctx context.Context, streamID uuid.UUID, maxRevision int) (*event.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid := streamID.String()
	var best *snapshotDoc
	for key, d := range s.snapshots {
		_ = key
		if d.StreamID == sid && d.StreamRevision <= maxRevision {
			if best == nil || d.StreamRevision > best.StreamRevision {
				dd := d
				best = &dd
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	id, err := parseUUID(best.StreamID)
	if err != nil {
		return nil, event.NewStorage(err)
	}
	return &event.Snapshot{StreamID: id, StreamRevision: best.StreamRevision, Payload: best.Payload}, nil
}

// AddSnapshot inserts a snapshot and enqueues a stream-head update. Returns
// false (not an error) if a snapshot already exists at that revision.
func (s *Store) AddSnapshot(ctx context.Context, snapshot event.Snapshot) (bool, error) {
	key := commitKey(snapshot.StreamID.String(), snapshot.StreamRevision)

	s.mu.Lock()
	if _, exists := s.snapshots[key]; exists {
		s.mu.Unlock()
		return false, nil
	}
	s.snapshots[key] = snapshotDoc{
		ID:             key,
		StreamID:       snapshot.StreamID.String(),
		StreamRevision: snapshot.StreamRevision,
		Payload:        snapshot.Payload,
	}
	s.mu.Unlock()

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
	s.mu.Lock()
	defer s.mu.Unlock()

	var heads []event.StreamHead
	for _, d := range s.streamHeads {
		if d.HeadRevision-d.SnapshotRevision >= maxThreshold {
			id, err := parseUUID(d.ID)
			if err != nil {
				return nil, event.NewStorage(err)
			}
			heads = append(heads, event.StreamHead{StreamID: id, HeadRevision: d.HeadRevision, SnapshotRevision: d.SnapshotRevision})
		}
	}
	return persistence.NewStreamHeadSlice(heads), nil
}

// ApplyHeadUpdate implements persistence.HeadApplier. Same semantics as
// sqlstore.Store.ApplyHeadUpdate: last write wins, non-optimistic.
func (s *Store) ApplyHeadUpdate(ctx context.Context, upd persistence.HeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := upd.StreamID.String()
	head, exists := s.streamHeads[id]
	if !exists {
		head = streamHeadDoc{ID: id}
	}
	if upd.SnapshotRevision == nil {
		head.HeadRevision = upd.HeadRevision
	} else {
		head.SnapshotRevision = *upd.SnapshotRevision
	}
	s.streamHeads[id] = head
	return nil
}

func (s *Store) decodeSlice(docs []commitDoc) (persistence.CommitIterator, error) {
	out := make([]event.Commit, 0, len(docs))
	for _, d := range docs {
		c, err := fromCommitDoc(s.serializer, d)
		if err != nil {
			return nil, event.NewStorage(err)
		}
		out = append(out, c)
	}
	return persistence.NewCommitSlice(out), nil
}
