package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eventstore/internal/event"
	"github.com/roach88/eventstore/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newCommit(t *testing.T, clock *testutil.DeterministicClock, streamID uuid.UUID, rev int) event.Commit {
	t.Helper()
	seq := clock.Next()
	return event.Commit{
		StreamID:               streamID,
		CommitID:               uuid.New(),
		CommitSequence:         int(seq),
		StartingStreamRevision: rev,
		StreamRevision:         rev,
		CommitStamp:            time.Now().UTC(),
		Headers:                map[string]any{"source": "test"},
		Events:                 []event.EventRecord{{EventType: "Created", Data: []byte(`{"n":1}`)}},
	}
}

func TestStore_Commit_FirstCommitSucceeds(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()

	streamID := uuid.New()
	c := newCommit(t, clock, streamID, 1)
	if err := s.Commit(context.Background(), c); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func TestStore_Commit_DuplicateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()

	streamID := uuid.New()
	c := newCommit(t, clock, streamID, 1)
	if err := s.Commit(context.Background(), c); err != nil {
		t.Fatalf("first Commit() failed: %v", err)
	}
	err := s.Commit(context.Background(), c)
	if !event.Is(err, event.KindDuplicateCommit) {
		t.Fatalf("Commit() retry = %v, want KindDuplicateCommit", err)
	}
}

func TestStore_Commit_ConcurrencyConflict(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()

	streamID := uuid.New()
	first := newCommit(t, clock, streamID, 1)
	if err := s.Commit(context.Background(), first); err != nil {
		t.Fatalf("first Commit() failed: %v", err)
	}

	clock.Reset()
	second := newCommit(t, clock, streamID, 1) // same (stream, sequence), different CommitID
	err := s.Commit(context.Background(), second)
	if !event.Is(err, event.KindConcurrency) {
		t.Fatalf("Commit() conflict = %v, want KindConcurrency", err)
	}
}

func TestStore_Commit_RejectsInvalidCommit(t *testing.T) {
	s := openTestStore(t)
	err := s.Commit(context.Background(), event.Commit{})
	if !event.Is(err, event.KindInvalidCommit) {
		t.Fatalf("Commit() = %v, want KindInvalidCommit", err)
	}
}

func TestStore_GetFrom_OrdersByStartingRevision(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()
	ctx := context.Background()

	streamID := uuid.New()
	for _, rev := range []int{1, 2, 3} {
		if err := s.Commit(ctx, newCommit(t, clock, streamID, rev)); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
	}

	it, err := s.GetFrom(ctx, streamID, 1, 3)
	if err != nil {
		t.Fatalf("GetFrom() failed: %v", err)
	}
	defer it.Close()

	var got []int
	for {
		c, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, c.StreamRevision)
	}
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("GetFrom() returned %d commits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetFrom()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStore_UndispatchedAndDispatch(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()
	ctx := context.Background()

	streamID := uuid.New()
	c := newCommit(t, clock, streamID, 1)
	if err := s.Commit(ctx, c); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	it, err := s.GetUndispatchedCommits(ctx)
	if err != nil {
		t.Fatalf("GetUndispatchedCommits() failed: %v", err)
	}
	got, ok, err := it.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next() = (%+v, %v, %v), want a result", got, ok, err)
	}
	if got.CommitID != c.CommitID {
		t.Fatalf("GetUndispatchedCommits() returned wrong commit")
	}
	it.Close()

	if err := s.MarkCommitAsDispatched(ctx, streamID, c.CommitID); err != nil {
		t.Fatalf("MarkCommitAsDispatched() failed: %v", err)
	}

	it2, err := s.GetUndispatchedCommits(ctx)
	if err != nil {
		t.Fatalf("GetUndispatchedCommits() failed: %v", err)
	}
	defer it2.Close()
	_, ok, err = it2.Next(ctx)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if ok {
		t.Fatalf("GetUndispatchedCommits() still returned a dispatched commit")
	}
}

func TestStore_SnapshotLifecycle(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()
	ctx := context.Background()

	streamID := uuid.New()
	for _, rev := range []int{1, 2, 3} {
		if err := s.Commit(ctx, newCommit(t, clock, streamID, rev)); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
	}

	none, err := s.GetSnapshot(ctx, streamID, 3)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if none != nil {
		t.Fatalf("GetSnapshot() = %+v, want nil before any snapshot exists", none)
	}

	ok, err := s.AddSnapshot(ctx, event.Snapshot{StreamID: streamID, StreamRevision: 2, Payload: []byte(`{"state":"ok"}`)})
	if err != nil || !ok {
		t.Fatalf("AddSnapshot() = (%v, %v), want (true, nil)", ok, err)
	}

	dup, err := s.AddSnapshot(ctx, event.Snapshot{StreamID: streamID, StreamRevision: 2, Payload: []byte(`{"state":"other"}`)})
	if err != nil || dup {
		t.Fatalf("AddSnapshot() duplicate = (%v, %v), want (false, nil)", dup, err)
	}

	snap, err := s.GetSnapshot(ctx, streamID, 3)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snap == nil || snap.StreamRevision != 2 {
		t.Fatalf("GetSnapshot() = %+v, want revision 2", snap)
	}
}

// waitForStreamsToSnapshot polls GetStreamsToSnapshot until want is found or
// the deadline passes: Commit/AddSnapshot only enqueue a stream-head update
// on the HeadMaintainer's background goroutine, so the head row a
// threshold check relies on may not be visible immediately after the call
// returns.
func waitForStreamsToSnapshot(t *testing.T, s *Store, threshold int, want uuid.UUID) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		it, err := s.GetStreamsToSnapshot(context.Background(), threshold)
		if err != nil {
			t.Fatalf("GetStreamsToSnapshot() failed: %v", err)
		}
		for {
			h, ok, err := it.Next(context.Background())
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			if !ok {
				break
			}
			if h.StreamID == want {
				it.Close()
				return true
			}
		}
		it.Close()
		time.Sleep(time.Millisecond)
	}
	return false
}

// streamsToSnapshotContains issues a single GetStreamsToSnapshot call, no
// polling: use only once the background head updates are known to have
// drained.
func streamsToSnapshotContains(t *testing.T, s *Store, threshold int, want uuid.UUID) bool {
	t.Helper()
	it, err := s.GetStreamsToSnapshot(context.Background(), threshold)
	if err != nil {
		t.Fatalf("GetStreamsToSnapshot() failed: %v", err)
	}
	defer it.Close()
	for {
		h, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if !ok {
			return false
		}
		if h.StreamID == want {
			return true
		}
	}
}

func TestStore_GetStreamsToSnapshot_ThresholdFiltering(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()
	ctx := context.Background()

	stale := uuid.New() // head - snapshot = 5, no snapshot yet
	for _, rev := range []int{1, 2, 3, 4, 5} {
		if err := s.Commit(ctx, newCommit(t, clock, stale, rev)); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
	}

	fresh := uuid.New() // head - snapshot = 0, just snapshotted
	for _, rev := range []int{1, 2} {
		if err := s.Commit(ctx, newCommit(t, clock, fresh, rev)); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
	}
	ok, err := s.AddSnapshot(ctx, event.Snapshot{StreamID: fresh, StreamRevision: 2, Payload: []byte(`{}`)})
	if err != nil || !ok {
		t.Fatalf("AddSnapshot() = (%v, %v), want (true, nil)", ok, err)
	}

	// Threshold 0 matches any stream with a recorded head. Every stale
	// update was enqueued before fresh's first one, so fresh's arrival
	// confirms stale's head (age 5) has been applied. fresh stays below
	// age 3 whichever of its own updates have been applied so far.
	if !waitForStreamsToSnapshot(t, s, 0, fresh) {
		t.Fatalf("stream head updates never drained for stream %s", fresh)
	}

	if !streamsToSnapshotContains(t, s, 3, stale) {
		t.Fatalf("GetStreamsToSnapshot(3) never surfaced stream %s (age 5)", stale)
	}
	if streamsToSnapshotContains(t, s, 3, fresh) {
		t.Fatalf("GetStreamsToSnapshot(3) surfaced freshly-snapshotted stream %s (age 0)", fresh)
	}
}

func TestStore_GetFromStamp_FiltersByTime(t *testing.T) {
	s := openTestStore(t)
	clock := testutil.NewDeterministicClock()
	ctx := context.Background()

	streamID := uuid.New()
	cutoff := time.Now().UTC()

	old := newCommit(t, clock, streamID, 1)
	old.CommitStamp = cutoff.Add(-time.Hour)
	if err := s.Commit(ctx, old); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	recent := newCommit(t, clock, streamID, 2)
	recent.CommitStamp = cutoff.Add(time.Hour)
	if err := s.Commit(ctx, recent); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	it, err := s.GetFromStamp(ctx, cutoff)
	if err != nil {
		t.Fatalf("GetFromStamp() failed: %v", err)
	}
	defer it.Close()

	c, ok, err := it.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next() = (%+v, %v, %v), want a result", c, ok, err)
	}
	if c.CommitID != recent.CommitID {
		t.Fatalf("GetFromStamp() returned commit %s, want the one after cutoff", c.CommitID)
	}
}
