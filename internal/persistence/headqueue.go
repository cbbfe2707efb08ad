package persistence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/eventstore/internal/metrics"
)

// HeadUpdate describes one advance to apply to a stream head. SnapshotRevision
// is a pointer so a commit-driven update (which only ever advances
// HeadRevision) can be distinguished from a snapshot-driven update (which
// only ever advances SnapshotRevision).
type HeadUpdate struct {
	StreamID         uuid.UUID
	HeadRevision     int
	SnapshotRevision *int
}

// HeadApplier persists one HeadUpdate. Implementations live in each backend
// (internal/sqlstore, internal/docstore) since the upsert shape is
// backend-specific.
type HeadApplier interface {
	ApplyHeadUpdate(ctx context.Context, upd HeadUpdate) error
}

// HeadMaintainer runs stream-head updates on a background goroutine fed by
// an unbounded, signal-channel queue. This is the Go realization of
// spec.md's "fire-and-forget" requirement:
//
//   - Enqueue never blocks the calling Commit/AddSnapshot.
//   - Failures are logged and swallowed; the head is rebuildable from the
//     commit log, so losing an update is never a correctness problem.
//
// The queue shape (mutex-guarded slice + buffered signal channel, woken by
// a non-blocking send) is the same one the teacher uses for its invocation
// queue in internal/engine/queue.go, generalized from engine events to
// head-update jobs.
type HeadMaintainer struct {
	applier HeadApplier

	mu     sync.Mutex
	items  []HeadUpdate
	closed bool
	signal chan struct{}

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewHeadMaintainer starts the background worker. Call Stop to drain and
// shut it down.
func NewHeadMaintainer(applier HeadApplier) *HeadMaintainer {
	m := &HeadMaintainer{
		applier: applier,
		items:   make([]HeadUpdate, 0, 64),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Enqueue schedules upd for application. Never blocks. Returns immediately
// even if the worker has been stopped (the update is silently dropped, same
// as any other swallowed head-maintenance failure).
func (m *HeadMaintainer) Enqueue(upd HeadUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.items = append(m.items, upd)
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *HeadMaintainer) tryDequeue() (HeadUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return HeadUpdate{}, false
	}
	item := m.items[0]
	m.items[0] = HeadUpdate{}
	if len(m.items) == 1 {
		m.items = m.items[:0]
	} else {
		m.items = m.items[1:]
	}
	return item, true
}

func (m *HeadMaintainer) run() {
	defer m.wg.Done()
	ctx := context.Background()
	stopping := false
	for {
		for {
			upd, ok := m.tryDequeue()
			if !ok {
				break
			}
			if err := m.applier.ApplyHeadUpdate(ctx, upd); err != nil {
				// Never raises into the caller: the stream head is a
				// best-effort summary, rebuildable by scanning commits.
				slog.Warn("stream head update failed, swallowing",
					"stream_id", upd.StreamID,
					"error", err,
				)
				metrics.RecordHeadApplyFailure()
			}
		}
		if stopping {
			return
		}
		select {
		case <-m.stop:
			// Enqueue refuses new work once closed is set, so one more
			// drain pass picks up anything queued before Stop.
			stopping = true
		case <-m.signal:
		}
	}
}

// Stop signals the worker to exit after draining any queued updates and
// waits for it to finish. Safe to call once.
func (m *HeadMaintainer) Stop() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
}
