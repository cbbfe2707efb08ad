package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"testing"

	"github.com/google/uuid"
)

type fakeApplier struct {
	mu      sync.Mutex
	applied []HeadUpdate
	fail    bool
}

func (f *fakeApplier) ApplyHeadUpdate(ctx context.Context, upd HeadUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("simulated applier failure")
	}
	f.applied = append(f.applied, upd)
	return nil
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestHeadMaintainer_EnqueueNeverBlocks(t *testing.T) {
	applier := &fakeApplier{}
	m := NewHeadMaintainer(applier)
	defer m.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Enqueue(HeadUpdate{StreamID: uuid.New(), HeadRevision: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked under load")
	}

	waitUntil(t, time.Second, func() bool { return applier.count() == 1000 })
}

func TestHeadMaintainer_SwallowsApplierFailures(t *testing.T) {
	applier := &fakeApplier{fail: true}
	m := NewHeadMaintainer(applier)
	defer m.Stop()

	m.Enqueue(HeadUpdate{StreamID: uuid.New(), HeadRevision: 1})

	// Give the worker a moment to process; failure must not panic or crash
	// the goroutine, and Enqueue must still accept further work afterward.
	time.Sleep(20 * time.Millisecond)

	m.Enqueue(HeadUpdate{StreamID: uuid.New(), HeadRevision: 2})
	time.Sleep(20 * time.Millisecond)

	if got := applier.count(); got != 0 {
		t.Fatalf("applied count = %d, want 0 (applier always fails)", got)
	}
}

func TestHeadMaintainer_StopDrainsQueuedUpdates(t *testing.T) {
	applier := &fakeApplier{}
	m := NewHeadMaintainer(applier)

	for i := 0; i < 10; i++ {
		m.Enqueue(HeadUpdate{StreamID: uuid.New(), HeadRevision: i})
	}
	m.Stop()

	if got := applier.count(); got != 10 {
		t.Fatalf("applied count after Stop() = %d, want 10", got)
	}
}

func TestHeadMaintainer_EnqueueAfterStopIsSilentlyDropped(t *testing.T) {
	applier := &fakeApplier{}
	m := NewHeadMaintainer(applier)
	m.Stop()

	// Must not panic even though the worker has exited.
	m.Enqueue(HeadUpdate{StreamID: uuid.New(), HeadRevision: 1})
}
