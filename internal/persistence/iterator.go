package persistence

import (
	"context"

	"github.com/roach88/eventstore/internal/event"
)

// CommitSlice adapts a pre-materialised, already-ordered slice of commits
// to the CommitIterator contract. Both backends run a single backend query
// per operation and hand the ordered result set to this adapter; the
// "lazy sequence" part of the spec is about the public Next/Close shape,
// not about forcing every backend to stream row-by-row from the driver.
type CommitSlice struct {
	items []event.Commit
	pos   int
}

// NewCommitSlice wraps an already-ordered slice as a CommitIterator.
func NewCommitSlice(items []event.Commit) *CommitSlice {
	return &CommitSlice{items: items}
}

// Next returns the next commit, or (zero, false, nil) when exhausted.
func (s *CommitSlice) Next(ctx context.Context) (event.Commit, bool, error) {
	if err := ctx.Err(); err != nil {
		return event.Commit{}, false, err
	}
	if s.pos >= len(s.items) {
		return event.Commit{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// Close is a no-op: CommitSlice holds no backend resources.
func (s *CommitSlice) Close() error { return nil }

// StreamHeadSlice is the StreamHeadIterator analogue of CommitSlice.
type StreamHeadSlice struct {
	items []event.StreamHead
	pos   int
}

// NewStreamHeadSlice wraps an already-ordered slice as a StreamHeadIterator.
func NewStreamHeadSlice(items []event.StreamHead) *StreamHeadSlice {
	return &StreamHeadSlice{items: items}
}

// Next returns the next stream head, or (zero, false, nil) when exhausted.
func (s *StreamHeadSlice) Next(ctx context.Context) (event.StreamHead, bool, error) {
	if err := ctx.Err(); err != nil {
		return event.StreamHead{}, false, err
	}
	if s.pos >= len(s.items) {
		return event.StreamHead{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// Close is a no-op: StreamHeadSlice holds no backend resources.
func (s *StreamHeadSlice) Close() error { return nil }
