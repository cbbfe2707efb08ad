package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eventstore/internal/event"
)

// row scanning, grounded on internal/store/read.go's scanInvocation /
// scanCompletion pattern: a Scan into driver-friendly intermediates
// (strings, blobs), then a pass through the serializer for the opaque
// headers/events blobs.

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCommit(row rowScanner) (event.Commit, error) {
	var (
		streamID, commitID       string
		headersBlob, payloadBlob []byte
		stamp                    string
		dispatched               int
		c                        event.Commit
	)

	if err := row.Scan(
		&streamID, &commitID, &c.CommitSequence,
		&c.StartingStreamRevision, &c.StreamRevision,
		&stamp, &headersBlob, &payloadBlob, &dispatched,
	); err != nil {
		return event.Commit{}, err
	}

	sid, err := uuid.Parse(streamID)
	if err != nil {
		return event.Commit{}, fmt.Errorf("sqlstore: parse stream id: %w", err)
	}
	cid, err := uuid.Parse(commitID)
	if err != nil {
		return event.Commit{}, fmt.Errorf("sqlstore: parse commit id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return event.Commit{}, fmt.Errorf("sqlstore: parse commit stamp: %w", err)
	}

	c.StreamID = sid
	c.CommitID = cid
	c.CommitStamp = ts
	c.Dispatched = dispatched != 0

	var headers map[string]any
	if err := s.serializer.Deserialize(headersBlob, &headers); err != nil {
		return event.Commit{}, fmt.Errorf("sqlstore: decode headers: %w", err)
	}
	c.Headers = headers

	var events []event.EventRecord
	if err := s.serializer.Deserialize(payloadBlob, &events); err != nil {
		return event.Commit{}, fmt.Errorf("sqlstore: decode events: %w", err)
	}
	c.Events = events

	return c, nil
}

func (s *Store) scanCommitRows(rows *sql.Rows) ([]event.Commit, error) {
	var out []event.Commit
	for rows.Next() {
		c, err := s.scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []event.Commit{}
	}
	return out, nil
}

func (s *Store) marshalCommitBlobs(c event.Commit) (headers, payload []byte, err error) {
	headers, err = s.serializer.Serialize(c.Headers)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: encode headers: %w", err)
	}
	payload, err = s.serializer.Serialize(c.Events)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: encode events: %w", err)
	}
	return headers, payload, nil
}

func (s *Store) scanSnapshot(row rowScanner) (event.Snapshot, error) {
	var streamID string
	var snap event.Snapshot

	if err := row.Scan(&streamID, &snap.StreamRevision, &snap.Payload); err != nil {
		return event.Snapshot{}, err
	}
	sid, err := uuid.Parse(streamID)
	if err != nil {
		return event.Snapshot{}, fmt.Errorf("sqlstore: parse stream id: %w", err)
	}
	snap.StreamID = sid
	return snap, nil
}

func (s *Store) scanStreamHead(row rowScanner) (event.StreamHead, error) {
	var streamID string
	var head event.StreamHead

	if err := row.Scan(&streamID, &head.HeadRevision, &head.SnapshotRevision); err != nil {
		return event.StreamHead{}, err
	}
	sid, err := uuid.Parse(streamID)
	if err != nil {
		return event.StreamHead{}, fmt.Errorf("sqlstore: parse stream id: %w", err)
	}
	head.StreamID = sid
	return head, nil
}
