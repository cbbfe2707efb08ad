// Package docstore implements the persistence.Engine contract over a
// document-store backend, modeled on MongoDB's document shape and
// indexing model (go.mongodb.org/mongo-driver's bson package, present in
// the retrieval pack). Two engines share the record types in this file:
//
//   - Store: an embedded, dependency-free engine that still serializes
//     every record through encoding/mongo-driver's bson package, so the
//     record shape and uniqueness semantics match a real deployment even
//     though records live in process memory rather than in mongod.
//   - MongoEngine: a thin wrapper around a genuine *mongo.Client for
//     production use.
//
// Per spec.md §4.4, the document store's primary key encodes
// (StreamID, CommitSequence) directly as _id, so a duplicate append is
// rejected by the same index MongoDB would use for a relational
// unique(stream_id, commit_sequence) constraint.
package docstore

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/eventstore/internal/event"
)

// commitKey formats the document primary key for (streamID, commitSequence).
func commitKey(streamID string, commitSequence int) string {
	return fmt.Sprintf("%s:%d", streamID, commitSequence)
}

// commitDoc is the BSON shape of a persisted commit.
type commitDoc struct {
	ID                     string    `bson:"_id"`
	StreamID               string    `bson:"stream_id"`
	CommitID               string    `bson:"commit_id"`
	CommitSequence         int       `bson:"commit_sequence"`
	StartingStreamRevision int       `bson:"starting_stream_revision"`
	StreamRevision         int       `bson:"stream_revision"`
	CommitStamp            time.Time `bson:"commit_stamp"`
	Headers                []byte    `bson:"headers"`
	Payload                []byte    `bson:"payload"`
	Dispatched             bool      `bson:"dispatched"`
}

// snapshotDoc is the BSON shape of a persisted snapshot.
type snapshotDoc struct {
	ID             string `bson:"_id"`
	StreamID       string `bson:"stream_id"`
	StreamRevision int    `bson:"stream_revision"`
	Payload        []byte `bson:"payload"`
}

// streamHeadDoc is the BSON shape of a persisted stream head.
type streamHeadDoc struct {
	ID               string `bson:"_id"`
	HeadRevision     int    `bson:"head_revision"`
	SnapshotRevision int    `bson:"snapshot_revision"`
}

func toCommitDoc(s serializerLike, c event.Commit) (commitDoc, error) {
	headers, err := s.Serialize(c.Headers)
	if err != nil {
		return commitDoc{}, fmt.Errorf("docstore: encode headers: %w", err)
	}
	payload, err := s.Serialize(c.Events)
	if err != nil {
		return commitDoc{}, fmt.Errorf("docstore: encode events: %w", err)
	}
	return commitDoc{
		ID:                     commitKey(c.StreamID.String(), c.CommitSequence),
		StreamID:               c.StreamID.String(),
		CommitID:               c.CommitID.String(),
		CommitSequence:         c.CommitSequence,
		StartingStreamRevision: c.StartingStreamRevision,
		StreamRevision:         c.StreamRevision,
		CommitStamp:            c.CommitStamp.UTC(),
		Headers:                headers,
		Payload:                payload,
		Dispatched:             c.Dispatched,
	}, nil
}

func fromCommitDoc(s serializerLike, d commitDoc) (event.Commit, error) {
	streamID, err := parseUUID(d.StreamID)
	if err != nil {
		return event.Commit{}, err
	}
	commitID, err := parseUUID(d.CommitID)
	if err != nil {
		return event.Commit{}, err
	}

	var headers map[string]any
	if err := s.Deserialize(d.Headers, &headers); err != nil {
		return event.Commit{}, fmt.Errorf("docstore: decode headers: %w", err)
	}
	var events []event.EventRecord
	if err := s.Deserialize(d.Payload, &events); err != nil {
		return event.Commit{}, fmt.Errorf("docstore: decode events: %w", err)
	}

	return event.Commit{
		StreamID:               streamID,
		CommitID:               commitID,
		CommitSequence:         d.CommitSequence,
		StartingStreamRevision: d.StartingStreamRevision,
		StreamRevision:         d.StreamRevision,
		CommitStamp:            d.CommitStamp,
		Headers:                headers,
		Events:                 events,
		Dispatched:             d.Dispatched,
	}, nil
}

// encodeBSON/decodeBSON round-trip a doc through real BSON bytes even in
// the embedded engine, so the stored representation matches what a mongod
// deployment would actually persist.
func encodeBSON(v any) ([]byte, error) {
	return bson.Marshal(v)
}

func decodeBSON(data []byte, out any) error {
	return bson.Unmarshal(data, out)
}

// serializerLike is the subset of serializer.Serializer the mapper needs;
// declared locally so record.go does not import internal/serializer
// directly (kept import-light, mirroring the teacher's marshal.go which
// only imports the ir package it maps, not the store package).
type serializerLike interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, out any) error
}
