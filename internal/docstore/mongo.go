package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/eventstore/internal/event"
	"github.com/roach88/eventstore/internal/metrics"
	"github.com/roach88/eventstore/internal/persistence"
	"github.com/roach88/eventstore/internal/serializer"
)

const (
	commitsCollection     = "commits"
	snapshotsCollection   = "snapshots"
	streamHeadsCollection = "stream_heads"
)

// MongoEngine is the production document-store engine: a thin wrapper
// around a genuine *mongo.Client. It persists the same commitDoc /
// snapshotDoc / streamHeadDoc shapes as the embedded Store, relying on
// MongoDB's own unique indexes (rather than an in-process mutex) to
// enforce the uniqueness invariants spec.md §4.1 requires.
type MongoEngine struct {
	client     *mongo.Client
	db         *mongo.Database
	serializer serializer.Serializer
	heads      *persistence.HeadMaintainer
}

var _ persistence.Engine = (*MongoEngine)(nil)

// DialMongo connects to uri and returns a MongoEngine backed by database
// dbName. The caller must eventually call Close.
func DialMongo(ctx context.Context, uri, dbName string, opts ...Option) (*MongoEngine, error) {
	o := options{serializer: serializer.NewJSON()}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, event.NewStorage(fmt.Errorf("docstore: connect: %w", err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, event.NewStorage(fmt.Errorf("docstore: ping: %w", err))
	}

	m := &MongoEngine{
		client:     client,
		db:         client.Database(dbName),
		serializer: o.serializer,
	}
	m.heads = persistence.NewHeadMaintainer(m)
	return m, nil
}

// Initialize creates the unique indexes a real deployment needs: the
// composite (stream_id, commit_sequence) key doubles as _id already, but
// commit_id and (stream_id, stream_revision) need their own indexes, plus
// one on dispatched to serve GetUndispatchedCommits, and one on
// commit_stamp for GetFromStamp.
func (m *MongoEngine) Initialize(ctx context.Context) error {
	commits := m.db.Collection(commitsCollection)
	_, err := commits.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "commit_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "stream_id", Value: 1}, {Key: "stream_revision", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "dispatched", Value: 1}}},
		{Keys: bson.D{{Key: "commit_stamp", Value: 1}}},
	})
	if err != nil {
		return event.NewStorage(fmt.Errorf("docstore: create commit indexes: %w", err))
	}

	snapshots := m.db.Collection(snapshotsCollection)
	if _, err := snapshots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "stream_id", Value: 1}, {Key: "stream_revision", Value: -1}},
	}); err != nil {
		return event.NewStorage(fmt.Errorf("docstore: create snapshot index: %w", err))
	}

	slog.Info("docstore initialized", "mode", "mongo", "database", m.db.Name())
	return nil
}

// Close disconnects the client and stops the head maintainer.
func (m *MongoEngine) Close() error {
	m.heads.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Commit appends one commit, relying on the commits collection's _id
// (stream_id:commit_sequence) and commit_id uniqueness indexes to detect
// collisions, then applies the same CommitID-comparison discrimination the
// other two backends use.
func (m *MongoEngine) Commit(ctx context.Context, attempt event.Commit) error {
	if err := attempt.Validate(); err != nil {
		return err
	}

	doc, err := toCommitDoc(m.serializer, attempt)
	if err != nil {
		return event.NewStorage(err)
	}

	_, err = m.db.Collection(commitsCollection).InsertOne(ctx, doc)
	if err == nil {
		m.heads.Enqueue(persistence.HeadUpdate{
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

	if !mongo.IsDuplicateKeyError(err) {
		slog.Error("commit failed", "stream_id", attempt.StreamID, "error", err)
		return event.NewStorage(err)
	}

	var existing commitDoc
	findErr := m.db.Collection(commitsCollection).FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&existing)
	if findErr != nil {
		if errors.Is(findErr, mongo.ErrNoDocuments) {
			// The collision was on commit_id or (stream_id, stream_revision)
			// rather than the primary key: reported as Storage, as the
			// embedded Store and internal/sqlstore do.
			return event.NewStorage(fmt.Errorf("docstore: unique index collision outside (stream_id, commit_sequence): %w", err))
		}
		return event.NewStorage(fmt.Errorf("discriminate conflict: %w", findErr))
	}
	if existing.CommitID == doc.CommitID {
		metrics.RecordConflict(string(event.KindDuplicateCommit))
		return event.NewDuplicateCommit(attempt.StreamID, attempt.CommitID)
	}
	metrics.RecordConflict(string(event.KindConcurrency))
	return event.NewConcurrency(attempt.StreamID, attempt.CommitID)
}

// GetFrom returns commits on streamID whose window intersects
// [minRevision, maxRevision], ordered ascending by StartingStreamRevision.
func (m *MongoEngine) GetFrom(ctx context.Context, streamID uuid.UUID, minRevision, maxRevision int) (persistence.CommitIterator, error) {
	filter := bson.M{
		"stream_id":                streamID.String(),
		"starting_stream_revision": bson.M{"$lte": maxRevision},
		"stream_revision":          bson.M{"$gte": minRevision},
	}
	opts := options.Find().SetSort(bson.D{{Key: "starting_stream_revision", Value: 1}})
	return m.findCommits(ctx, filter, opts)
}

// GetFromStamp returns all commits with CommitStamp >= start, ordered
// ascending by CommitStamp.
func (m *MongoEngine) GetFromStamp(ctx context.Context, start time.Time) (persistence.CommitIterator, error) {
	filter := bson.M{"commit_stamp": bson.M{"$gte": start.UTC()}}
	opts := options.Find().SetSort(bson.D{{Key: "commit_stamp", Value: 1}})
	return m.findCommits(ctx, filter, opts)
}

// GetUndispatchedCommits returns all commits with Dispatched == false,
// ordered ascending by CommitStamp.
func (m *MongoEngine) GetUndispatchedCommits(ctx context.Context) (persistence.CommitIterator, error) {
	filter := bson.M{"dispatched": false}
	opts := options.Find().SetSort(bson.D{{Key: "commit_stamp", Value: 1}})
	return m.findCommits(ctx, filter, opts)
}

func (m *MongoEngine) findCommits(ctx context.Context, filter bson.M, opts *options.FindOptions) (persistence.CommitIterator, error) {
	cur, err := m.db.Collection(commitsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, event.NewStorage(err)
	}
	defer cur.Close(ctx)

	var docs []commitDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, event.NewStorage(err)
	}

	out := make([]event.Commit, 0, len(docs))
	for _, d := range docs {
		c, err := fromCommitDoc(m.serializer, d)
		if err != nil {
			return nil, event.NewStorage(err)
		}
		out = append(out, c)
	}
	return persistence.NewCommitSlice(out), nil
}

// MarkCommitAsDispatched monotonically sets Dispatched = true. Idempotent.
func (m *MongoEngine) MarkCommitAsDispatched(ctx context.Context, streamID, commitID uuid.UUID) error {
	filter := bson.M{"stream_id": streamID.String(), "commit_id": commitID.String()}
	_, err := m.db.Collection(commitsCollection).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"dispatched": true}})
	if err != nil {
		return event.NewStorage(err)
	}
	return nil
}

// GetSnapshot returns the snapshot of greatest StreamRevision <= maxRevision,
// or (nil, nil) if none exists.
func (m *MongoEngine) GetSnapshot(ctx context.Context, streamID uuid.UUID, maxRevision int) (*event.Snapshot, error) {
	filter := bson.M{"stream_id": streamID.String(), "stream_revision": bson.M{"$lte": maxRevision}}
	opts := options.FindOne().SetSort(bson.D{{Key: "stream_revision", Value: -1}})

	var d snapshotDoc
	err := m.db.Collection(snapshotsCollection).FindOne(ctx, filter, opts).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, event.NewStorage(err)
	}

	id, err := parseUUID(d.StreamID)
	if err != nil {
		return nil, event.NewStorage(err)
	}
	return &event.Snapshot{StreamID: id, StreamRevision: d.StreamRevision, Payload: d.Payload}, nil
}

// AddSnapshot inserts a snapshot and enqueues a stream-head update. Returns
// false (not an error) if a snapshot already exists at that revision.
func (m *MongoEngine) AddSnapshot(ctx context.Context, snapshot event.Snapshot) (bool, error) {
	key := commitKey(snapshot.StreamID.String(), snapshot.StreamRevision)
	doc := snapshotDoc{ID: key, StreamID: snapshot.StreamID.String(), StreamRevision: snapshot.StreamRevision, Payload: snapshot.Payload}

	_, err := m.db.Collection(snapshotsCollection).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, event.NewStorage(err)
	}

	rev := snapshot.StreamRevision
	m.heads.Enqueue(persistence.HeadUpdate{
		StreamID:         snapshot.StreamID,
		SnapshotRevision: &rev,
	})
	metrics.RecordSnapshot()
	return true, nil
}

// GetStreamsToSnapshot returns stream heads whose SnapshotAge >= maxThreshold.
func (m *MongoEngine) GetStreamsToSnapshot(ctx context.Context, maxThreshold int) (persistence.StreamHeadIterator, error) {
	cur, err := m.db.Collection(streamHeadsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, event.NewStorage(err)
	}
	defer cur.Close(ctx)

	var docs []streamHeadDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, event.NewStorage(err)
	}

	var heads []event.StreamHead
	for _, d := range docs {
		if d.HeadRevision-d.SnapshotRevision < maxThreshold {
			continue
		}
		id, err := parseUUID(d.ID)
		if err != nil {
			return nil, event.NewStorage(err)
		}
		heads = append(heads, event.StreamHead{StreamID: id, HeadRevision: d.HeadRevision, SnapshotRevision: d.SnapshotRevision})
	}
	return persistence.NewStreamHeadSlice(heads), nil
}

// ApplyHeadUpdate implements persistence.HeadApplier via an upsert: create
// the stream head document if absent, then unconditionally set the
// relevant field. Last write wins, same as the other two backends.
func (m *MongoEngine) ApplyHeadUpdate(ctx context.Context, upd persistence.HeadUpdate) error {
	coll := m.db.Collection(streamHeadsCollection)
	id := upd.StreamID.String()

	field := "head_revision"
	value := upd.HeadRevision
	if upd.SnapshotRevision != nil {
		field = "snapshot_revision"
		value = *upd.SnapshotRevision
	}

	_, err := coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: value}, "$setOnInsert": bson.M{"_id": id}},
		options.Update().SetUpsert(true),
	)
	return err
}
