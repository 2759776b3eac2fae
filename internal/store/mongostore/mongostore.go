// Package mongostore persists formulation records in MongoDB.
//
// Bulk imports are written as one unordered BulkWrite of upserts whose
// update only uses $setOnInsert, so a record that already exists is
// matched and left untouched. The unique index on curp created by
// EnsureIndexes is what makes this safe under concurrent imports: a
// racing insert fails with E11000, which InsertMany treats as a skip.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JonMunkholm/formulations/internal/core"
)

// duplicateKeyCode is the server error code for a unique index violation.
const duplicateKeyCode = 11000

// Options configures the connection.
type Options struct {
	URI             string
	Database        string
	Collection      string
	ConnectTimeout  time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// Store is a core.RecordStore backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Pinger      = (*Store)(nil)
)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(opts.ConnectTimeout)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.MaxConnIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(opts.MaxConnIdleTime)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", core.ErrStorageUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %w", core.ErrStorageUnavailable, err)
	}

	return &Store{
		client: client,
		coll:   client.Database(opts.Database).Collection(opts.Collection),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	return nil
}

// InsertMany performs the insert-if-absent batch write.
func (s *Store) InsertMany(ctx context.Context, records []core.Record, policy core.UpsertPolicy) (core.WriteResult, error) {
	if policy != core.InsertOnly {
		return core.WriteResult{}, fmt.Errorf("%w: %s", core.ErrUnsupportedPolicy, policy)
	}
	if len(records) == 0 {
		return core.WriteResult{}, nil
	}

	res, err := s.coll.BulkWrite(ctx, insertIfAbsentModels(records), options.BulkWrite().SetOrdered(false))
	if err != nil && !onlyDuplicateKeyErrors(err) {
		return core.WriteResult{}, fmt.Errorf("%w: bulk write: %w", core.ErrStorageUnavailable, err)
	}

	inserted := 0
	if res != nil {
		inserted = int(res.UpsertedCount)
	}
	if err != nil {
		slog.Debug("bulk write raced on curp", "error", err)
	}
	return core.WriteResult{Inserted: inserted, Skipped: len(records) - inserted}, nil
}

// insertIfAbsentModels builds one upsert per record that only sets fields on insert.
func insertIfAbsentModels(records []core.Record) []mongo.WriteModel {
	models := make([]mongo.WriteModel, len(records))
	for i, rec := range records {
		doc := toDocument(rec)
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "curp", Value: doc.CURP}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: doc}}).
			SetUpsert(true)
	}
	return models
}

// onlyDuplicateKeyErrors reports whether err is a bulk write failure made
// up exclusively of unique index violations.
func onlyDuplicateKeyErrors(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

// Create inserts a single record.
func (s *Store) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	doc := toDocument(rec)
	doc.ID = primitive.NewObjectID()

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.Record{}, core.ErrDuplicateKey
		}
		return core.Record{}, fmt.Errorf("%w: insert: %w", core.ErrStorageUnavailable, err)
	}
	return doc.record(), nil
}

// Exists reports whether a record with curp is stored.
func (s *Store) Exists(ctx context.Context, curp string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "curp", Value: curp}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: count: %w", core.ErrStorageUnavailable, err)
	}
	return n > 0, nil
}

// List returns every record sorted by fecha, newest first.
func (s *Store) List(ctx context.Context) ([]core.Record, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "fecha", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: find: %w", core.ErrStorageUnavailable, err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", core.ErrStorageUnavailable, err)
	}

	records := make([]core.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records, nil
}
