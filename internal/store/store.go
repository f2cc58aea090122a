// Package store adapts MongoDB to the typed collection contract the cache
// layer (internal/cache) reads and writes through: Find / FindOne /
// Aggregate / BulkUpsert / CreateTTLIndex (spec §1's "document store ...
// treated as a collection interface"). Grounded on
// goadesign-goa-ai/features/run/mongo/clients/mongo/client.go and
// features/run/mongo/search/repository.go (context-scoped operations with
// a default timeout, options-builder usage, collection wrapper
// construction) translated from the v1 driver import path used there to
// mongo-driver/v2.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
)

const defaultOpTimeout = 10 * time.Second

// Store owns the Mongo client and hands out typed collections.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// Connect dials uri and selects database dbName. It does not block on
// Ping; callers that need a health check call Ping explicitly (the
// /health handler in internal/transport does, on every request).
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.Internal(err, "connect to store")
	}
	return &Store{client: client, db: client.Database(dbName), timeout: defaultOpTimeout}, nil
}

// Ping checks connectivity with a short, bounded deadline — used by the
// /health handler to report db "ok" vs "unreachable" (SPEC_FULL §8).
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.Upstream(err, "store ping failed")
	}
	return nil
}

// Disconnect releases the underlying connection pool.
func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Collection is a generic, typed wrapper over one Mongo collection.
type Collection[T any] struct {
	raw     *mongo.Collection
	timeout time.Duration
}

// NewCollection returns a typed handle for name. T must be BSON-marshalable.
func NewCollection[T any](s *Store, name string) *Collection[T] {
	return &Collection[T]{raw: s.db.Collection(name), timeout: s.timeout}
}

func (c *Collection[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Find returns every document matching filter, ordered by sort if non-nil.
func (c *Collection[T]) Find(ctx context.Context, filter bson.M, sort bson.D, limit int64) ([]T, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := c.raw.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Upstream(err, "find failed")
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Upstream(err, "decode find results")
	}
	return out, nil
}

// FindOne returns the first document matching filter, or (zero, false, nil)
// on a miss — callers treat a miss as a cache miss, not an error.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M) (T, bool, error) {
	var zero T
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out T
	err := c.raw.FindOne(ctx, filter).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, apperr.Upstream(err, "find one failed")
	}
	return out, true, nil
}

// Aggregate runs pipeline and decodes every resulting document.
func (c *Collection[T]) Aggregate(ctx context.Context, pipeline []bson.M) ([]T, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cur, err := c.raw.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Upstream(err, "aggregate failed")
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Upstream(err, "decode aggregate results")
	}
	return out, nil
}

// BulkUpsert upserts every (key, document) pair in one batched call when
// there is more than one; a single pair goes through UpdateOne directly.
// Idempotent on key: the caller's final write for a key wins.
func (c *Collection[T]) BulkUpsert(ctx context.Context, keyField string, docs map[string]T) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if len(docs) == 1 {
		for key, doc := range docs {
			_, err := c.raw.UpdateOne(ctx,
				bson.M{keyField: key},
				bson.M{"$set": doc},
				options.UpdateOne().SetUpsert(true),
			)
			if err != nil {
				return apperr.Upstream(err, "upsert failed")
			}
		}
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for key, doc := range docs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{keyField: key}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}
	_, err := c.raw.BulkWrite(ctx, models)
	if err != nil {
		return apperr.Upstream(err, "bulk upsert failed")
	}
	return nil
}

// CreateTTLIndex creates a TTL index on field, causing the store to
// physically reap documents after ttl. The cache layer does not rely on
// this for correctness — it always re-checks freshness on read — this is
// eventual cleanup only (spec §3: "CachedDocument ... TTL *indexes* for
// eventual physical deletion").
func (c *Collection[T]) CreateTTLIndex(ctx context.Context, field string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	seconds := int32(ttl.Seconds())
	_, err := c.raw.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(seconds),
	})
	if err != nil {
		return apperr.Internal(err, "create TTL index on %s", field)
	}
	return nil
}
