// Package cache implements the cache-first read-through contract of spec
// §4.C4: reads consult a fresh cached copy first and only report a miss to
// the caller, who is expected to fetch upstream and Write back. Grounded
// on the teacher's internal/cache/cache.go (tiering/TTL documentation,
// left as an unimplemented interface there) and on
// internal/integration/backend/proxy.go's resourceCache TTL-entry check
// for the freshness-predicate shape.
package cache

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/store"
)

// Kind identifies a class of cached document, each with its own TTL
// (spec §6, "Cache kinds and TTLs").
type Kind string

const (
	KindProfile         Kind = "profile"
	KindPost            Kind = "post"
	KindReel            Kind = "reel"
	KindHashtagPost     Kind = "hashtag_post"
	KindHashtagMeta     Kind = "hashtag_meta"
	KindSnapshotHistory Kind = "snapshot_history"
)

// TTLs is the default freshness window per kind. Values are parameters,
// not core invariants (spec §6).
var TTLs = map[Kind]time.Duration{
	KindProfile:         24 * time.Hour,
	KindPost:            6 * time.Hour,
	KindReel:            6 * time.Hour,
	KindHashtagPost:     12 * time.Hour,
	KindHashtagMeta:     12 * time.Hour,
	KindSnapshotHistory: 180 * 24 * time.Hour,
}

// Document is the stored shape: an opaque payload plus the freshness stamp.
type Document struct {
	Key      string         `bson:"key"`
	Payload  map[string]any `bson:"payload"`
	CachedAt time.Time      `bson:"cachedAt"`
}

// ReadThrough is the cache-first read-through interface (spec §4.C4). A
// miss is reported as (nil, false, nil) — it is not an error.
type ReadThrough interface {
	Read(ctx context.Context, kind Kind, key string) (map[string]any, bool, error)
	Write(ctx context.Context, kind Kind, key string, payload map[string]any)
}

// Mongo is the Store-backed implementation. One collection per Kind keeps
// index and TTL-sweep scope tight.
type Mongo struct {
	store *store.Store
	log   *zap.Logger
}

func New(s *store.Store, log *zap.Logger) *Mongo {
	return &Mongo{store: s, log: log}
}

func (m *Mongo) collection(kind Kind) *store.Collection[Document] {
	return store.NewCollection[Document](m.store, "cache_"+string(kind))
}

// EnsureTTLIndexes creates the physical-expiry TTL index for every known
// kind. Safe to call repeatedly (Mongo no-ops on an existing index).
func (m *Mongo) EnsureTTLIndexes(ctx context.Context) error {
	for kind, ttl := range TTLs {
		if err := m.collection(kind).CreateTTLIndex(ctx, "cachedAt", ttl); err != nil {
			return err
		}
	}
	return nil
}

// Read returns (payload, true, nil) iff a document exists for (kind, key)
// and satisfies the freshness predicate for kind: now - cachedAt < TTL.
// The TTL index handles eventual physical deletion; this check never trusts
// it alone, since Mongo's TTL reaper runs on its own background cadence
// (spec §3: "reads never serve stale data even before physical expiry").
func (m *Mongo) Read(ctx context.Context, kind Kind, key string) (map[string]any, bool, error) {
	doc, found, err := m.collection(kind).FindOne(ctx, bson.M{"key": key})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	ttl := TTLs[kind]
	if time.Since(doc.CachedAt) >= ttl {
		return nil, false, nil
	}
	return doc.Payload, true, nil
}

// Write upserts payload under (kind, key), stamping cachedAt := now. Per
// spec §4.C4, cache writes are best-effort: a failure is logged and
// swallowed, never propagated to the caller.
func (m *Mongo) Write(ctx context.Context, kind Kind, key string, payload map[string]any) {
	doc := Document{Key: key, Payload: payload, CachedAt: time.Now()}
	err := m.collection(kind).BulkUpsert(ctx, "key", map[string]Document{key: doc})
	if err != nil && m.log != nil {
		m.log.Warn("cache write failed",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// WithCacheHit stamps the conventional optional cacheHit field (spec §6)
// onto a tool payload.
func WithCacheHit(payload map[string]any, hit bool) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["cacheHit"] = hit
	return payload
}
