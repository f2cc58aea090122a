package scheduler

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kubilitics/kubilitics-ai/internal/store"
)

// TrackedPost is one post registered for ongoing monitoring by
// monitor_active_posts. RegisteredAt anchors the age-based check interval;
// LastCheckedAt gates whether a tick actually calls the monitoring tool.
type TrackedPost struct {
	PostID        string    `bson:"postId"`
	RegisteredAt  time.Time `bson:"registeredAt"`
	LastCheckedAt time.Time `bson:"lastCheckedAt"`
	Deleted       bool      `bson:"deleted"`
}

// PostStore is the collaborator monitor_active_posts needs: the set of
// posts still under active monitoring, and a way to record that one was
// just checked. Kept as an interface so the job can be tested without a
// live Mongo instance.
type PostStore interface {
	ActivePosts(ctx context.Context) ([]TrackedPost, error)
	MarkChecked(ctx context.Context, postID string, at time.Time) error
}

// mongoPostStore adapts store.Collection[TrackedPost] to PostStore, the
// same wrapping internal/cache uses over the same generic collection type.
type mongoPostStore struct {
	col *store.Collection[TrackedPost]
}

// NewMongoPostStore returns a PostStore backed by the named collection.
func NewMongoPostStore(s *store.Store, collection string) PostStore {
	return &mongoPostStore{col: store.NewCollection[TrackedPost](s, collection)}
}

func (m *mongoPostStore) ActivePosts(ctx context.Context) ([]TrackedPost, error) {
	return m.col.Find(ctx, bson.M{"deleted": false}, bson.D{{Key: "registeredAt", Value: 1}}, 0)
}

// MarkChecked updates LastCheckedAt in place. BulkUpsert replaces the whole
// document via $set, so the current record is read first and only that one
// field is changed — otherwise RegisteredAt and Deleted would be zeroed.
func (m *mongoPostStore) MarkChecked(ctx context.Context, postID string, at time.Time) error {
	existing, found, err := m.col.FindOne(ctx, bson.M{"postId": postID})
	if err != nil {
		return err
	}
	if !found {
		existing = TrackedPost{PostID: postID, RegisteredAt: at}
	}
	existing.LastCheckedAt = at
	return m.col.BulkUpsert(ctx, "postId", map[string]TrackedPost{postID: existing})
}
