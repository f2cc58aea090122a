package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/model"
)

func newTestSession(id string) *model.Session {
	now := time.Now()
	return &model.Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Create(newTestSession("a"))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestGetUnknownMisses(t *testing.T) {
	s := New()
	defer s.Stop()

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestGetAgesOutPastIdleTTL(t *testing.T) {
	s := New(WithIdleTTL(1 * time.Millisecond))
	defer s.Stop()

	s.Create(newTestSession("a"))
	time.Sleep(5 * time.Millisecond)

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := New(WithMaxSessions(2))
	defer s.Stop()

	s.Create(newTestSession("a"))
	time.Sleep(time.Millisecond)
	s.Create(newTestSession("b"))
	time.Sleep(time.Millisecond)
	s.Create(newTestSession("c")) // forces eviction of "a"

	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.True(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Count())
}

func TestGetTouchesLRUOrder(t *testing.T) {
	s := New(WithMaxSessions(2))
	defer s.Stop()

	s.Create(newTestSession("a"))
	time.Sleep(time.Millisecond)
	s.Create(newTestSession("b"))

	// Touch "a" so it becomes most-recently-used; "b" should be evicted next.
	_, _ = s.Get("a")
	time.Sleep(time.Millisecond)
	s.Create(newTestSession("c"))

	_, ok := s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestDeleteRemoves(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Create(newTestSession("a"))
	s.Delete("a")

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())
}

func TestSetCreatesOnUnknown(t *testing.T) {
	s := New()
	defer s.Stop()

	s.Set(newTestSession("ghost"))
	assert.Equal(t, 1, s.Count())

	got, ok := s.Get("ghost")
	require.True(t, ok)
	assert.Equal(t, "ghost", got.ID)
}

func TestSetUpdatesExisting(t *testing.T) {
	s := New()
	defer s.Stop()

	sess := newTestSession("a")
	s.Create(sess)

	updated := newTestSession("a")
	updated.Turns = []model.Turn{{Role: model.RoleUser}}
	s.Set(updated)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Len(t, got.Turns, 1)
}
