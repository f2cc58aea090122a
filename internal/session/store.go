// Package session implements the bounded, idle-swept session store of
// spec.md §4.C6. Grounded on internal/middleware/ratelimit.go's
// map[string]*bucket plus ticker-driven cleanup goroutine, generalized
// from per-client token buckets to per-session conversation state, and
// from a flat map to an LRU (container/list) so eviction-on-pressure has
// an O(1) oldest-entry to reach for.
package session

import (
	"container/list"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/metrics"
	"github.com/kubilitics/kubilitics-ai/internal/model"
)

// DefaultMaxSessions is the eviction-on-pressure ceiling (spec §4.C6).
const DefaultMaxSessions = 500

// DefaultIdleTTL is how long a session may sit untouched before the sweep
// reclaims it.
const DefaultIdleTTL = 30 * time.Minute

// DefaultSweepInterval is how often the idle sweep runs.
const DefaultSweepInterval = 5 * time.Minute

type entry struct {
	session   *model.Session
	updatedAt time.Time
	elem      *list.Element // this entry's node in lru
}

// Store is a bounded, concurrency-safe, LRU-by-updatedAt session store.
// Sessions idle longer than idleTTL are reclaimed by a background sweep;
// sessions beyond maxSessions are evicted oldest-first on insert.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*entry
	lru         *list.List // front = most recently touched, back = oldest
	maxSessions int
	idleTTL     time.Duration

	sweepTicker *time.Ticker
	stopCh      chan struct{}
}

// Option customizes a Store at construction time.
type Option func(*Store)

// WithMaxSessions overrides DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

// WithIdleTTL overrides DefaultIdleTTL.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) { s.idleTTL = d }
}

// New builds a Store and starts its idle-sweep goroutine. Call Stop to
// shut the sweep down.
func New(opts ...Option) *Store {
	s := &Store{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		maxSessions: DefaultMaxSessions,
		idleTTL:     DefaultIdleTTL,
		sweepTicker: time.NewTicker(DefaultSweepInterval),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweep()
	return s
}

// Stop halts the background sweep. Safe to call once.
func (s *Store) Stop() {
	s.sweepTicker.Stop()
	close(s.stopCh)
}

// Create inserts a brand-new session, evicting the least-recently-touched
// entry first if the store is already at capacity.
func (s *Store) Create(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(sess)
}

// insertLocked inserts sess as a new entry, evicting the
// least-recently-touched entry first if the store is already at capacity.
// Caller holds s.mu.
func (s *Store) insertLocked(sess *model.Session) {
	if len(s.entries) >= s.maxSessions {
		s.evictOldestLocked()
	}

	e := &entry{session: sess, updatedAt: sess.UpdatedAt}
	e.elem = s.lru.PushFront(sess.ID)
	s.entries[sess.ID] = e
	metrics.SessionsActive.Set(float64(len(s.entries)))
}

// Get returns the session for id and marks it most-recently-touched. The
// second return value is false if id is unknown or has aged out.
func (s *Store) Get(id string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if time.Since(e.updatedAt) >= s.idleTTL {
		s.removeLocked(id)
		metrics.SessionsEvictedTotal.WithLabelValues("idle_ttl").Inc()
		return nil, false
	}
	s.touchLocked(e)
	return e.session, true
}

// Set replaces the stored session for id (same identity, updated turns)
// and marks it most-recently-touched. Per spec.md §4.C6 it creates the
// session (with eviction on pressure) if id is not already held — most
// callers resolve via Create first, but Set does not depend on that.
func (s *Store) Set(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sess.ID]
	if !ok {
		s.insertLocked(sess)
		return
	}
	e.session = sess
	s.touchLocked(e)
}

// Delete removes a session outright, e.g. on explicit client teardown.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Count returns the number of sessions currently held.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) touchLocked(e *entry) {
	e.updatedAt = time.Now()
	e.session.UpdatedAt = e.updatedAt
	s.lru.MoveToFront(e.elem)
}

func (s *Store) removeLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.lru.Remove(e.elem)
	delete(s.entries, id)
	metrics.SessionsActive.Set(float64(len(s.entries)))
}

// evictOldestLocked drops the least-recently-touched session. Caller
// holds s.mu.
func (s *Store) evictOldestLocked() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lru.Remove(back)
	delete(s.entries, id)
	metrics.SessionsEvictedTotal.WithLabelValues("lru_pressure").Inc()
}

// sweep periodically reclaims sessions idle past idleTTL. It walks from
// the LRU tail since idle entries accumulate there.
func (s *Store) sweep() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.sweepTicker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for back := s.lru.Back(); back != nil; {
		id := back.Value.(string)
		e, ok := s.entries[id]
		if !ok {
			prev := back.Prev()
			s.lru.Remove(back)
			back = prev
			continue
		}
		if now.Sub(e.updatedAt) < s.idleTTL {
			// list is LRU-ordered: once one entry is fresh, everything
			// closer to the front is fresher too.
			break
		}
		prev := back.Prev()
		s.lru.Remove(back)
		delete(s.entries, id)
		metrics.SessionsEvictedTotal.WithLabelValues("idle_ttl").Inc()
		back = prev
	}
	metrics.SessionsActive.Set(float64(len(s.entries)))
}
