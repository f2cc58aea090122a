package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets the cleanup sweep be driven deterministically instead of
// waiting on real wall-clock time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	ch  chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start, ch: make(chan time.Time, 1)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(time.Duration) <-chan time.Time { return f.ch }

func (f *fakeClock) Sleep(time.Duration) {}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	f.mu.Unlock()
	f.ch <- now
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	handler := rl.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec1 := httptest.NewRecorder()
	handler(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)

	rec3 := httptest.NewRecorder()
	handler(rec3, req)
	assert.Equal(t, http.StatusTooManyRequests, rec3.Code)
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	handler := rl.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:1234"
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "10.0.0.2:5678"

	recA := httptest.NewRecorder()
	handler(recA, reqA)
	assert.Equal(t, http.StatusOK, recA.Code)

	recB := httptest.NewRecorder()
	handler(recB, reqB)
	assert.Equal(t, http.StatusOK, recB.Code, "a different client must not share the first client's bucket")
}

func TestRateLimiterCleanupEvictsStaleClientsOnClockAdvance(t *testing.T) {
	fc := newFakeClock(time.Unix(0, 0))
	rl := newRateLimiter(5, fc)
	defer rl.Stop()

	rl.allow("10.0.0.1:1111")

	fc.advance(staleAfter + time.Minute)

	require.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		_, exists := rl.clients["10.0.0.1:1111"]
		return !exists
	}, time.Second, 5*time.Millisecond, "cleanup should evict a bucket idle past staleAfter")
}

func TestRateLimiterStopIsSafeToCallTwice(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
