// Package middleware holds HTTP middleware shared by the transport
// handlers. RateLimiter is grounded on the teacher's token-bucket
// implementation, adapted to run on the tree's clock.Clock seam instead
// of a bare time.Ticker so its eviction loop can be driven by a fake
// clock in tests rather than by real wall-clock sleeps.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/clock"
)

// cleanupInterval is how often stale client buckets are swept.
const cleanupInterval = 5 * time.Minute

// staleAfter is how long a client's bucket survives without a request
// before cleanup reclaims it.
const staleAfter = 10 * time.Minute

// RateLimiter implements a simple token bucket rate limiter per client IP.
type RateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*bucket
	requestsPerMin int
	clk            clock.Clock
	stopOnce       sync.Once
	cleanupDone    chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with the specified requests per minute.
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	return newRateLimiter(requestsPerMin, clock.Real{})
}

// newRateLimiter is the clock-injectable constructor tests use to drive
// the cleanup loop deterministically.
func newRateLimiter(requestsPerMin int, clk clock.Clock) *RateLimiter {
	rl := &RateLimiter{
		clients:        make(map[string]*bucket),
		requestsPerMin: requestsPerMin,
		clk:            clk,
		cleanupDone:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Middleware returns an HTTP middleware that enforces rate limiting.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := r.RemoteAddr

		if !rl.allow(clientIP) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

// allow checks if a request from the given client should be allowed.
func (rl *RateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clk.Now()
	b, exists := rl.clients[clientIP]

	if !exists {
		// New client, create bucket with full tokens.
		rl.clients[clientIP] = &bucket{
			tokens:     rl.requestsPerMin - 1,
			lastRefill: now,
		}
		return true
	}

	// Refill tokens based on time elapsed.
	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed.Minutes() * float64(rl.requestsPerMin))

	if tokensToAdd > 0 {
		b.tokens = min(rl.requestsPerMin, b.tokens+tokensToAdd)
		b.lastRefill = now
	}

	// Check if we have tokens available.
	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// cleanup removes stale client entries, waking on clk.After rather than a
// bare time.Ticker so the sweep interval is swappable under test.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupDone:
			return
		case <-rl.clk.After(cleanupInterval):
			rl.mu.Lock()
			now := rl.clk.Now()
			for clientIP, b := range rl.clients {
				if now.Sub(b.lastRefill) > staleAfter {
					delete(rl.clients, clientIP)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop stops the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.cleanupDone) })
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
