// Package hooks holds small post-tool side effects registered on the
// dispatcher via tools.Registry.RegisterHook (Design Note 9's seam for
// avoiding an import cycle between a tool and whatever reacts to it).
package hooks

import (
	"context"
	"sync"
	"time"
)

// ProfileSeen tracks which usernames the orchestrator has fetched a
// profile for, purely as an in-memory signal for operators (surfaced via
// /health) — it holds no authority over caching or monitoring decisions.
type ProfileSeen struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewProfileSeen returns an empty tracker.
func NewProfileSeen() *ProfileSeen {
	return &ProfileSeen{seen: make(map[string]time.Time)}
}

// Mark records username as seen at the current time.
func (p *ProfileSeen) Mark(username string) {
	if username == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[username] = time.Now()
}

// Seen reports whether username has been marked.
func (p *ProfileSeen) Seen(username string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.seen[username]
	return ok
}

// Count returns how many distinct usernames have been marked.
func (p *ProfileSeen) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.seen)
}

// Hook returns a tools.PostHook-shaped function that marks the username
// carried in a successful get_profile call's result payload. Typed as a
// plain func to avoid importing internal/tools here; callers pass it
// straight to Registry.RegisterHook, whose PostHook type is the same shape.
func (p *ProfileSeen) Hook() func(ctx context.Context, name string, payload map[string]any) {
	return func(ctx context.Context, name string, payload map[string]any) {
		if name != "get_profile" {
			return
		}
		if username, ok := payload["username"].(string); ok {
			p.Mark(username)
		}
	}
}
