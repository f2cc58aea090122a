// Package clock provides a thin seam over wall-clock time and ID
// generation. The rate limiter in internal/middleware runs its cleanup
// loop on Clock so its tests need not sleep; session IDs are minted here.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time for components that need to sleep, tick, or stamp.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real is the production Clock backed by the time package.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time  { return time.After(d) }
func (Real) Sleep(d time.Duration)                   { time.Sleep(d) }

// NewSessionID returns a lowercase canonical v4 UUID, server-issued only
// per spec §6 ("clients must not fabricate").
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is a syntactically valid v4 UUID in
// canonical lowercase 8-4-4-4-12 hex form.
func ValidSessionID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id && parsed.Version() == 4
}
