// Package llm defines the stable streaming abstraction (spec.md §4.C7)
// over an underlying generative model provider, and the process-wide
// lazy singleton that holds the one configured Adapter. Grounded on
// internal/llm/adapter/adapter.go's LLMAdapter interface — generalized
// from the teacher's non-streaming-first, multi-provider contract to a
// single streaming-first provider with a thought/text/function-call part
// taxonomy.
package llm

import (
	"context"
	"sync"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
	"github.com/kubilitics/kubilitics-ai/internal/model"
)

// Delta is one piece of a streaming generation, delivered in order.
type Delta struct {
	Kind model.PartKind // PartText, PartThought, or PartFunctionCall

	// Text holds incremental content for PartText/PartThought deltas.
	// Function-call deltas are not incremental upstream (providers emit
	// them whole); Kind == PartFunctionCall carries no partial content
	// here, the assembled call only appears in FinalCandidate.
	Text string
}

// FinalCandidate is the complete assembled response after a stream ends.
type FinalCandidate struct {
	Parts []model.Part
}

// Adapter abstracts a streaming, tool-calling-capable model provider.
// Stream returns a channel of deltas and a finish func; the finish func
// blocks until the stream has fully drained (the delta channel is closed)
// and then returns the assembled final candidate, or the error that
// terminated the stream. Callers must drain the delta channel before (or
// concurrently with) calling finish.
//
// Cancellation propagates to the underlying transport: cancelling ctx
// must abort the in-flight upstream request, not merely stop the reader
// from consuming it (spec.md §4.C7).
type Adapter interface {
	Stream(ctx context.Context, history []model.Turn) (<-chan Delta, func() (FinalCandidate, error))
}

// Factory builds the one process-wide Adapter. Set Configure before the
// first call to Get.
type Factory func() (Adapter, error)

var (
	once       sync.Once
	factory    Factory
	instance   Adapter
	initErr    error
	configured bool
)

// Configure registers the factory used to build the singleton on first
// Get call. Must be called before the first Get (normally from
// cmd/server's wiring). Calling it twice panics — configuration is
// immutable for the process lifetime (spec.md §4.C7).
func Configure(f Factory) {
	if configured {
		panic("llm: Configure called more than once")
	}
	factory = f
	configured = true
}

// Get returns the process-wide Adapter, building it on first call. A
// construction failure is cached and returned on every subsequent call
// rather than retried silently — a misconfigured API key does not
// self-heal without a process restart.
func Get() (Adapter, error) {
	once.Do(func() {
		if factory == nil {
			initErr = apperr.Internal(nil, "llm: Configure was never called")
			return
		}
		instance, initErr = factory()
		if initErr != nil {
			initErr = apperr.Upstream(initErr, "llm: adapter initialization failed")
		}
	})
	return instance, initErr
}

// resetForTest clears singleton state. Test-only; never called from
// production code paths.
func resetForTest() {
	once = sync.Once{}
	factory = nil
	instance = nil
	initErr = nil
	configured = false
}

// ResetForTest is resetForTest exported for other packages' tests (e.g.
// internal/orchestrator) that need an isolated adapter singleton per
// test case. Production code must never call this.
func ResetForTest() {
	resetForTest()
}
