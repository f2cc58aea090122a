// Package tools implements the uniform tool-invocation contract of spec
// §4.C5: a registry of (name, validator, handler) triples and a dispatcher
// that validates, times, classifies errors for, and instruments every
// call. Grounded on internal/mcp/server/server.go's MCPServer interface
// (RegisterTool/ExecuteTool/ListTools), which the teacher leaves as a stub
// ("NewMCPServer ... return nil"); this is the full implementation.
package tools

import (
	"context"
	"math"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
)

// ValidatorFunc normalizes and type-checks a raw argument map into T.
// Handlers never see raw maps (Design Note 9's existential-typing seam).
type ValidatorFunc[T any] func(raw map[string]any) (T, error)

// HandlerFunc executes a validated call and returns a structured payload.
// It must classify failures via apperr rather than panic or return a bare
// string error (spec §4.C5: "must not throw raw strings").
type HandlerFunc[T any] func(ctx context.Context, in T) (map[string]any, error)

// Spec describes one tool's schema for discovery by the LLM adapter.
type Spec struct {
	Name        string
	Label       string
	Description string
	Parameters  map[string]any
}

type registeredTool struct {
	spec   Spec
	invoke func(ctx context.Context, raw map[string]any) (map[string]any, error)
}

// PostHook runs after a tool completes successfully. It is the mechanism
// Design Note 9 prescribes for side effects (e.g. auto-enroll) that would
// otherwise create an import cycle between a tool and its side effect:
// the hook is registered on the dispatcher, not imported by the tool.
type PostHook func(ctx context.Context, name string, payload map[string]any)

// Registry holds every tool the LLM may call plus any post-tool hooks.
type Registry struct {
	tools map[string]registeredTool
	hooks []PostHook
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a typed tool. T is inferred from validate/handle so callers
// never juggle map[string]any themselves.
func Register[T any](r *Registry, spec Spec, validate ValidatorFunc[T], handle HandlerFunc[T]) {
	r.tools[spec.Name] = registeredTool{
		spec: spec,
		invoke: func(ctx context.Context, raw map[string]any) (map[string]any, error) {
			in, err := validate(raw)
			if err != nil {
				return nil, apperr.Validation("%v", err)
			}
			return handle(ctx, in)
		},
	}
}

// RegisterHook appends a post-tool hook (spec Design Note 9).
func (r *Registry) RegisterHook(h PostHook) {
	r.hooks = append(r.hooks, h)
}

// Specs returns every registered tool's discovery schema, in registration
// order is not guaranteed (map iteration) — callers that need a stable
// order should sort by Name.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.spec)
	}
	return out
}

func (r *Registry) label(name string) string {
	if t, ok := r.tools[name]; ok {
		return t.spec.Label
	}
	return name
}

// AsInt coerces a raw argument value to an int, rounding float64 magnitudes
// to the nearest integer rather than truncating — the LLM commonly emits
// "10.0" for integer-typed fields (spec §4.C5).
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	case float32:
		return int(math.Round(float64(n))), true
	default:
		return 0, false
	}
}

// AsString coerces a raw argument value to a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
