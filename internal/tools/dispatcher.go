package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
	"github.com/kubilitics/kubilitics-ai/internal/model"
)

// Dispatcher is the uniform invocation point the orchestrator drives.
// invoke(name, args_raw, emit?) -> (payload, ToolCallInfo) per spec §4.C5.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(r *Registry) *Dispatcher {
	return &Dispatcher{registry: r}
}

// Label returns the discovery label for a registered tool name, or the
// name itself if unregistered. Exported for callers (the orchestrator)
// that need to compose grouped-call labels ("<label> ×N") without
// reaching into the registry directly.
func (d *Dispatcher) Label(name string) string {
	return d.registry.label(name)
}

// Invoke resolves, validates, times, and runs one tool call. emit (if
// non-nil) receives the ToolCallInfo immediately on completion — callers
// suppress emit for calls folded into a batched/grouped event (spec §4.C8
// step 8) and instead aggregate the returned ToolCallInfo themselves.
func (d *Dispatcher) Invoke(ctx context.Context, name string, rawArgs map[string]any, emit func(model.ToolCallInfo)) (map[string]any, model.ToolCallInfo) {
	label := d.registry.label(name)

	t, ok := d.registry.tools[name]
	if !ok {
		info := model.ToolCallInfo{Name: name, Label: label, Error: fmt.Sprintf("Unknown tool: %s", name)}
		d.maybeEmit(emit, info)
		return map[string]any{"error": info.Error}, info
	}

	start := time.Now()
	payload, err := t.invoke(ctx, rawArgs)
	duration := time.Since(start)

	info := model.ToolCallInfo{Name: name, Label: label, DurationMs: duration.Milliseconds()}
	metrics.ToolDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		classified := apperr.Classify(err)
		info.Error = classified.Message
		metrics.ToolErrorsTotal.WithLabelValues(name, string(classified.Kind)).Inc()
		d.maybeEmit(emit, info)
		return map[string]any{"error": classified.Message}, info
	}

	if payload == nil {
		payload = map[string]any{}
	}
	if hit, ok := payload["cacheHit"].(bool); ok {
		info.CacheHit = &hit
		metrics.CacheHitsTotal.WithLabelValues(name, fmt.Sprint(hit)).Inc()
	}

	d.maybeEmit(emit, info)
	d.runHooks(ctx, name, payload)
	return payload, info
}

func (d *Dispatcher) maybeEmit(emit func(model.ToolCallInfo), info model.ToolCallInfo) {
	if emit != nil {
		emit(info)
	}
}

func (d *Dispatcher) runHooks(ctx context.Context, name string, payload map[string]any) {
	for _, h := range d.registry.hooks {
		h(ctx, name, payload)
	}
}
