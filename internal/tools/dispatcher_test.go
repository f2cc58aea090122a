package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/model"
)

func TestDispatcherInvokeReturnsUnknownToolError(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	payload, info := d.Invoke(context.Background(), "nonexistent", nil, nil)

	assert.Contains(t, info.Error, "Unknown tool")
	assert.Contains(t, payload["error"], "Unknown tool")
}

func TestDispatcherInvokeSucceeds(t *testing.T) {
	r := NewRegistry()
	registerEcho(r, false)
	d := NewDispatcher(r)

	payload, info := d.Invoke(context.Background(), "echo", map[string]any{"value": "hi"}, nil)

	require.Empty(t, info.Error)
	assert.Equal(t, "hi", payload["value"])
	assert.Equal(t, "Echo", info.Label)
	assert.GreaterOrEqual(t, info.DurationMs, int64(0))
}

func TestDispatcherInvokeClassifiesHandlerFailure(t *testing.T) {
	r := NewRegistry()
	registerEcho(r, true)
	d := NewDispatcher(r)

	payload, info := d.Invoke(context.Background(), "echo", map[string]any{"value": "hi"}, nil)

	assert.NotEmpty(t, info.Error)
	assert.NotEmpty(t, payload["error"])
}

func TestDispatcherInvokeEmitsCallback(t *testing.T) {
	r := NewRegistry()
	registerEcho(r, false)
	d := NewDispatcher(r)

	var emitted model.ToolCallInfo
	emitCount := 0
	d.Invoke(context.Background(), "echo", map[string]any{"value": "hi"}, func(info model.ToolCallInfo) {
		emitted = info
		emitCount++
	})

	assert.Equal(t, 1, emitCount)
	assert.Equal(t, "echo", emitted.Name)
}

func TestDispatcherInvokeReportsCacheHit(t *testing.T) {
	r := NewRegistry()
	Register(r, Spec{Name: "cached"}, func(raw map[string]any) (struct{}, error) {
		return struct{}{}, nil
	}, func(ctx context.Context, in struct{}) (map[string]any, error) {
		return map[string]any{"cacheHit": true}, nil
	})
	d := NewDispatcher(r)

	_, info := d.Invoke(context.Background(), "cached", nil, nil)

	require.NotNil(t, info.CacheHit)
	assert.True(t, *info.CacheHit)
}

func TestDispatcherInvokeRunsPostHooksOnSuccessOnly(t *testing.T) {
	r := NewRegistry()
	registerEcho(r, false)
	Register(r, Spec{Name: "failing"}, func(raw map[string]any) (struct{}, error) {
		return struct{}{}, nil
	}, func(ctx context.Context, in struct{}) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	var hookCalls []string
	r.RegisterHook(func(ctx context.Context, name string, payload map[string]any) {
		hookCalls = append(hookCalls, name)
	})

	d := NewDispatcher(r)
	d.Invoke(context.Background(), "echo", map[string]any{"value": "hi"}, nil)
	d.Invoke(context.Background(), "failing", nil, nil)

	assert.Equal(t, []string{"echo"}, hookCalls, "a failed call must not fire post-tool hooks")
}

func TestDispatcherLabelFallsBackToName(t *testing.T) {
	r := NewRegistry()
	registerEcho(r, false)
	d := NewDispatcher(r)

	assert.Equal(t, "Echo", d.Label("echo"))
	assert.Equal(t, "ghost", d.Label("ghost"))
}
