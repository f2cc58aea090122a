package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/llm"
	"github.com/kubilitics/kubilitics-ai/internal/model"
	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

// scriptedAdapter replays one FinalCandidate per Stream call, in order.
type scriptedAdapter struct {
	candidates []llm.FinalCandidate
	call       int
}

func (s *scriptedAdapter) Stream(ctx context.Context, history []model.Turn) (<-chan llm.Delta, func() (llm.FinalCandidate, error)) {
	idx := s.call
	s.call++
	final := s.candidates[idx]

	ch := make(chan llm.Delta, len(final.Parts))
	for _, p := range final.Parts {
		if p.Kind == model.PartText {
			ch <- llm.Delta{Kind: model.PartText, Text: p.Text}
		}
	}
	close(ch)

	return ch, func() (llm.FinalCandidate, error) { return final, nil }
}

func configureAdapter(t *testing.T, a llm.Adapter) {
	t.Helper()
	resetLLMForTest()
	llm.Configure(func() (llm.Adapter, error) { return a, nil })
	t.Cleanup(resetLLMForTest)
}

func TestRunOneTurnAnswerNoToolCalls(t *testing.T) {
	configureAdapter(t, &scriptedAdapter{candidates: []llm.FinalCandidate{
		{Parts: []model.Part{model.TextPart("Hello.")}},
	}})

	registry := tools.NewRegistry()
	o := New(tools.NewDispatcher(registry))

	var events []Event
	answer, calls, history, err := o.Run(context.Background(), "", nil, "hi", func(e Event) {
		events = append(events, e)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello.", answer)
	assert.Empty(t, calls)
	assert.Len(t, history, 2) // user turn + model turn

	require.NotEmpty(t, events)
	assert.Equal(t, EventAnswer, events[len(events)-1].Kind)
}

func TestRunRejectsEmptyMessage(t *testing.T) {
	o := New(tools.NewDispatcher(tools.NewRegistry()))
	_, _, _, err := o.Run(context.Background(), "", nil, "   ", nil)
	assert.Error(t, err)
}

func TestRunDispatchesToolCallThenAnswers(t *testing.T) {
	registry := tools.NewRegistry()
	tools.Register(registry, tools.Spec{Name: "echo", Label: "Echoing"},
		func(raw map[string]any) (string, error) {
			s, _ := tools.AsString(raw["value"])
			return s, nil
		},
		func(ctx context.Context, in string) (map[string]any, error) {
			return map[string]any{"echoed": in}, nil
		},
	)

	configureAdapter(t, &scriptedAdapter{candidates: []llm.FinalCandidate{
		{Parts: []model.Part{model.FunctionCallPart("echo", map[string]any{"value": "x"})}},
		{Parts: []model.Part{model.TextPart("Got it.")}},
	}})

	o := New(tools.NewDispatcher(registry))

	var sawToolStart, sawToolDone bool
	answer, calls, _, err := o.Run(context.Background(), "", nil, "please echo x", func(e Event) {
		switch e.Kind {
		case EventToolStart:
			sawToolStart = true
		case EventToolDone:
			sawToolDone = true
		}
	})

	require.NoError(t, err)
	assert.True(t, sawToolStart)
	assert.True(t, sawToolDone)
	assert.Equal(t, "Got it.", answer)
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)
	assert.Empty(t, calls[0].Error)
}

func TestRunLoopBreaksOnRepeatedSignature(t *testing.T) {
	registry := tools.NewRegistry()
	tools.Register(registry, tools.Spec{Name: "noop", Label: "No-op"},
		func(raw map[string]any) (struct{}, error) { return struct{}{}, nil },
		func(ctx context.Context, in struct{}) (map[string]any, error) {
			return map[string]any{}, nil
		},
	)

	repeatedCall := llm.FinalCandidate{Parts: []model.Part{model.FunctionCallPart("noop", nil)}}
	configureAdapter(t, &scriptedAdapter{candidates: []llm.FinalCandidate{
		repeatedCall, repeatedCall, repeatedCall, repeatedCall,
	}})

	o := New(tools.NewDispatcher(registry))

	var turns int
	answer, _, _, err := o.Run(context.Background(), "", nil, "loop please", func(e Event) {
		if e.Kind == EventThinking {
			turns++
		}
	})

	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.LessOrEqual(t, turns, MaxRepeats+2)
}

func TestRunAllFailedShortCircuits(t *testing.T) {
	registry := tools.NewRegistry()
	tools.Register(registry, tools.Spec{Name: "fails", Label: "Failing"},
		func(raw map[string]any) (struct{}, error) { return struct{}{}, nil },
		func(ctx context.Context, in struct{}) (map[string]any, error) {
			return nil, assertErr{}
		},
	)

	configureAdapter(t, &scriptedAdapter{candidates: []llm.FinalCandidate{
		{Parts: []model.Part{model.FunctionCallPart("fails", nil)}},
	}})

	o := New(tools.NewDispatcher(registry))
	answer, calls, _, err := o.Run(context.Background(), "", nil, "try the broken tool", nil)

	require.NoError(t, err)
	assert.Contains(t, answer, "fails")
	require.Len(t, calls, 1)
	assert.NotEmpty(t, calls[0].Error)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

// resetLLMForTest resets the llm package's lazily-built singleton between
// tests; mirrors llm package's own resetForTest but callable cross-package
// via a small exported test seam.
func resetLLMForTest() {
	llm.ResetForTest()
}
