// Package orchestrator implements the bounded multi-turn tool-calling loop
// of spec.md §4.C8: stream visible text as it arrives, dispatch function
// calls concurrently, deduplicate and group repeated tool names within a
// turn, detect and break retry loops, and return a full assembled answer
// plus audit trail. Grounded on the teacher's tool_loop.go (turn-bounded
// loop, streamed-token forwarding, per-call concurrency via goroutines
// joined before the next turn) generalized from the teacher's
// single-tool-per-turn assumption to the spec's dedup/batch/loop-break
// discipline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
	"github.com/kubilitics/kubilitics-ai/internal/audit"
	"github.com/kubilitics/kubilitics-ai/internal/llm"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
	"github.com/kubilitics/kubilitics-ai/internal/model"
	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

// MaxTurns bounds the agentic loop (spec.md §4.C8).
const MaxTurns = 10

// MaxRepeats is the number of consecutive identical tool-name multisets
// tolerated before the loop-break canned answer fires.
const MaxRepeats = 2

// MaxMessageLen is the largest accepted user message, in runes.
const MaxMessageLen = 2000

// EventKind tags the orchestrator's stream event vocabulary.
type EventKind string

const (
	EventThinking  EventKind = "thinking"
	EventToolStart EventKind = "tool_start"
	EventToolDone  EventKind = "tool_done"
	EventTextChunk EventKind = "text_chunk"
	EventAnswer    EventKind = "answer"
)

// Event is the transport-agnostic payload the orchestrator emits as it
// drives a request; internal/transport frames these as SSE lines.
type Event struct {
	Kind EventKind

	Turn    int    // thinking
	Message string // thinking

	Tools  []string // tool_start: unique names, first-appearance order
	Labels []string // tool_start: labels aligned with Tools

	Info *model.ToolCallInfo // tool_done

	Text string // text_chunk, answer

	ToolCalls []model.ToolCallInfo // answer: full per-call audit trail
}

// Orchestrator drives the loop for one request against a shared
// dispatcher. Stateless between calls — all per-request state lives on
// the stack of Run.
type Orchestrator struct {
	dispatcher *tools.Dispatcher
	audit      audit.Logger // optional; nil disables audit logging
}

func New(d *tools.Dispatcher) *Orchestrator {
	return &Orchestrator{dispatcher: d}
}

// WithAudit attaches an audit.Logger the orchestrator reports tool and
// turn-level outcomes to. Returns o for chaining at construction time.
func (o *Orchestrator) WithAudit(a audit.Logger) *Orchestrator {
	o.audit = a
	return o
}

// Run executes the loop for one user message against prior history,
// emitting Events via emit (nil is allowed for callers that only want the
// final return values). It returns the composed answer text, the full
// per-call audit trail, and the trimmed history to persist. sessionID
// scopes audit log entries; pass "" if the caller has none yet.
//
// A non-nil error means the request ended in the transport-level `error`
// path (invariant: exactly one of {answer, error} per request) — no
// answer Event is emitted on that path and the caller must not persist
// toolCalls/history from this call.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, history []model.Turn, userMessage string, emit func(Event)) (answer string, toolCalls []model.ToolCallInfo, newHistory []model.Turn, err error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", nil, nil, apperr.Validation("message must not be empty")
	}
	if len([]rune(userMessage)) > MaxMessageLen {
		return "", nil, nil, apperr.Validation("message exceeds %d characters", MaxMessageLen)
	}

	adapter, aerr := llm.Get()
	if aerr != nil {
		return "", nil, nil, aerr
	}

	working := append(append([]model.Turn{}, history...), model.Turn{
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart(userMessage)},
	})

	var (
		audit         []model.ToolCallInfo
		lastSignature []string
		repeatCount   int
		hadPriorCalls bool
	)

	for turn := 1; turn <= MaxTurns; turn++ {
		if ctx.Err() != nil {
			return "", nil, nil, apperr.Cancelled("request cancelled")
		}

		emitEvent(emit, Event{Kind: EventThinking, Turn: turn, Message: thinkingMessage(turn, hadPriorCalls)})

		text, finalParts, ferr := streamTurn(ctx, adapter, working, emit)
		if ferr != nil {
			metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
			return "", nil, nil, ferr
		}
		metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()

		working = append(working, model.Turn{Role: model.RoleModel, Parts: finalParts})

		calls := extractFunctionCalls(finalParts)
		if len(calls) == 0 {
			metrics.TurnsPerRequest.Observe(float64(turn))
			answerText := composeAnswer(text, finalParts)
			emitEvent(emit, Event{Kind: EventAnswer, Text: answerText, ToolCalls: audit})
			return answerText, audit, trimHistory(working), nil
		}

		counts, uniqueNames := countByName(calls)

		signature := signatureOf(calls)
		if equalSignature(signature, lastSignature) {
			repeatCount++
		} else {
			repeatCount = 0
		}
		lastSignature = signature
		if repeatCount >= MaxRepeats {
			metrics.LoopBreaksTotal.Inc()
			metrics.TurnsPerRequest.Observe(float64(turn))
			answerText := "I wasn't able to make further progress on this with the tools available — the same calls kept repeating, so I stopped to avoid looping."
			emitEvent(emit, Event{Kind: EventAnswer, Text: answerText, ToolCalls: audit})
			if o.audit != nil {
				_ = o.audit.LogLoopBreak(ctx, sessionID, turn)
			}
			return answerText, audit, trimHistory(working), nil
		}

		labels := make([]string, len(uniqueNames))
		for i, name := range uniqueNames {
			if counts[name] > 1 {
				labels[i] = fmt.Sprintf("%s ×%d", o.dispatcher.Label(name), counts[name])
			} else {
				labels[i] = o.dispatcher.Label(name)
			}
		}
		emitEvent(emit, Event{Kind: EventToolStart, Tools: uniqueNames, Labels: labels})

		responses, turnAudit := o.dispatchTurn(ctx, sessionID, calls, counts, emit)
		audit = append(audit, turnAudit...)
		working = append(working, model.Turn{Role: model.RoleUser, Parts: responses})
		hadPriorCalls = true

		if allFailed(turnAudit) {
			metrics.AllFailedTotal.Inc()
			metrics.TurnsPerRequest.Observe(float64(turn))
			answerText := composeFailureSummary(turnAudit)
			emitEvent(emit, Event{Kind: EventAnswer, Text: answerText, ToolCalls: audit})
			if o.audit != nil {
				_ = o.audit.LogTurnAllFailed(ctx, sessionID, turn, combinedError(turnAudit))
			}
			return answerText, audit, trimHistory(working), nil
		}
	}

	metrics.TurnsPerRequest.Observe(MaxTurns)
	answerText := lastModelText(working)
	emitEvent(emit, Event{Kind: EventAnswer, Text: answerText, ToolCalls: audit})
	return answerText, audit, trimHistory(working), nil
}

// combinedError aggregates a turn's per-call failures into a single error
// via multierr, for callers (the audit logger) that want one value summarizing
// an all-failed turn rather than re-parsing model.ToolCallInfo.Error strings.
func combinedError(turnAudit []model.ToolCallInfo) error {
	var combined error
	for _, a := range turnAudit {
		if a.Error == "" {
			continue
		}
		combined = multierr.Append(combined, fmt.Errorf("%s: %s", a.Name, errors.New(a.Error)))
	}
	return combined
}

func emitEvent(emit func(Event), e Event) {
	if emit != nil {
		emit(e)
	}
}

// thinkingMessage implements the heuristic of spec.md §4.C8 step 1.
func thinkingMessage(turn int, hadPriorCalls bool) string {
	switch {
	case turn == 1:
		return "Analysing your request…"
	case hadPriorCalls:
		return "Processing tool results…"
	default:
		return "Thinking…"
	}
}

// streamTurn opens one LLM stream, forwarding visible text chunks via
// emit, and returns the concatenated visible text plus the final
// candidate's full part list.
func streamTurn(ctx context.Context, adapter llm.Adapter, history []model.Turn, emit func(Event)) (string, []model.Part, error) {
	deltas, finish := adapter.Stream(ctx, history)

	var text strings.Builder
	for d := range deltas {
		if d.Kind == model.PartText {
			text.WriteString(d.Text)
			emitEvent(emit, Event{Kind: EventTextChunk, Text: d.Text})
		}
		// Thought deltas are intentionally skipped — never surfaced (spec §3).
	}

	final, err := finish()
	if err != nil {
		return "", nil, err
	}
	return text.String(), final.Parts, nil
}

func extractFunctionCalls(parts []model.Part) []model.Part {
	var calls []model.Part
	for _, p := range parts {
		if p.Kind == model.PartFunctionCall {
			calls = append(calls, p)
		}
	}
	return calls
}

// composeAnswer builds the visible answer text: prefer the streamed
// chunks, falling back to the final candidate's non-thought text parts,
// falling back to "Done." if both are empty (spec.md §4.C8 step 5).
func composeAnswer(streamed string, finalParts []model.Part) string {
	if streamed != "" {
		return streamed
	}
	var b strings.Builder
	for _, p := range finalParts {
		if p.Kind == model.PartText {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "Done."
	}
	return b.String()
}

// lastModelText is the MAX_TURNS exhaustion fallback: the most recent
// model turn's non-thought text, or a canned message.
func lastModelText(history []model.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != model.RoleModel {
			continue
		}
		var b strings.Builder
		for _, p := range history[i].Parts {
			if p.Kind == model.PartText {
				b.WriteString(p.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
		break
	}
	return "I've reached the limit of what I can work through in a single request — please try rephrasing or narrowing your question."
}

func countByName(calls []model.Part) (map[string]int, []string) {
	counts := make(map[string]int)
	var order []string
	for _, c := range calls {
		if counts[c.FunctionCallName] == 0 {
			order = append(order, c.FunctionCallName)
		}
		counts[c.FunctionCallName]++
	}
	return counts, order
}

func signatureOf(calls []model.Part) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.FunctionCallName
	}
	sort.Strings(names)
	return names
}

func equalSignature(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type batchStat struct {
	succeeded int
	errors    int
	totalMs   int64
	cacheHits int
}

// dispatchTurn runs every function call of a turn concurrently. Calls
// whose name occurs once this turn emit their tool_done individually;
// calls whose name repeats are batched into one synthetic tool_done
// (spec.md §4.C8 steps 8-9). Responses are built in original call order
// so they align positionally with the model's function_call parts.
func (o *Orchestrator) dispatchTurn(ctx context.Context, sessionID string, calls []model.Part, counts map[string]int, emit func(Event)) ([]model.Part, []model.ToolCallInfo) {
	responses := make([]model.Part, len(calls))
	audit := make([]model.ToolCallInfo, len(calls))

	var mu sync.Mutex
	batches := make(map[string]*batchStat)

	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()

			grouped := counts[call.FunctionCallName] > 1
			var perCallEmit func(model.ToolCallInfo)
			if !grouped {
				perCallEmit = func(info model.ToolCallInfo) {
					emitEvent(emit, Event{Kind: EventToolDone, Info: &info})
				}
			}

			payload, info := o.dispatcher.Invoke(ctx, call.FunctionCallName, call.FunctionCallArgs, perCallEmit)

			if o.audit != nil {
				if info.Error != "" {
					_ = o.audit.LogToolFailed(ctx, sessionID, call.FunctionCallName, errors.New(info.Error))
				} else {
					durationMs := info.DurationMs
					_ = o.audit.LogToolInvoked(ctx, sessionID, call.FunctionCallName, time.Duration(durationMs)*time.Millisecond, info.CacheHit)
				}
			}

			mu.Lock()
			audit[i] = info
			responses[i] = model.FunctionResponsePart(call.FunctionCallName, payload)
			if grouped {
				b, ok := batches[call.FunctionCallName]
				if !ok {
					b = &batchStat{}
					batches[call.FunctionCallName] = b
				}
				b.totalMs += info.DurationMs
				if info.Error != "" {
					b.errors++
				} else {
					b.succeeded++
				}
				if info.CacheHit != nil && *info.CacheHit {
					b.cacheHits++
				}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Emit synthetic tool_done entries for grouped names, in first-call
	// order so tool_start/tool_done ordering stays stable.
	emitted := make(map[string]bool)
	for _, call := range calls {
		name := call.FunctionCallName
		if counts[name] <= 1 || emitted[name] {
			continue
		}
		emitted[name] = true
		b := batches[name]
		n := counts[name]
		info := model.ToolCallInfo{
			Name:       name,
			Label:      fmt.Sprintf("%s ×%d", o.dispatcher.Label(name), n),
			DurationMs: b.totalMs / int64(n),
		}
		hit := b.cacheHits == n
		info.CacheHit = &hit
		if b.errors > 0 {
			info.Error = fmt.Sprintf("%d/%d failed", b.errors, n)
		}
		emitEvent(emit, Event{Kind: EventToolDone, Info: &info})
	}

	return responses, audit
}

func allFailed(audit []model.ToolCallInfo) bool {
	if len(audit) == 0 {
		return false
	}
	for _, a := range audit {
		if a.Error == "" {
			return false
		}
	}
	return true
}

// composeFailureSummary lists up to three "name: reason" lines, per
// spec.md §4.C8 step 11.
func composeFailureSummary(audit []model.ToolCallInfo) string {
	var lines []string
	for _, a := range audit {
		if a.Error == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", a.Name, a.Error))
		if len(lines) == 3 {
			break
		}
	}
	remaining := 0
	for _, a := range audit {
		if a.Error != "" {
			remaining++
		}
	}
	remaining -= len(lines)

	msg := "Every tool call failed this turn:\n" + strings.Join(lines, "\n")
	if remaining > 0 {
		msg += fmt.Sprintf("\n…and %d more", remaining)
	}
	return msg
}
