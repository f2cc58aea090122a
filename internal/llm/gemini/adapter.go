// Package gemini implements llm.Adapter against Google's Gemini models via
// google.golang.org/genai. Grounded on
// haasonsaas-nexus/internal/agent/providers/google.go's stream-iterator
// consumption (processStreamResponse's per-part conversion of
// *genai.GenerateContentResponse into internal chunk types, driven by
// Go's iter.Seq2) combined with the teacher's tool_loop.go discipline of
// selecting on ctx.Done() around every blocking send so a cancelled
// request never leaks a goroutine.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
	"github.com/kubilitics/kubilitics-ai/internal/llm"
	"github.com/kubilitics/kubilitics-ai/internal/model"
)

// Config configures the Gemini-backed adapter.
type Config struct {
	APIKey string
	Model  string // e.g. "gemini-2.0-flash"; required
	Tools  []*genai.Tool
}

// Adapter wraps a *genai.Client behind llm.Adapter.
type Adapter struct {
	client *genai.Client
	model  string
	tools  []*genai.Tool
}

// Factory returns an llm.Factory suitable for llm.Configure.
func Factory(cfg Config) llm.Factory {
	return func() (llm.Adapter, error) {
		return New(cfg)
	}
}

// New constructs a Gemini adapter directly (bypassing the singleton),
// mainly for tests that want an isolated instance.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &Adapter{client: client, model: cfg.Model, tools: cfg.Tools}, nil
}

// Stream implements llm.Adapter. The returned delta channel is closed
// when the stream ends (successfully, on error, or on cancellation); the
// finish func blocks on an internal done signal and then reports the
// assembled FinalCandidate or the terminal error.
func (a *Adapter) Stream(ctx context.Context, history []model.Turn) (<-chan llm.Delta, func() (llm.FinalCandidate, error)) {
	deltas := make(chan llm.Delta)
	done := make(chan struct{})
	var final llm.FinalCandidate
	var finalErr error

	contents := toGenaiContents(history)
	config := &genai.GenerateContentConfig{}
	if len(a.tools) > 0 {
		config.Tools = a.tools
	}

	// streamCtx/cancel is owned by this goroutine: cancelling ctx tears
	// down the in-flight HTTP transport underneath GenerateContentStream
	// rather than merely abandoning the reader (spec.md §4.C7).
	streamCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(deltas)
		defer close(done)
		defer cancel()

		var assembled []model.Part
		iterSeq := a.client.Models.GenerateContentStream(streamCtx, a.model, contents, config)

		for resp, err := range iterSeq {
			select {
			case <-ctx.Done():
				finalErr = ctx.Err()
				return
			default:
			}

			if err != nil {
				finalErr = apperr.Upstream(err, "gemini: stream error")
				return
			}
			if resp == nil {
				continue
			}

			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					p, kind, ok := fromGenaiPart(part)
					if !ok {
						continue
					}
					assembled = append(assembled, p)

					if kind == model.PartText || kind == model.PartThought {
						select {
						case deltas <- llm.Delta{Kind: kind, Text: p.Text}:
						case <-ctx.Done():
							finalErr = ctx.Err()
							return
						}
					}
				}
			}
		}

		final = llm.FinalCandidate{Parts: assembled}
	}()

	finish := func() (llm.FinalCandidate, error) {
		<-done
		return final, finalErr
	}
	return deltas, finish
}

// fromGenaiPart converts one Gemini response part into the internal
// model.Part taxonomy. The genai SDK surfaces "thought" parts via the
// Thought boolean on a text part rather than a distinct part type.
func fromGenaiPart(part *genai.Part) (model.Part, model.PartKind, bool) {
	switch {
	case part.FunctionCall != nil:
		return model.FunctionCallPart(part.FunctionCall.Name, part.FunctionCall.Args), model.PartFunctionCall, true
	case part.Thought:
		return model.ThoughtPart(part.Text), model.PartThought, true
	case part.Text != "":
		return model.TextPart(part.Text), model.PartText, true
	default:
		return model.Part{}, "", false
	}
}

// toGenaiContents converts session history into Gemini's Content format.
// Function-response parts are attached to "user"-role content per the
// Gemini API's convention that tool results travel on the user side of
// the turn (mirrors google.go's convertMessages tool-result handling).
func toGenaiContents(history []model.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		content := &genai.Content{Role: roleToGenai(turn.Role)}
		for _, part := range turn.Parts {
			switch part.Kind {
			case model.PartText:
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			case model.PartThought:
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text, Thought: true})
			case model.PartFunctionCall:
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: part.FunctionCallName, Args: part.FunctionCallArgs},
				})
			case model.PartFunctionResponse:
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						Name:     part.FunctionResponseName,
						Response: part.FunctionResponsePayload,
					},
				})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func roleToGenai(r model.Role) genai.Role {
	if r == model.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}
