package orchestrator

import (
	"fmt"
	"reflect"

	"github.com/kubilitics/kubilitics-ai/internal/model"
)

// trimHistory prepares a request's working history for persistence, per
// spec.md §4.C8's post-turn trimming rules: thought parts never survive
// to storage, and oversized array payloads in function responses are
// summarized so a long session doesn't carry every raw scrape forever.
func trimHistory(history []model.Turn) []model.Turn {
	out := make([]model.Turn, 0, len(history))
	for _, turn := range history {
		parts := make([]model.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.Kind == model.PartThought {
				continue
			}
			if p.Kind == model.PartFunctionResponse {
				p.FunctionResponsePayload = trimResponsePayload(p.FunctionResponsePayload)
			}
			parts = append(parts, p)
		}
		turn.Parts = parts
		out = append(out, turn)
	}
	return out
}

func trimResponsePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return payload
	}
	trimmed := make(map[string]any, len(payload))
	for k, v := range payload {
		trimmed[k] = v
	}

	for _, field := range []string{"posts", "reels"} {
		if n, ok := sliceLen(trimmed[field]); ok && n > 3 {
			trimmed[field] = fmt.Sprintf("[%d %s — trimmed for context]", n, field)
		}
	}
	if n, ok := sliceLen(trimmed["results"]); ok && n > 5 {
		trimmed["results"] = reflect.ValueOf(trimmed["results"]).Slice(0, 5).Interface()
		trimmed["_trimmed"] = true
	}
	return trimmed
}

// sliceLen reports the length of v if it is any slice type, accommodating
// both []any (the shape documents hold after a Mongo round-trip) and the
// concrete []actor.RawItem-like slices tools return in-process.
func sliceLen(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0, false
	}
	return rv.Len(), true
}
