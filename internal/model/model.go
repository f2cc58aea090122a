// Package model defines the conversation data shapes shared by the session
// store, the orchestrator, and the stream transport.
package model

import "time"

// Role identifies which side of the conversation a turn belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// PartKind tags the variant a Part holds.
type PartKind string

const (
	PartText             PartKind = "text"
	PartThought          PartKind = "thought"
	PartFunctionCall     PartKind = "function_call"
	PartFunctionResponse PartKind = "function_response"
)

// Part is a tagged union over the four part variants a Turn can carry.
// Exactly one of the fields matching Kind is populated; the rest are zero.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text holds the content for PartText and PartThought.
	Text string `json:"text,omitempty"`

	// FunctionCall holds the content for PartFunctionCall.
	FunctionCallName string         `json:"functionCallName,omitempty"`
	FunctionCallArgs map[string]any `json:"functionCallArgs,omitempty"`

	// FunctionResponse holds the content for PartFunctionResponse.
	FunctionResponseName    string         `json:"functionResponseName,omitempty"`
	FunctionResponsePayload map[string]any `json:"functionResponsePayload,omitempty"`
}

// TextPart builds a PartText.
func TextPart(text string) Part { return Part{Kind: PartText, Text: text} }

// ThoughtPart builds a PartThought.
func ThoughtPart(text string) Part { return Part{Kind: PartThought, Text: text} }

// FunctionCallPart builds a PartFunctionCall.
func FunctionCallPart(name string, args map[string]any) Part {
	return Part{Kind: PartFunctionCall, FunctionCallName: name, FunctionCallArgs: args}
}

// FunctionResponsePart builds a PartFunctionResponse.
func FunctionResponsePart(name string, payload map[string]any) Part {
	return Part{Kind: PartFunctionResponse, FunctionResponseName: name, FunctionResponsePayload: payload}
}

// Turn is one role-tagged entry in a session's history.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Session holds the ordered history for one conversation.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToolCallInfo is the observability unit emitted for each tool invocation,
// individually or as a synthesized batch entry.
type ToolCallInfo struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	DurationMs int64  `json:"durationMs"`
	CacheHit   *bool  `json:"cacheHit,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CachedDocument is embedded by any payload that participates in the
// cache-first read-through (internal/cache).
type CachedDocument struct {
	CachedAt time.Time `json:"cachedAt"`
}

// Fresh reports whether the document was cached within ttl of now.
func (d CachedDocument) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.CachedAt) < ttl
}
