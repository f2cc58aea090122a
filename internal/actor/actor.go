// Package actor is the uniform client for the upstream scraping actors and
// the search engine (spec §1: "treated as an Actor.Run(actorID, input,
// limits) -> []rawItem interface"). The actor platform itself is an
// external collaborator; this package only owns the HTTP call contract.
package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/apperr"
)

// RawItem is an opaque upstream record; tool handlers decode it further.
type RawItem map[string]any

// RunLimits bounds one actor invocation.
type RunLimits struct {
	// MaxItems caps the number of items the actor should return.
	MaxItems int
	// Timeout overrides the client's default per-call deadline when > 0.
	Timeout time.Duration
}

// Client is the uniform interface for invoking an upstream actor.
type Client interface {
	Run(ctx context.Context, actorID string, input map[string]any, limits RunLimits) ([]RawItem, error)
}

// HTTPClient calls actors over HTTP with a bearer token, grounded on the
// teacher's context-scoped, typed-error integration clients
// (internal/integration/backend/proxy.go) but talking plain HTTP instead
// of gRPC since no SPEC_FULL.md component needs a gRPC backend.
type HTTPClient struct {
	baseURL        string
	token          string
	defaultTimeout time.Duration
	httpClient     *http.Client
}

// NewHTTPClient constructs an actor client. defaultTimeout defaults to 60s
// per spec §5 ("per-call actor timeout (default 60s)").
func NewHTTPClient(baseURL, token string, defaultTimeout time.Duration) *HTTPClient {
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:        baseURL,
		token:          token,
		defaultTimeout: defaultTimeout,
		httpClient:     &http.Client{},
	}
}

type runRequest struct {
	Input    map[string]any `json:"input"`
	MaxItems int             `json:"maxItems,omitempty"`
}

type runResponse struct {
	Items []RawItem `json:"items"`
}

// Run invokes actorID with input, honoring limits.Timeout (or the client's
// default) as a hard deadline on the HTTP call.
func (c *HTTPClient) Run(ctx context.Context, actorID string, input map[string]any, limits RunLimits) ([]RawItem, error) {
	timeout := limits.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(runRequest{Input: input, MaxItems: limits.MaxItems})
	if err != nil {
		return nil, apperr.Internal(err, "marshal actor request")
	}

	url := fmt.Sprintf("%s/actors/%s/run", c.baseURL, actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal(err, "build actor request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Timeout("actor %q: %v", actorID, ctx.Err())
		}
		return nil, apperr.Upstream(err, "actor %q call failed", actorID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, string(b)), "actor %q returned non-200", actorID)
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Internal(err, "decode actor response")
	}
	return out.Items, nil
}
