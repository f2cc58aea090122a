// Package transport implements the inbound HTTP shell around the
// orchestrator: the SSE streaming endpoint (spec.md §4.C9), its REST
// sibling, and the health check. Grounded on internal/server/websocket.go's
// connection/origin-checking/heartbeat idiom, translated from WebSocket
// framing to the server-sent-event framing the spec actually contracts for.
package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/clock"
	"github.com/kubilitics/kubilitics-ai/internal/middleware"
	"github.com/kubilitics/kubilitics-ai/internal/model"
	"github.com/kubilitics/kubilitics-ai/internal/orchestrator"
	"github.com/kubilitics/kubilitics-ai/internal/session"
)

// DefaultRequestsPerMinute bounds how many chat requests one client IP may
// issue per minute before getting a 429, absent an explicit override.
const DefaultRequestsPerMinute = 60

// RequestTimeout bounds one chat request end to end (spec.md §4.C9/§5).
const RequestTimeout = 180 * time.Second

// HeartbeatInterval is how often an idle SSE stream emits a ping comment to
// survive buffering proxies.
const HeartbeatInterval = 15 * time.Second

// MaxMessageLen mirrors orchestrator.MaxMessageLen for the earliest possible
// rejection, before a session is touched.
const MaxMessageLen = orchestrator.MaxMessageLen

// HealthChecker reports whether the document store backing the server is
// reachable, for GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler wires the HTTP surface to the orchestrator and session store.
// One Handler serves every request; it holds no per-request state.
type Handler struct {
	orchestrator   *orchestrator.Orchestrator
	sessions       *session.Store
	health         HealthChecker
	allowedOrigins map[string]bool
	allowAllOrigin bool
	profilesSeen   func() int
	limiter        *middleware.RateLimiter
	statusHub      *StatusHub
}

// WithStatusHub attaches a StatusHub and registers its upgrade endpoint at
// /ws/status on the next Register call. Returns s for chaining.
func (h *Handler) WithStatusHub(hub *StatusHub) *Handler {
	h.statusHub = hub
	return h
}

// Close releases background resources the handler owns (currently just the
// rate limiter's cleanup goroutine). Safe to call even if never wired.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// WithProfilesSeenStat attaches a counter surfaced on /health as
// "profilesSeen" — the operator-facing view of internal/hooks.ProfileSeen,
// read-only and never consulted by request handling itself.
func (h *Handler) WithProfilesSeenStat(count func() int) *Handler {
	h.profilesSeen = count
	return h
}

// New builds a Handler. allowedOrigins controls the CORS allow-list for
// browser clients; pass []string{"*"} to allow any origin (development
// only), matching the teacher's WebSocket origin-check convention.
func New(o *orchestrator.Orchestrator, sessions *session.Store, health HealthChecker, allowedOrigins []string) *Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimRight(o, "/"))
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &Handler{
		orchestrator:   o,
		sessions:       sessions,
		health:         health,
		allowedOrigins: allowed,
		allowAllOrigin: allowAll,
		limiter:        middleware.NewRateLimiter(DefaultRequestsPerMinute),
	}
}

// WithRequestsPerMinute overrides the per-client-IP chat rate limit (config
// server.requests_per_minute). Replaces the limiter New built, stopping it
// first so its cleanup goroutine doesn't leak.
func (h *Handler) WithRequestsPerMinute(n int) *Handler {
	h.limiter.Stop()
	h.limiter = middleware.NewRateLimiter(n)
	return h
}

// Register attaches the handler's routes to mux. /chat and /chat/stream are
// rate-limited per client IP; /health never is, so liveness probes aren't
// starved by chat traffic.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.limiter.Middleware(h.handleChat))
	mux.HandleFunc("/chat/stream", h.limiter.Middleware(h.handleChatStream))
	mux.HandleFunc("/health", h.handleHealth)
	if h.statusHub != nil {
		mux.HandleFunc("/ws/status", h.statusHub.HandleWS)
	}
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if h.allowAllOrigin || h.allowedOrigins[strings.ToLower(strings.TrimRight(origin, "/"))] {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}
}

// chatRequest is the inbound body shared by /chat and /chat/stream.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// chatResponse is the REST /chat response body (spec.md §6).
type chatResponse struct {
	Response  string               `json:"response"`
	SessionID string               `json:"sessionId"`
	ToolCalls []model.ToolCallInfo `json:"toolCalls"`
	Timestamp time.Time            `json:"timestamp"`
}

// resolveSession returns the session for req.SessionID, creating one with a
// freshly minted ID if absent or unknown. Session IDs are server-issued
// only (spec.md §6) — a client-supplied ID that isn't in the store is
// treated as "no session", not an error, so a stale/forged ID never blocks
// a request.
func (h *Handler) resolveSession(req chatRequest) (*model.Session, bool) {
	if req.SessionID != "" {
		if sess, ok := h.sessions.Get(req.SessionID); ok {
			return sess, false
		}
	}
	sess := &model.Session{
		ID:        clock.NewSessionID(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	h.sessions.Create(sess)
	return sess, true
}

func decodeChatRequest(r *http.Request) (chatRequest, error) {
	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return chatRequest{}, err
	}
	return req, nil
}

// handleHealth answers GET /health with {status, sessions, db}.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dbStatus := "ok"
	status := "ok"
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			dbStatus = "unreachable"
			status = "degraded"
		}
	}

	body := map[string]any{
		"status":   status,
		"sessions": h.sessions.Count(),
		"db":       dbStatus,
	}
	if h.profilesSeen != nil {
		body["profilesSeen"] = h.profilesSeen()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// handleChat answers POST /chat, the non-streaming REST variant of §4.C9.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.setCORSHeaders(w, r)

	req, err := decodeChatRequest(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
	defer cancel()

	sess, _ := h.resolveSession(req)

	answer, toolCalls, newHistory, err := h.orchestrator.Run(ctx, sess.ID, sess.Turns, req.Message, nil)
	if err != nil {
		writeErrorStatus(w, err)
		return
	}

	sess.Turns = newHistory
	sess.UpdatedAt = time.Now()
	h.sessions.Set(sess)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatResponse{
		Response:  answer,
		SessionID: sess.ID,
		ToolCalls: toolCalls,
		Timestamp: time.Now(),
	})
}

// writeErrorStatus maps a classified orchestrator error onto an HTTP status.
func writeErrorStatus(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case strings.Contains(msg, "validation"):
		code = http.StatusBadRequest
	case strings.Contains(msg, "cancelled"):
		code = http.StatusRequestTimeout
	case strings.Contains(msg, "timeout"):
		code = http.StatusGatewayTimeout
	}
	http.Error(w, msg, code)
}

// sseEvent frames one server-sent event: a single `data: <json>\n\n` line.
func sseEvent(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ssePing frames the idle-proxy heartbeat comment line.
func ssePing(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := w.Write([]byte(":ping\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleChatStream answers POST /chat/stream, framing the ordered event
// vocabulary of spec.md §4.C9 over a single long-lived response.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.setCORSHeaders(w, r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable proxy buffering (e.g. nginx)
	w.WriteHeader(http.StatusOK)

	// The orchestration must survive a client disconnect (spec.md §4.C9:
	// "the orchestration is allowed to complete ... session still
	// persists"), so ctx only carries the request-wide timeout, never
	// r.Context()'s cancellation. Disconnect is instead watched separately
	// below and only flips the disconnected flag that silences writes.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), RequestTimeout)
	defer cancel()

	sess, _ := h.resolveSession(req)

	// connected precedes any other event (spec.md §5 ordering guarantee a).
	_ = sseEvent(w, flusher, map[string]any{"type": "connected", "sessionId": sess.ID})

	var disconnected bool
	var mu sync.Mutex
	markDisconnected := func() {
		mu.Lock()
		disconnected = true
		mu.Unlock()
	}
	safeWrite := func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		if disconnected {
			return
		}
		if err := sseEvent(w, flusher, payload); err != nil {
			disconnected = true
		}
	}

	disconnectWatchDone := make(chan struct{})
	defer close(disconnectWatchDone)
	go func() {
		select {
		case <-r.Context().Done():
			markDisconnected()
		case <-disconnectWatchDone:
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ticker.C:
				mu.Lock()
				if !disconnected {
					_ = ssePing(w, flusher)
				}
				done := disconnected
				mu.Unlock()
				if done {
					return
				}
			}
		}
	}()
	defer close(heartbeatDone)

	emit := func(e orchestrator.Event) {
		switch e.Kind {
		case orchestrator.EventThinking:
			safeWrite(map[string]any{"type": "thinking", "turn": e.Turn, "message": e.Message})
		case orchestrator.EventToolStart:
			safeWrite(map[string]any{"type": "tool_start", "tools": e.Tools, "labels": e.Labels})
		case orchestrator.EventToolDone:
			safeWrite(map[string]any{"type": "tool_done", "info": e.Info})
		case orchestrator.EventTextChunk:
			safeWrite(map[string]any{"type": "text_chunk", "text": e.Text})
		case orchestrator.EventAnswer:
			safeWrite(map[string]any{"type": "answer", "text": e.Text, "toolCalls": e.ToolCalls})
		}
	}

	answer, _, newHistory, err := h.orchestrator.Run(ctx, sess.ID, sess.Turns, req.Message, emit)
	if err != nil {
		safeWrite(map[string]any{"type": "error", "message": err.Error()})
		log.Printf("transport: chat stream for session %s ended in error: %v", sess.ID, err)
		return
	}

	sess.Turns = newHistory
	sess.UpdatedAt = time.Now()
	h.sessions.Set(sess)

	// session follows answer (spec.md §5 ordering guarantee e). ctx above
	// is independent of r.Context(), so a client disconnect never aborted
	// Run or skipped the Set above — disconnected only silences safeWrite.
	_ = answer
	safeWrite(map[string]any{"type": "session", "sessionId": sess.ID})
}
