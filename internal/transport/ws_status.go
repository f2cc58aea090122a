package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StatusEvent is one scheduler tick outcome, broadcast to every connected
// operator dashboard. Kind is "run" or "skipped" (internal/scheduler never
// reports partial state, only whole-tick results).
type StatusEvent struct {
	Job       string    `json:"job"`
	Kind      string    `json:"kind"`
	Success   bool      `json:"success,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusHub fans scheduler status events out to connected WebSocket
// clients. Grounded on internal/server/websocket.go's upgrader/
// origin-checking idiom, stripped of the chat protocol — this is a
// one-directional broadcast, not a request/response channel.
type StatusHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewStatusHub builds a hub whose WebSocket upgrader allows the same
// origins as the REST/SSE surface.
func NewStatusHub(allowedOrigins []string) *StatusHub {
	return &StatusHub{
		upgrader: newStatusUpgrader(allowedOrigins),
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

func newStatusUpgrader(allowedOrigins []string) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	allowAll := allowed["*"]
	return websocket.Upgrader{
		ReadBufferSize:  512,
		WriteBufferSize: 512,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := strings.ToLower(strings.TrimRight(r.Header.Get("Origin"), "/"))
			if origin == "" {
				return true
			}
			return allowed[origin]
		},
	}
}

// HandleWS upgrades the connection and keeps it registered until it errors
// or closes. The connection is write-only from the server's side; any
// inbound frame is read and discarded solely to detect client disconnects.
func (h *StatusHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("status hub: upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends evt to every connected client, dropping any connection
// that can't keep up rather than blocking the scheduler tick that produced
// the event.
func (h *StatusHub) Broadcast(evt StatusEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(h.conns, conn)
		}
	}
}
