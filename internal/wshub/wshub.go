// Package wshub implements the WebSocket event fan-out hub: token-authed
// upgrade, an inbound JSON command protocol, and broadcast of manifest and
// terminal events to connected dashboard clients.
package wshub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xcawolfe-amzn/ppg/internal/auth"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/stream"
)

// Host provides the terminal-input/resize side effects the hub delegates
// to; both are optional (nil is a no-op).
type Host interface {
	OnTerminalInput(agentID, data string) error
	OnTerminalResize(agentID string, cols, rows int) error
	PaneTargetForAgent(agentID string) (string, bool)
}

// Hub manages connected dashboard WebSocket clients.
type Hub struct {
	store    *auth.Store
	limiter  *auth.RateLimiter
	stream   *stream.Hub
	host     Host
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn  *websocket.Conn
	mu    sync.Mutex // guards concurrent writes
	subs  map[string]stream.Unsubscribe
}

// New constructs a Hub. store authenticates the `?token=` query param —
// the only auth channel available to a browser WebSocket client, which
// can't set a custom Authorization header, so a Hub must never be wrapped
// in auth.Middleware. limiter enforces the same bad-attempt throttling
// Middleware applies to the plain HTTP dashboard (nil disables rate
// limiting, e.g. in tests). streamHub serves terminal subscriptions; host
// handles terminal input and resize (may be nil if the caller doesn't
// support them).
func New(store *auth.Store, limiter *auth.RateLimiter, streamHub *stream.Hub, host Host) *Hub {
	return &Hub{
		store:   store,
		limiter: limiter,
		stream:  streamHub,
		host:    host,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// inbound is the shape of every inbound JSON command; fields used depend on
// Type.
type inbound struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
	Data    string `json:"data"`
	Cols    int    `json:"cols"`
	Rows    int    `json:"rows"`
}

// outbound is the shape of every outbound event.
type outbound struct {
	Type     string                 `json:"type"`
	Code     string                 `json:"code,omitempty"`
	AgentID  string                 `json:"agentId,omitempty"`
	Lines    []string               `json:"lines,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Manifest *manifest.Manifest     `json:"manifest,omitempty"`
	Status   map[string]interface{} `json:"status,omitempty"`
}

// ServeHTTP upgrades /ws?token=<t> connections, validates the token, and
// dispatches inbound commands for the lifetime of the connection. Applies
// its own rate limiting (5 bad attempts → 401, the 6th → 429) rather than
// relying on auth.Middleware, since the browser WebSocket API can't set an
// Authorization header and so never reaches that middleware's check.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/ws" {
		http.NotFound(w, r)
		return
	}

	ip := auth.ClientIP(r)
	if h.limiter != nil && !h.limiter.Allow(ip) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if h.limiter != nil {
			h.limiter.RecordFailure(ip)
		}
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if h.store.ValidateToken(token) == nil {
		if h.limiter != nil {
			h.limiter.RecordFailure(ip)
		}
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if h.limiter != nil {
		h.limiter.RecordSuccess(ip)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	c := &client{conn: conn, subs: make(map[string]stream.Unsubscribe)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.serveClient(c)
}

func (h *Hub) serveClient(c *client) {
	defer h.removeClient(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(c, data)
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.mu.Lock()
	for _, unsub := range c.subs {
		unsub()
	}
	c.subs = nil
	c.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
		sendTo(c, outbound{Type: "error", Code: "INVALID_COMMAND"})
		return
	}

	switch in.Type {
	case "ping":
		sendTo(c, outbound{Type: "pong"})
	case "terminal:subscribe":
		h.subscribe(c, in.AgentID)
	case "terminal:unsubscribe":
		h.unsubscribe(c, in.AgentID)
	case "terminal:input":
		if h.host == nil {
			return
		}
		if err := h.host.OnTerminalInput(in.AgentID, in.Data); err != nil {
			sendTo(c, outbound{Type: "error", Code: "TERMINAL_INPUT_FAILED"})
		}
	case "terminal:resize":
		if h.host == nil {
			return
		}
		_ = h.host.OnTerminalResize(in.AgentID, in.Cols, in.Rows)
	default:
		sendTo(c, outbound{Type: "error", Code: "INVALID_COMMAND"})
	}
}

func (h *Hub) subscribe(c *client, agentID string) {
	if h.host == nil || h.stream == nil {
		return
	}
	paneTarget, ok := h.host.PaneTargetForAgent(agentID)
	if !ok {
		return
	}

	c.mu.Lock()
	if _, already := c.subs[agentID]; already {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	unsub := h.stream.Subscribe(context.Background(), agentID, paneTarget, func(ev stream.Event) {
		sendTo(c, outbound{Type: ev.Type, AgentID: ev.AgentID, Lines: ev.Lines, Error: ev.Error})
	})

	c.mu.Lock()
	c.subs[agentID] = unsub
	c.mu.Unlock()
}

func (h *Hub) unsubscribe(c *client, agentID string) {
	c.mu.Lock()
	unsub, ok := c.subs[agentID]
	if ok {
		delete(c.subs, agentID)
	}
	c.mu.Unlock()
	if ok {
		unsub()
	}
}

// sendTo writes ev to c's socket, serializing concurrent writers. A closed
// or broken socket is silently dropped; ReadMessage in serveClient will
// notice and clean up the client.
func sendTo(c *client, ev outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(ev); err != nil {
		log.Printf("wshub: write to client failed: %v", err)
	}
}

// BroadcastManifestUpdated sends a manifest:updated event to every open
// client.
func (h *Hub) BroadcastManifestUpdated(m *manifest.Manifest) {
	h.broadcastAll(outbound{Type: "manifest:updated", Manifest: m})
}

// BroadcastAgentStatus sends an agent:status event to every open client.
func (h *Hub) BroadcastAgentStatus(agentID, worktreeID string, status, previousStatus manifest.AgentStatus) {
	h.broadcastAll(outbound{
		Type:    "agent:status",
		AgentID: agentID,
		Status: map[string]interface{}{
			"worktreeId":     worktreeID,
			"status":         status,
			"previousStatus": previousStatus,
		},
	})
}

func (h *Hub) broadcastAll(ev outbound) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		sendTo(c, ev)
	}
}

// Close sends a close frame to every client, empties the client set, and
// releases their stream subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), nil)
		for _, unsub := range c.subs {
			unsub()
		}
		c.subs = nil
		c.mu.Unlock()
		c.conn.Close()
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
