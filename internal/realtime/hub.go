// Package realtime carries the websocket transport: a topic-addressed hub
// that implements the runtime's publisher port, plus the per-connection
// read/write pumps and the inbound frame router.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientFrame is an inbound message: a publish to vote/{id} or chat/{id}.
type ClientFrame struct {
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

// ServerFrame wraps every outbound payload with its topic so one connection
// can multiplex all four session topics.
type ServerFrame struct {
	Topic string      `json:"topic"`
	Body  interface{} `json:"body"`
}

// InboundHandler routes client frames into the engines.
type InboundHandler interface {
	Handle(ctx context.Context, sessionID string, frame ClientFrame)
}

// Hub fans frames out to every connection subscribed to a topic. It
// implements reveal.Publisher. Delivery is best-effort: a connection whose
// send buffer is full drops the frame and reconciles via the HTTP snapshot.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*Conn]struct{}
	handler  InboundHandler
	upgrader websocket.Upgrader
}

// NewHub builds a hub whose origin check honors the configured
// comma-separated origin list. An empty list or a "*" entry allows all
// origins.
func NewHub(allowedOrigins string) *Hub {
	h := &Hub{
		topics: make(map[string]map[*Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     buildCheckOrigin(allowedOrigins),
	}
	return h
}

// SetHandler installs the inbound router. Must be called before serving.
func (h *Hub) SetHandler(handler InboundHandler) {
	h.handler = handler
}

func buildCheckOrigin(allowedOrigins string) func(r *http.Request) bool {
	allowedOrigins = strings.TrimSpace(allowedOrigins)
	if allowedOrigins == "" {
		slog.Warn("No allowed origins configured, accepting all websocket origins")
		return func(r *http.Request) bool { return true }
	}

	allowAll := false
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}
	if allowAll {
		return func(r *http.Request) bool { return true }
	}

	slog.Info("Websocket origin allowlist active", "count", len(allowed))
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin clients (no Origin header) are accepted; browsers
		// always send one.
		if origin == "" || allowed[origin] {
			return true
		}
		slog.Info("Rejected websocket connection", "origin", origin)
		return false
	}
}

// subscribe adds the connection to a topic.
func (h *Hub) subscribe(topic string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.topics[topic]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.topics[topic] = conns
	}
	conns[c] = struct{}{}
}

// drop removes the connection from every topic it subscribed to.
func (h *Hub) drop(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, conns := range h.topics {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish marshals the payload once and fans it out to every subscriber of
// the topic without blocking the caller.
func (h *Hub) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(ServerFrame{Topic: topic, Body: payload})
	if err != nil {
		slog.Error("Failed to marshal frame", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			slog.Warn("Send buffer full, dropping frame", "topic", topic)
		}
	}
}

// SubscriberCount reports connections subscribed to a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
