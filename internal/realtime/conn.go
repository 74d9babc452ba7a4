package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/revealtogether/server/internal/reveal"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second // must be < pongWait
	writeWait  = 10 * time.Second
	maxMsgSize = 4 * 1024 // votes and chat frames are tiny
	sendBuffer = 256
)

// Conn is one subscriber connection, bound to a single session. All writes
// go through the send channel into writePump; readPump is the only reader.
// This keeps the websocket free of concurrent write races.
type Conn struct {
	hub       *Hub
	sessionID string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	once      sync.Once
}

// HandleWebSocket upgrades the request and subscribes the connection to all
// four topics of its session.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &Conn{
		hub:       h,
		sessionID: sessionID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}

	for _, topic := range []string{
		reveal.TopicVotes(sessionID),
		reveal.TopicVoteEvents(sessionID),
		reveal.TopicChat(sessionID),
		reveal.TopicVoteResponse(sessionID),
	} {
		h.subscribe(topic, c)
	}

	slog.Info("Websocket client connected", "session", sessionID)
	go c.writePump()
	go c.readPump()
}

// close shuts the connection down exactly once.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.drop(c)
		c.ws.Close()
		slog.Info("Websocket client disconnected", "session", c.sessionID)
	})
}

// writePump owns all writes to the websocket: queued frames, pings, close.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain anything already queued while we hold the write slot.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump owns all reads and routes inbound frames to the handler.
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Websocket read error", "session", c.sessionID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			slog.Info("Ignoring malformed frame", "session", c.sessionID, "error", err)
			continue
		}

		if c.hub.handler != nil {
			c.hub.handler.Handle(context.Background(), c.sessionID, frame)
		}
	}
}
