// Package gateway exposes the engine's read-only state over HTTP and pushes
// live events to WebSocket dashboard clients. It never mutates engine state.
package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pattern-traderv1/internal/model"
)

// sendBuffer is the per-client outbound queue; slow clients drop messages
// rather than stall the cycle.
const sendBuffer = 64

// Hub manages WebSocket clients and fans engine events out to them.
// It implements model.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Register adopts an upgraded connection: starts its pumps and returns the
// assigned client id.
func (h *Hub) Register(conn *websocket.Conn) string {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] client %s connected (%d total)", c.id, n)

	go h.writePump(c)
	go h.readPump(c)
	return c.id
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.send)
	c.conn.Close()
	log.Printf("[gateway] client %s disconnected", c.id)
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister(c)
			return
		}
	}
}

// readPump discards inbound frames; its job is noticing the disconnect.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}

// broadcast wraps data in a channel envelope and queues it on every client.
func (h *Hub) broadcast(channel string, data any) {
	envelope, err := json.Marshal(map[string]any{
		"channel": channel,
		"data":    data,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", channel, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- envelope:
		default:
			// Queue full: drop for this client.
		}
	}
}

// ──────────────────────────── model.Sink ────────────────────────────

func (h *Hub) PositionOpened(pos model.Position) { h.broadcast("position", pos) }

func (h *Hub) TradeClosed(t model.Trade, equity float64) {
	h.broadcast("trade", struct {
		model.Trade
		Equity float64 `json:"equity"`
	}{t, equity})
}

func (h *Hub) EquityAppended(pt model.EquityPoint) { h.broadcast("equity", pt) }

func (h *Hub) SignalRejected(pattern, reason string) {
	h.broadcast("rejection", map[string]string{"pattern": pattern, "reason": reason})
}
