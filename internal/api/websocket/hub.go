// Package websocket exposes the event bus over WebSocket connections,
// streaming task lifecycle events to connected clients in real time.
package websocket

import (
	"sync"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
)

// Hub tracks connected WebSocket clients. Event delivery itself happens
// through each client's own eventbus observer; the hub's job is lifecycle
// bookkeeping (registration, counting, shutdown).
type Hub struct {
	bus *eventbus.Bus

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a Hub delivering events from bus.
func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		bus:     bus,
		clients: make(map[*Client]bool),
	}
}

// Register adds client to the hub's tracked set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	logger.Get().Debug().Str("client_id", c.ID).Int("clients", h.ClientCount()).Msg("websocket client registered")
}

// Unregister removes client, disconnects its observer, and signals its
// pumps to stop. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.bus.Disconnect(c.obs)
	c.close()
	logger.Get().Debug().Str("client_id", c.ID).Int("clients", h.ClientCount()).Msg("websocket client unregistered")
}

// ClientCount reports the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects every registered client.
func (h *Hub) Stop() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
		_ = c.conn.Close()
	}
}
