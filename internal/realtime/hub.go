// Package realtime pushes subject count updates to connected websocket
// clients so they don't have to wait for their next poll.
package realtime

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"vibesync/pkg/api"
)

// clientBuffer is the per-client send queue; a client that can't keep up is
// dropped rather than backpressuring the hub.
const clientBuffer = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint serves first-party clients only; origin checks happen at
	// the edge.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected websocket clients and fans count updates out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan api.CountUpdate
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast queues an update for every connected client.
// Slow clients are disconnected instead of blocking the caller.
func (h *Hub) Broadcast(update api.CountUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- update:
		default:
			log.Printf("[Realtime] Dropping slow client")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the connection and streams updates until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Realtime] Upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan api.CountUpdate, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[Realtime] Client connected (total=%d)", count)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects all clients.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		h.removeLocked(c)
	}
}

// writeLoop sends queued updates to one client.
func (h *Hub) writeLoop(c *client) {
	for update := range c.send {
		if err := c.conn.WriteJSON(update); err != nil {
			log.Printf("[Realtime] Write failed, dropping client: %v", err)
			h.remove(c)
			return
		}
	}
	c.conn.Close()
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the client's queue exactly once.
// Caller must hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}
