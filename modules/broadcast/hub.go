// Package broadcast routes pipeline events to connected clients.
package broadcast

import (
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

// sendBuffer bounds the per-client queue; a slow reader loses events rather
// than stalling the fanout.
const sendBuffer = 256

// Client is one attached connection. Events arrive on the send channel; the
// transport drains it with a writer pump. The channel is closed on detach,
// which is the pump's cancellation signal.
type Client struct {
	UserID string
	send   chan []byte
}

// Receive returns the client's outbound event stream.
func (c *Client) Receive() <-chan []byte {
	return c.send
}

// Hub tracks attached clients by user id and delivers payloads to recipient
// sets. Delivery is best-effort: an absent or saturated client is skipped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  types.Logger
}

func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Attach registers a connection for a user. A second attach for the same
// user replaces the first, which gets its channel closed.
func (h *Hub) Attach(userID string) *Client {
	client := &Client{
		UserID: userID,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		close(old.send)
	}
	h.clients[userID] = client
	h.mu.Unlock()

	h.logger.Debug("Client attached", "userID", userID)
	return client
}

// Detach removes the client and closes its event stream. Detaching a client
// that was already replaced is a no-op.
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
		close(client.send)
		h.logger.Debug("Client detached", "userID", client.UserID)
	}
}

// DeliverTo queues the payload for each recipient that is attached.
func (h *Hub) DeliverTo(recipients []string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range recipients {
		client, ok := h.clients[userID]
		if !ok {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("Client send buffer full, dropping event", "userID", userID)
		}
	}
}

// DeliverAll queues the payload for every attached client.
func (h *Hub) DeliverAll(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("Client send buffer full, dropping event", "userID", userID)
		}
	}
}

// CloseAll detaches every client, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
