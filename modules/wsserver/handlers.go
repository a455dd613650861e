package wsserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/thenetcircle/dino-sub002/modules/broadcast"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/pipeline"
	"github.com/thenetcircle/dino-sub002/modules/registry"
)

// Rate limiting constants
const (
	messagesPerSecond = 10
	burstSize         = 20
)

// rateLimiter implements a simple token bucket rate limiter.
type rateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newRateLimiter(maxTokens, refillRate int) *rateLimiter {
	return &rateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	tokensToAdd := int(elapsed.Seconds()) * r.refillRate
	if tokensToAdd > 0 {
		r.tokens += tokensToAdd
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

// wsConn serializes writes: the reply path and the broadcast pump share one
// socket.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) write(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// reply is the response envelope, echoing the inbound event id.
type reply struct {
	ID     string `json:"id,omitempty"`
	Status int    `json:"status"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Handlers drives WebSocket connections through the pipeline.
type Handlers struct {
	pipeline *pipeline.Pipeline
	hub      *broadcast.Hub
	registry registry.Registry
	history  history.Store
	logger   types.Logger
}

func NewHandlers(
	eventPipeline *pipeline.Pipeline,
	hub *broadcast.Hub,
	roomRegistry registry.Registry,
	historyStore history.Store,
	logger types.Logger,
) *Handlers {
	return &Handlers{
		pipeline: eventPipeline,
		hub:      hub,
		registry: roomRegistry,
		history:  historyStore,
		logger:   logger,
	}
}

// HandleWebSocket runs one connection. Events are processed strictly in
// receive order; broadcasts arrive through the hub client attached after a
// successful connect. A transport error synthesizes a disconnect so cleanup
// runs the same path as an explicit one.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	sock := &wsConn{conn: c}
	limiter := newRateLimiter(burstSize, messagesPerSecond)

	var client *broadcast.Client
	var userID string
	defer func() {
		if userID != "" {
			h.pipeline.Handle(context.Background(), pipeline.Event{
				Verb:  pipeline.VerbDisconnect,
				Actor: pipeline.Actor{ID: userID},
			})
		}
		if client != nil {
			h.hub.Detach(client)
		}
		c.Close()
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", "userID", userID, "error", err)
			}
			return
		}

		var ev pipeline.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.send(sock, reply{Status: 400, Reason: "malformed event"})
			continue
		}

		if ev.Verb == pipeline.VerbMessage && !limiter.allow() {
			h.send(sock, reply{ID: ev.ID, Status: 400, Reason: "rate limit exceeded"})
			continue
		}

		resp := h.pipeline.Handle(context.Background(), ev)

		switch ev.Verb {
		case pipeline.VerbConnect:
			if resp.Status == 200 {
				userID = ev.Actor.ID
				client = h.hub.Attach(userID)
				go h.pump(sock, client)
			}
		case pipeline.VerbDisconnect:
			if resp.Status == 200 {
				if client != nil {
					h.hub.Detach(client)
					client = nil
				}
				userID = ""
			}
		}

		h.send(sock, reply{ID: ev.ID, Status: resp.Status, Reason: resp.Reason, Data: resp.Data})
	}
}

// pump drains the hub client onto the socket until the stream closes.
func (h *Handlers) pump(sock *wsConn, client *broadcast.Client) {
	for payload := range client.Receive() {
		if err := sock.write(payload); err != nil {
			h.logger.Warn("Failed to push broadcast", "userID", client.UserID, "error", err)
			return
		}
	}
}

func (h *Handlers) send(sock *wsConn, r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		h.logger.Error("Failed to encode reply", "error", err)
		return
	}
	if err := sock.write(payload); err != nil {
		h.logger.Error("Failed to send reply", "error", err)
	}
}

// REST Handlers

// ListRooms handles room listing requests (GET /api/v1/rooms).
func (h *Handlers) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.registry.AllRooms(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"rooms": rooms,
		"total": len(rooms),
	})
}

// GetRoomHistory handles room history requests (GET /api/v1/rooms/:id/history).
func (h *Handlers) GetRoomHistory(c *fiber.Ctx) error {
	roomID := c.Params("id")

	exists, err := h.registry.RoomExists(c.Context(), roomID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !exists {
		return fiber.NewError(fiber.StatusNotFound, "room not found")
	}

	limit := c.QueryInt("limit", 50)
	if limit > 100 {
		limit = 100
	}

	page, err := h.history.HistoryLatest(c.Context(), roomID, limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"room_id":  roomID,
		"messages": page,
		"total":    len(page),
	})
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"clients": h.hub.ClientCount(),
	})
}
