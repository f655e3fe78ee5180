package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/recoverypulse/internal/model"
)

// Message is a live-update notification broadcast to every dashboard.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// CheckInSaved announces a submitted or edited check-in.
func CheckInSaved(c *model.CheckIn) Message {
	return NewMessage("checkin", "saved", c.ID, map[string]any{
		"date":           c.Date,
		"recovery_score": c.RecoveryScore,
	})
}

// CheckInsReset announces the administrative wipe.
func CheckInsReset(deleted int64) Message {
	return NewMessage("checkins", "reset", 0, map[string]any{"deleted": deleted})
}

// AccessChanged announces a new lock state after a billing or grace change.
func AccessChanged(locked bool) Message {
	return NewMessage("access", "changed", 0, map[string]any{"is_locked": locked})
}

// ConnectionObserver is told when clients come and go.
type ConnectionObserver interface {
	WebSocketConnected()
	WebSocketDisconnected()
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	logger   *slog.Logger
	observer ConnectionObserver
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// WithObserver attaches o and returns the hub.
func (h *Hub) WithObserver(o ConnectionObserver) *Hub {
	h.observer = o
	return h
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.WebSocketConnected()
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.observer != nil {
		h.observer.WebSocketDisconnected()
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, message dropped", "type", msg.Type)
		}
	}
}

// Shutdown disconnects every client. Their write pumps see the closed
// channel and return.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	for c := range clients {
		close(c.send)
	}
	h.mu.Unlock()

	if h.observer != nil {
		for range clients {
			h.observer.WebSocketDisconnected()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
