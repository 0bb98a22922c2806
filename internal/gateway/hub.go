package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// roomPrefix namespaces per-symbol rooms.
const roomPrefix = "symbol:"

// Hub tracks connected clients and their symbol-room memberships, and
// fans events out to them. All methods are safe for concurrent use.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{} // room name → members
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// RoomName returns the room a symbol's updates are delivered to.
func RoomName(symbol string) string {
	return roomPrefix + symbol
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "client_id", c.ID(), "clients", total)
}

// Unregister removes a client from the hub and every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client disconnected", "client_id", c.ID(), "clients", total)
}

// Join adds a client to a symbol's room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, symbol string) {
	room := RoomName(symbol)
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
}

// Leave removes a client from a symbol's room. Leaving a room the
// client never joined is a no-op.
func (h *Hub) Leave(c *Client, symbol string) {
	room := RoomName(symbol)
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, data json.RawMessage) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// BroadcastToSymbol sends an event to the members of a symbol's room.
func (h *Hub) BroadcastToSymbol(symbol, event string, data json.RawMessage) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event, "symbol", symbol, "error", err)
		return
	}

	h.mu.RLock()
	members := h.rooms[RoomName(symbol)]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the member count of a symbol's room.
func (h *Hub) RoomSize(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomName(symbol)])
}
