package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"
)

// outbound is one encoded event queued for a client.
type outbound struct {
	eventType domain.EventType
	origin    string
	payload   []byte
}

func encode(event domain.Event) (outbound, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return outbound{}, err
	}
	return outbound{eventType: event.EventType(), origin: event.OriginUserID(), payload: data}, nil
}

// room is the subscriber set of one broadcast group.
type room struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Hub maintains one broadcast group per room. Membership changes lock the
// room map and then the room; broadcasts only hold the room's read lock, so
// rooms never contend with each other.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Run blocks until ctx is done and then closes every connected client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	slog.Info("hub shutting down gracefully")
	h.shutdown()
	return ctx.Err()
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	var clients []*Client
	for _, r := range h.rooms {
		r.mu.RLock()
		for c := range r.clients {
			clients = append(clients, c)
		}
		r.mu.RUnlock()
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	slog.Info("hub shutdown complete", slog.Int("clients_closed", len(clients)))
}

// Join adds the client to its room's group. It reports whether the client
// was newly added; joining twice is a no-op.
func (h *Hub) Join(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.roomID]
	if !ok {
		r = &room{clients: make(map[*Client]struct{})}
		h.rooms[c.roomID] = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}

	observability.WebSocketConnectionsActive.WithLabelValues(c.roomID).Inc()
	slog.Info("client joined room",
		slog.String("user_id", c.userID),
		slog.String("room_id", c.roomID))
	return true
}

// Leave removes the client from its room's group. It reports whether the
// client was present; leaving twice is a no-op.
func (h *Hub) Leave(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.roomID]
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	if len(r.clients) == 0 {
		delete(h.rooms, c.roomID)
	}

	observability.WebSocketConnectionsActive.WithLabelValues(c.roomID).Dec()
	slog.Info("client left room",
		slog.String("user_id", c.userID),
		slog.String("room_id", c.roomID))
	return true
}

// Broadcast delivers the event to every client in the room.
func (h *Hub) Broadcast(ctx context.Context, roomID string, event domain.Event) {
	h.BroadcastExcept(ctx, roomID, event, "")
}

// BroadcastExcept delivers the event to every client in the room whose user
// is not excludeUserID. Delivery never blocks: a client with a full buffer
// misses the event.
func (h *Hub) BroadcastExcept(ctx context.Context, roomID string, event domain.Event, excludeUserID string) {
	msg, err := encode(event)
	if err != nil {
		observability.FromContext(ctx).Error("failed to marshal event",
			"type", event.EventType(),
			"room_id", roomID,
			"error", err)
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if excludeUserID != "" && c.userID == excludeUserID {
			continue
		}
		c.enqueue(msg)
	}
}

// RoomSize returns the number of connections subscribed to the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
