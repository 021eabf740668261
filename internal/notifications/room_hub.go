package notifications

import (
	"context"
	"sync"

	"kindred/internal/middleware"
	"kindred/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// RoomHub is conversation-centric: it maps a room to the clients watching it.
// Each client watches exactly one room.
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*Client]struct{}
	log   *observability.WSLogger
}

// NewRoomHub creates an empty room hub.
func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms: make(map[uint]map[*Client]struct{}),
		log:   observability.NewWSLogger("room hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *RoomHub) Name() string { return "room hub" }

// Join registers a connection of userID watching roomID.
func (h *RoomHub) Join(roomID, userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	perUser := 0
	for c := range members {
		if c.UserID == userID {
			perUser++
		}
	}
	if perUser >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserConnLimit
	}
	client := NewClient(h, conn, userID)
	client.RoomID = roomID
	members[client] = struct{}{}
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	h.log.LogConnect(context.Background(), userID, roomID)
	return client, nil
}

// UnregisterClient removes a client from its room.
func (h *RoomHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if members, ok := h.rooms[client.RoomID]; ok {
		if _, exists := members[client]; exists {
			delete(members, client)
			removed = true
		}
		if len(members) == 0 {
			delete(h.rooms, client.RoomID)
		}
	}
	h.mu.Unlock()

	if removed {
		middleware.ActiveWebSockets.Dec()
		h.log.LogDisconnect(context.Background(), client.UserID, client.RoomID, "closed")
	}
}

// Deliver sends payload to every client watching roomID on this instance.
func (h *RoomHub) Deliver(roomID uint, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		c.TrySend(payload)
	}
}

// Evict disconnects every client of roomID, used when the match is removed.
func (h *RoomHub) Evict(roomID uint) {
	h.mu.Lock()
	members := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for c := range members {
		middleware.ActiveWebSockets.Dec()
		closeConn(h.log, c, c.UserID)
	}
}

// Watchers returns the distinct users watching roomID on this instance.
func (h *RoomHub) Watchers(roomID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[uint]struct{})
	out := make([]uint, 0, 2)
	for c := range h.rooms[roomID] {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		out = append(out, c.UserID)
	}
	return out
}

// StartWiring subscribes to room channels and forwards to local watchers.
func (h *RoomHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRoomSubscriber(ctx, func(roomID uint, payload string) {
		h.Deliver(roomID, []byte(payload))
	})
}

// Shutdown closes every room connection.
func (h *RoomHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, members := range h.rooms {
		for c := range members {
			closeConn(h.log, c, c.UserID)
		}
	}
	h.rooms = make(map[uint]map[*Client]struct{})
	return nil
}
