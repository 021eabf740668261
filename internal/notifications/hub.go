package notifications

import (
	"context"
	"errors"
	"sync"

	"kindred/internal/middleware"
	"kindred/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 8
	maxTotalConns   = 10000
)

var (
	// ErrServerFull is returned when the instance connection cap is reached.
	ErrServerFull = errors.New("server connection limit reached")
	// ErrUserConnLimit is returned when one user opens too many sockets.
	ErrUserConnLimit = errors.New("user connection limit reached")
)

// Hub maps userID to that user's live connections.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	presence   *ConnectionManager
	log        *observability.WSLogger
}

// NewHub creates a user hub backed by presence.
func NewHub(presence *ConnectionManager) *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		presence: presence,
		log:      observability.NewWSLogger("user hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "user hub" }

// Register adds a connection for userID, enforcing per-user and global caps.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserConnLimit
	}

	client := NewClient(h, conn, userID)
	if h.presence != nil {
		client.OnActivity = func(uid uint) { h.presence.Touch(context.Background(), uid) }
	}
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	if h.presence != nil {
		h.presence.Register(context.Background(), userID)
	}
	h.log.LogConnect(context.Background(), userID, 0)
	return client, nil
}

// UnregisterClient removes a connection. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	middleware.ActiveWebSockets.Dec()
	if h.presence != nil {
		h.presence.Unregister(context.Background(), client.UserID)
	}
	h.log.LogDisconnect(context.Background(), client.UserID, 0, "closed")
}

// Deliver sends payload to every connection of userID on this instance.
func (h *Hub) Deliver(userID uint, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		c.TrySend(payload)
	}
}

// IsOnline reports whether userID has a live websocket on any instance.
func (h *Hub) IsOnline(userID uint) bool {
	if h.presence != nil {
		return h.presence.IsOnline(context.Background(), userID)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// StartWiring subscribes to user channels and forwards to local connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartUserSubscriber(ctx, func(userID uint, payload string) {
		h.Deliver(userID, []byte(payload))
	})
}

// Shutdown closes every connection with a going-away frame.
func (h *Hub) Shutdown(_ context.Context) error {
	if h.presence != nil {
		h.presence.Stop()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.conns {
		for c := range clients {
			closeConn(h.log, c, userID)
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}

func closeConn(log *observability.WSLogger, c *Client, userID uint) {
	if c.Conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.Conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		log.LogError(context.Background(), userID, c.RoomID, err, "shutdown")
	}
	_ = c.Conn.Close()
}
