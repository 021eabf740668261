package notifications

import (
	"context"
	"fmt"

	"kindred/internal/middleware"
	"kindred/internal/observability"
)

// Broker routes events to rooms and users. With Redis attached every
// instance receives the event through pub/sub; without it delivery stays
// in-process.
type Broker struct {
	notifier *Notifier
	users    *Hub
	rooms    *RoomHub
}

// NewBroker wires the notifier and the local hubs together.
func NewBroker(notifier *Notifier, users *Hub, rooms *RoomHub) *Broker {
	return &Broker{notifier: notifier, users: users, rooms: rooms}
}

// Start subscribes the local hubs to Redis. It is a no-op without Redis.
func (b *Broker) Start(ctx context.Context) error {
	if !b.notifier.Enabled() {
		middleware.Logger.Info("realtime broker running in-process")
		return nil
	}
	if err := b.users.StartWiring(ctx, b.notifier); err != nil {
		return err
	}
	return b.rooms.StartWiring(ctx, b.notifier)
}

// PublishRoom sends event to everyone watching roomID.
func (b *Broker) PublishRoom(ctx context.Context, roomID uint, event Event) error {
	if event.RoomID == 0 {
		event.RoomID = roomID
	}
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()

	if b.notifier.Enabled() {
		if err := b.notifier.PublishRoom(ctx, roomID, payload); err != nil {
			b.rooms.Deliver(roomID, payload)
			return fmt.Errorf("publish room %d: %w", roomID, err)
		}
		return nil
	}
	b.rooms.Deliver(roomID, payload)
	return nil
}

// PublishUser sends event to every connection of userID.
func (b *Broker) PublishUser(ctx context.Context, userID uint, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()

	if b.notifier.Enabled() {
		if err := b.notifier.PublishUser(ctx, userID, payload); err != nil {
			b.users.Deliver(userID, payload)
			return fmt.Errorf("publish user %d: %w", userID, err)
		}
		return nil
	}
	b.users.Deliver(userID, payload)
	return nil
}

// IsOnline reports whether userID has a live user stream.
func (b *Broker) IsOnline(userID uint) bool {
	return b.users.IsOnline(userID)
}

// CloseRoom disconnects local watchers of a removed room.
func (b *Broker) CloseRoom(roomID uint) {
	b.rooms.Evict(roomID)
}
