// Package service holds the swipe, match, host and moderation business logic.
package service

import (
	"context"
	"log/slog"

	"kindred/internal/middleware"
	"kindred/internal/notifications"
)

// EventPublisher routes realtime events to a room or a user. Delivery is best
// effort: persisted state never depends on it.
type EventPublisher interface {
	PublishRoom(ctx context.Context, roomID uint, event notifications.Event) error
	PublishUser(ctx context.Context, userID uint, event notifications.Event) error
}

// PresenceChecker reports whether a user has a live realtime connection.
type PresenceChecker interface {
	IsOnline(userID uint) bool
}

// RoomCloser disconnects watchers of a deleted room.
type RoomCloser interface {
	CloseRoom(roomID uint)
}

type noopPublisher struct{}

func (noopPublisher) PublishRoom(context.Context, uint, notifications.Event) error { return nil }
func (noopPublisher) PublishUser(context.Context, uint, notifications.Event) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func publishRoom(ctx context.Context, p EventPublisher, roomID uint, event notifications.Event) {
	if err := p.PublishRoom(ctx, roomID, event); err != nil {
		middleware.Logger.WarnContext(ctx, "room publish failed",
			slog.Uint64("room_id", uint64(roomID)),
			slog.String("event", event.Type),
			slog.String("error", err.Error()))
	}
}

func publishUser(ctx context.Context, p EventPublisher, userID uint, event notifications.Event) {
	if err := p.PublishUser(ctx, userID, event); err != nil {
		middleware.Logger.WarnContext(ctx, "user publish failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("event", event.Type),
			slog.String("error", err.Error()))
	}
}
