// Package notifications delivers realtime events to websocket clients, fanning
// out through Redis pub/sub when more than one instance is running.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"

	"kindred/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	roomChannelPrefix = "match:room:"
	userChannelPrefix = "notifications:user:"
)

// Notifier publishes encoded events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is attached.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishRoom sends a payload to everyone watching a conversation room.
func (n *Notifier) PublishRoom(ctx context.Context, roomID uint, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, RoomChannel(roomID), payload).Err()
}

// PublishUser sends a payload to every connection of a user.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// StartRoomSubscriber forwards match:room:* messages to onMessage until ctx ends.
func (n *Notifier) StartRoomSubscriber(ctx context.Context, onMessage func(roomID uint, payload string)) error {
	return n.subscribe(ctx, "room", roomChannelPrefix+"*", func(channel, payload string) {
		id, err := parseChannelID(channel, roomChannelPrefix)
		if err != nil {
			middleware.Logger.Warn("invalid room channel", slog.String("channel", channel))
			return
		}
		onMessage(id, payload)
	})
}

// StartUserSubscriber forwards notifications:user:* messages to onMessage until ctx ends.
func (n *Notifier) StartUserSubscriber(ctx context.Context, onMessage func(userID uint, payload string)) error {
	return n.subscribe(ctx, "user", userChannelPrefix+"*", func(channel, payload string) {
		id, err := parseChannelID(channel, userChannelPrefix)
		if err != nil {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		onMessage(id, payload)
	})
}

func (n *Notifier) subscribe(ctx context.Context, name, pattern string, onMessage func(channel, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, pattern)
	// Wait for the subscription to be confirmed so publishes right after
	// startup are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in subscriber",
								slog.String("subscriber", name),
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()
	return nil
}

func parseChannelID(channel, prefix string) (uint, error) {
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return 0, fmt.Errorf("channel %q lacks prefix %q", channel, prefix)
	}
	id, err := strconv.ParseUint(channel[len(prefix):], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// RoomChannel derives the Redis channel name for a conversation room.
func RoomChannel(roomID uint) string {
	return roomChannelPrefix + strconv.FormatUint(uint64(roomID), 10)
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
