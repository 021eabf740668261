// Package push hands notifications for offline users to a delivery worker.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"kindred/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// OutboxKey is the Redis list the delivery worker pops from.
const OutboxKey = "push:outbox"

// Payload is a provider-neutral push message.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Envelope is what lands in the outbox.
type Envelope struct {
	UserID   uint      `json:"user_id"`
	Payload  Payload   `json:"payload"`
	QueuedAt time.Time `json:"queued_at"`
}

// Sender delivers a push. The bool reports whether it was accepted for delivery.
type Sender interface {
	Send(ctx context.Context, userID uint, p Payload) (bool, error)
}

// RedisOutbox queues pushes on a Redis list.
type RedisOutbox struct {
	rdb *redis.Client
}

// NewRedisOutbox creates an outbox sender.
func NewRedisOutbox(rdb *redis.Client) *RedisOutbox {
	return &RedisOutbox{rdb: rdb}
}

func (o *RedisOutbox) Send(ctx context.Context, userID uint, p Payload) (bool, error) {
	raw, err := json.Marshal(Envelope{UserID: userID, Payload: p, QueuedAt: time.Now().UTC()})
	if err != nil {
		return false, fmt.Errorf("marshal push: %w", err)
	}
	if err := o.rdb.LPush(ctx, OutboxKey, raw).Err(); err != nil {
		return false, fmt.Errorf("queue push: %w", err)
	}
	return true, nil
}

// LogSender only logs. Used when no Redis is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, userID uint, p Payload) (bool, error) {
	middleware.Logger.InfoContext(ctx, "push (log only)",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("title", p.Title),
	)
	return false, nil
}

// NewSender picks the outbox when Redis is available.
func NewSender(rdb *redis.Client) Sender {
	if rdb == nil {
		return LogSender{}
	}
	return NewRedisOutbox(rdb)
}
