package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"kindred/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	presenceOnlineSet    = "ws:online_users"
	presenceLastSeenNS   = "ws:last_seen:"
	presenceTTL          = 90 * time.Second
	presenceOfflineGrace = 5 * time.Second
	presenceReapInterval = 60 * time.Second
)

// ConnectionManager answers "does this user have a live websocket anywhere?".
// Local connection counts are authoritative for this instance; Redis last-seen
// keys cover connections held by other instances.
type ConnectionManager struct {
	rdb *redis.Client

	mu       sync.RWMutex
	counts   map[uint]int
	timers   map[uint]*time.Timer
	notified map[uint]bool
	grace    time.Duration

	onOffline func(userID uint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnectionManager creates a manager. With Redis it also runs a reaper that
// drops users whose last-seen key expired.
func NewConnectionManager(rdb *redis.Client) *ConnectionManager {
	m := &ConnectionManager{
		rdb:      rdb,
		counts:   make(map[uint]int),
		timers:   make(map[uint]*time.Timer),
		notified: make(map[uint]bool),
		grace:    presenceOfflineGrace,
		stopCh:   make(chan struct{}),
	}
	if rdb != nil {
		go m.reapLoop(presenceReapInterval)
	}
	return m
}

// SetOfflineGracePeriod changes how long a user stays online after the last disconnect.
func (m *ConnectionManager) SetOfflineGracePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.grace = d
	m.mu.Unlock()
}

// OnOffline registers a callback fired once per offline transition.
func (m *ConnectionManager) OnOffline(fn func(userID uint)) {
	m.mu.Lock()
	m.onOffline = fn
	m.mu.Unlock()
}

// Register counts a new connection for userID.
func (m *ConnectionManager) Register(ctx context.Context, userID uint) {
	m.mu.Lock()
	if t, ok := m.timers[userID]; ok {
		t.Stop()
		delete(m.timers, userID)
	}
	m.counts[userID]++
	m.notified[userID] = false
	m.mu.Unlock()

	m.Touch(ctx, userID)
}

// Touch refreshes the user's last-seen key.
func (m *ConnectionManager) Touch(ctx context.Context, userID uint) {
	if m.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, presenceOnlineSet, uid)
		pipe.SetEx(ctx, presenceLastSeenNS+uid, strconv.FormatInt(time.Now().Unix(), 10), presenceTTL)
		return nil
	})
	if err != nil {
		middleware.Logger.Warn("presence touch failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
}

// Unregister drops one connection. The last one starts the offline grace timer.
func (m *ConnectionManager) Unregister(_ context.Context, userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.counts[userID]
	if !ok {
		return
	}
	if n > 1 {
		m.counts[userID] = n - 1
		return
	}
	delete(m.counts, userID)

	if t, ok := m.timers[userID]; ok {
		t.Stop()
	}
	m.timers[userID] = time.AfterFunc(m.grace, func() {
		m.finalizeOffline(context.Background(), userID)
	})
}

// IsOnline reports a live connection here or a fresh last-seen key in Redis.
func (m *ConnectionManager) IsOnline(ctx context.Context, userID uint) bool {
	m.mu.RLock()
	local := m.counts[userID] > 0
	_, pending := m.timers[userID]
	m.mu.RUnlock()
	if local || pending {
		return true
	}
	if m.rdb == nil {
		return false
	}
	n, err := m.rdb.Exists(ctx, presenceLastSeenNS+strconv.FormatUint(uint64(userID), 10)).Result()
	return err == nil && n > 0
}

// Stop halts the reaper and pending offline timers.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		for id, t := range m.timers {
			t.Stop()
			delete(m.timers, id)
		}
		m.mu.Unlock()
	})
}

func (m *ConnectionManager) finalizeOffline(ctx context.Context, userID uint) {
	m.mu.Lock()
	delete(m.timers, userID)
	if m.counts[userID] > 0 {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.rdb != nil {
		uid := strconv.FormatUint(uint64(userID), 10)
		_ = m.rdb.Del(ctx, presenceLastSeenNS+uid).Err()
		_ = m.rdb.SRem(ctx, presenceOnlineSet, uid).Err()
	}
	m.emitOffline(userID)
}

func (m *ConnectionManager) emitOffline(userID uint) {
	m.mu.Lock()
	if m.notified[userID] {
		m.mu.Unlock()
		return
	}
	m.notified[userID] = true
	cb := m.onOffline
	m.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

// reapOnce removes online-set members whose last-seen key has expired.
func (m *ConnectionManager) reapOnce(ctx context.Context) {
	members, err := m.rdb.SMembers(ctx, presenceOnlineSet).Result()
	if err != nil {
		return
	}
	for _, raw := range members {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = m.rdb.SRem(ctx, presenceOnlineSet, raw).Err()
			continue
		}
		if n, err := m.rdb.Exists(ctx, presenceLastSeenNS+raw).Result(); err != nil || n > 0 {
			continue
		}
		_ = m.rdb.SRem(ctx, presenceOnlineSet, raw).Err()

		m.mu.RLock()
		local := m.counts[uint(id)] > 0
		m.mu.RUnlock()
		if !local {
			m.emitOffline(uint(id))
		}
	}
}

func (m *ConnectionManager) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapOnce(context.Background())
		}
	}
}
