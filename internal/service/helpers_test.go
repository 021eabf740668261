package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"kindred/internal/hostscript"
	"kindred/internal/media"
	"kindred/internal/notifications"
	"kindred/internal/push"
	"kindred/internal/repository"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	roomID uint
	userID uint
	event  notifications.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishRoom(_ context.Context, roomID uint, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{roomID: roomID, event: event})
	return nil
}

func (p *recordingPublisher) PublishUser(_ context.Context, userID uint, event notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{userID: userID, event: event})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type pushStub struct {
	mu   sync.Mutex
	sent []uint
}

func (p *pushStub) Send(_ context.Context, userID uint, _ push.Payload) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, userID)
	return true, nil
}

type presenceStub map[uint]bool

func (p presenceStub) IsOnline(userID uint) bool { return p[userID] }

type roomCloserStub struct {
	closed []uint
}

func (r *roomCloserStub) CloseRoom(roomID uint) { r.closed = append(r.closed, roomID) }

type storeStub struct {
	mu        sync.Mutex
	deleted   []string
	deleteErr error
	UploadFn  func(ctx context.Context, in media.UploadInput) (*media.Object, error)
}

func (s *storeStub) Upload(ctx context.Context, in media.UploadInput) (*media.Object, error) {
	if s.UploadFn != nil {
		return s.UploadFn(ctx, in)
	}
	return nil, errors.New("upload not stubbed")
}

func (s *storeStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return s.deleteErr
}

const testDwell = time.Minute

type fixture struct {
	db        *gorm.DB
	publisher *recordingPublisher
	pusher    *pushStub
	presence  presenceStub
	rooms     *roomCloserStub
	store     *storeStub
	timer     *manualTimer

	swipeRepo repository.SwipeRepository
	matchRepo repository.MatchRepository
	hostRepo  repository.HostRepository

	swipes     *SwipeService
	matches    *MatchService
	hosts      *HostService
	moderation *ModerationService
	chats      *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	script, err := hostscript.Default()
	require.NoError(t, err)
	content := hostscript.NewLibrary(script, hostscript.FixedPicker{Index: 0, React: true}, 100)

	f := &fixture{
		db:        db,
		publisher: &recordingPublisher{},
		pusher:    &pushStub{},
		presence:  presenceStub{},
		rooms:     &roomCloserStub{},
		store:     &storeStub{},
		timer:     newManualTimer(),
		swipeRepo: repository.NewSwipeRepository(db),
		matchRepo: repository.NewMatchRepository(db),
		hostRepo:  repository.NewHostRepository(db),
	}
	users := repository.NewUserRepository(db)

	f.matches = NewMatchService(f.matchRepo, f.swipeRepo, users, f.hostRepo, f.publisher, f.presence, f.pusher, nil)
	f.swipes = NewSwipeService(f.swipeRepo, users, repository.NewReportRepository(db), f.matches)
	f.hosts = NewHostService(f.hostRepo, f.matchRepo, content, f.publisher, f.presence, f.pusher, f.timer, testDwell)
	f.moderation = NewModerationService(db, f.matchRepo, f.swipeRepo, repository.NewReportRepository(db), users, f.store, f.publisher, f.rooms)
	f.chats = NewChatService(repository.NewChatRepository(db), f.matchRepo, f.store, f.publisher)
	return f
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// manualTimer records scheduled callbacks and fires them on demand, standing in
// for AfterFuncTimer in tests.
type manualTimer struct {
	mu      sync.Mutex
	pending map[uint]manualEntry
}

type manualEntry struct {
	d  time.Duration
	fn func()
}

func newManualTimer() *manualTimer {
	return &manualTimer{pending: make(map[uint]manualEntry)}
}

func (t *manualTimer) Schedule(sessionID uint, d time.Duration, fn func()) {
	t.mu.Lock()
	t.pending[sessionID] = manualEntry{d: d, fn: fn}
	t.mu.Unlock()
}

func (t *manualTimer) Cancel(sessionID uint) {
	t.mu.Lock()
	delete(t.pending, sessionID)
	t.mu.Unlock()
}

// Pending lists sessions with a scheduled callback.
func (t *manualTimer) Pending() []uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Delay returns the scheduled delay of a pending callback.
func (t *manualTimer) Delay(sessionID uint) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[sessionID]
	return e.d, ok
}

// Fire runs and removes the callback of sessionID. It reports whether one was pending.
func (t *manualTimer) Fire(sessionID uint) bool {
	t.mu.Lock()
	e, ok := t.pending[sessionID]
	delete(t.pending, sessionID)
	t.mu.Unlock()
	if ok {
		e.fn()
	}
	return ok
}
