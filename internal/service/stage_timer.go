package service

import (
	"sync"
	"time"
)

// StageTimer schedules one deferred callback per session. Scheduling again
// replaces the pending callback. Timers live in memory only.
type StageTimer interface {
	Schedule(sessionID uint, d time.Duration, fn func())
	Cancel(sessionID uint)
}

// AfterFuncTimer runs callbacks with time.AfterFunc.
type AfterFuncTimer struct {
	mu     sync.Mutex
	timers map[uint]*time.Timer
}

// NewAfterFuncTimer creates an empty timer set.
func NewAfterFuncTimer() *AfterFuncTimer {
	return &AfterFuncTimer{timers: make(map[uint]*time.Timer)}
}

func (t *AfterFuncTimer) Schedule(sessionID uint, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[sessionID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[sessionID] == timer {
			delete(t.timers, sessionID)
		}
		t.mu.Unlock()
		fn()
	})
	t.timers[sessionID] = timer
}

func (t *AfterFuncTimer) Cancel(sessionID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[sessionID]; ok {
		old.Stop()
		delete(t.timers, sessionID)
	}
}

// Stop cancels everything, used on shutdown.
func (t *AfterFuncTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
