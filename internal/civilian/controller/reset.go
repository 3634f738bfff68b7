package controller

import (
	"sync"
	"time"
)

// ResetScheduler arms a single delayed reset after a terminal status. A new
// Schedule replaces any armed timer (last-call-wins, not additive) and Cancel
// disarms it; it is disarmed on controller teardown so it never acts on a
// defunct session.
type ResetScheduler struct {
	delay time.Duration
	fire  func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewResetScheduler(delay time.Duration, fire func()) *ResetScheduler {
	return &ResetScheduler{delay: delay, fire: fire}
}

func (r *ResetScheduler) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, r.fire)
}

func (r *ResetScheduler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
