// Package debounce provides a restartable one-shot timer.
package debounce

import (
	"sync"
	"time"
)

// Timer calls fn once the window has elapsed without another Arm. Each Arm
// restarts the window; a superseded window never fires.
type Timer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	closed  bool
}

// New returns an idle Timer.
func New(window time.Duration, fn func()) *Timer {
	return &Timer{window: window, fn: fn}
}

// Window reports the debounce interval.
func (t *Timer) Window() time.Duration { return t.window }

// Arm starts or restarts the window.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.pending = true
	t.timer = time.AfterFunc(t.window, func() { t.fire(gen) })
}

// Cancel drops a pending fire and reports whether one was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.pending
	t.stopLocked()
	return was
}

// Flush fires immediately if a window is pending.
func (t *Timer) Flush() bool {
	t.mu.Lock()
	if !t.pending || t.closed {
		t.mu.Unlock()
		return false
	}
	t.stopLocked()
	t.mu.Unlock()
	t.fn()
	return true
}

// Pending reports whether a fire is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Close cancels any pending fire and disables the timer.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.closed = true
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.pending || t.closed {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.mu.Unlock()
	t.fn()
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.gen++
}
