// Package debounce provides a re-armable, cancellable timer.
package debounce

import (
	"sync"
	"time"
)

// Timer runs the most recently scheduled function once the delay has elapsed
// without another Reset. Each Reset releases the previous timer handle.
// After Stop no scheduled function will start.
type Timer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a Timer with the given quiet interval.
func New(delay time.Duration) *Timer {
	return &Timer{delay: delay}
}

// Delay returns the quiet interval.
func (t *Timer) Delay() time.Duration {
	return t.delay
}

// Reset cancels any pending call and schedules fn for now + delay.
// It is a no-op after Stop.
func (t *Timer) Reset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}

	// The generation guards against a timer that already fired and is
	// waiting on the lock while a newer Reset or Stop runs.
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		if t.stopped || gen != t.gen {
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending call, if any, but keeps the timer usable.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// Stop releases the timer for good. Pending calls never run and later Resets are ignored.
// A call that already started before Stop is not interrupted.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.stopped = true
}

// Pending reports whether a call is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
