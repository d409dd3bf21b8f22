package funnel

import (
	"sync"
	"time"
)

// RollingWindow counts events over a rolling time window.
//
// Unlike a bucketed window it keeps one timestamp per event, which is
// cheap at the small limits a request funnel runs with and gives an exact
// wait time for the next free slot.
//
// # Thread Safety
//
// RollingWindow is thread-safe using sync.Mutex.
type RollingWindow struct {
	window time.Duration
	limit  int
	events []time.Time // oldest first
	mu     sync.Mutex
	now    func() time.Time
}

// NewRollingWindow creates a window admitting limit events per window.
func NewRollingWindow(window time.Duration, limit int) *RollingWindow {
	return &RollingWindow{
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// TryAdd records an event if the window has room. Otherwise it returns
// false and how long until the oldest event leaves the window.
func (rw *RollingWindow) TryAdd() (bool, time.Duration) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := rw.now()
	rw.pruneLocked(now)

	if len(rw.events) < rw.limit {
		rw.events = append(rw.events, now)
		return true, 0
	}

	wait := rw.events[0].Add(rw.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// Count returns the number of events in the window.
func (rw *RollingWindow) Count() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.pruneLocked(rw.now())
	return len(rw.events)
}

// Remaining returns the time until the oldest event expires, or zero
// when the window is empty.
func (rw *RollingWindow) Remaining() time.Duration {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := rw.now()
	rw.pruneLocked(now)
	if len(rw.events) == 0 {
		return 0
	}
	return rw.events[0].Add(rw.window).Sub(now)
}

// Reset clears all events.
func (rw *RollingWindow) Reset() {
	rw.mu.Lock()
	rw.events = rw.events[:0]
	rw.mu.Unlock()
}

// pruneLocked drops events older than the window.
// Caller must hold the lock.
func (rw *RollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.window)
	n := 0
	for n < len(rw.events) && !rw.events[n].After(cutoff) {
		n++
	}
	if n > 0 {
		rw.events = append(rw.events[:0], rw.events[n:]...)
	}
}
