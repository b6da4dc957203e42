package receiver

import (
	"sync"
	"time"
)

const DefaultTimeout = 5 * time.Second

type WatchState string

const (
	Live     WatchState = "live"
	TimedOut WatchState = "timed_out"
)

// Watchdog tracks time since the last accepted sentence. Poll reports the
// LIVE -> TIMED_OUT transition exactly once; Touch returns to LIVE without
// reporting anything.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	last     time.Time
	timedOut bool
}

func NewWatchdog(timeout time.Duration, now time.Time) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{timeout: timeout, last: now}
}

// Touch records an accepted sentence. It returns true if this ended a
// timeout.
func (w *Watchdog) Touch(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = now
	recovered := w.timedOut
	w.timedOut = false
	return recovered
}

// Poll returns true when the timeout has just elapsed.
func (w *Watchdog) Poll(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut || now.Sub(w.last) < w.timeout {
		return false
	}
	w.timedOut = true
	return true
}

func (w *Watchdog) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return TimedOut
	}
	return Live
}

// Since returns the time elapsed since the last accepted sentence.
func (w *Watchdog) Since(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.last)
}

func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}
