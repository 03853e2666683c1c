package ratelimit

import "time"

// Window defaults: at most 58 iterations per hour, and never less than
// a half hour pause once the batch is used up.
const (
	DefaultBatch    = 58
	DefaultWindow   = time.Hour
	DefaultMinSleep = 30 * time.Minute
)

// Window counts iterations and, once a batch completes, says how long
// to sleep so the batch spans at least the window.
type Window struct {
	batch    int
	window   time.Duration
	minSleep time.Duration

	count int
	start time.Time
}

// NewWindow starts a Window at now. Non-positive settings fall back to
// the defaults.
func NewWindow(batch int, window, minSleep time.Duration, now time.Time) *Window {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if minSleep < 0 {
		minSleep = DefaultMinSleep
	}
	return &Window{batch: batch, window: window, minSleep: minSleep, start: now}
}

// Tick records one completed iteration. When the batch is full it
// returns the pause max(minSleep, window-elapsed) and true; the caller
// sleeps and then calls Reset.
func (w *Window) Tick(now time.Time) (time.Duration, bool) {
	w.count++
	if w.count < w.batch {
		return 0, false
	}
	w.count = 0
	pause := w.window - now.Sub(w.start)
	if pause < w.minSleep {
		pause = w.minSleep
	}
	return pause, true
}

// Reset starts a new window at now.
func (w *Window) Reset(now time.Time) {
	w.count = 0
	w.start = now
}

// Count returns the iterations recorded in the current batch.
func (w *Window) Count() int {
	return w.count
}
