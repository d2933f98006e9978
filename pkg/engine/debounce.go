package engine

import "time"

// Debouncer coalesces bursty viewport-change notifications into a single
// render request after a quiet period. Each notification overwrites the
// pending target viewport and restarts the quiet window, so superseded
// requests are simply discarded (last-request-wins). It holds explicit
// pending/deadline state against a monotonic clock instead of depending on a
// UI toolkit timer; the owner polls it from its interaction loop.
type Debouncer struct {
	quiet      time.Duration
	now        func() time.Time
	pending    Viewport
	hasPending bool
	deadline   time.Time
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (d *Debouncer) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Notify records a viewport change, overwriting any pending one and
// restarting the quiet window.
func (d *Debouncer) Notify(vp Viewport) {
	d.pending = vp
	d.hasPending = true
	d.deadline = d.now().Add(d.quiet)
}

// Pending reports the viewport waiting for the quiet window to elapse.
func (d *Debouncer) Pending() (Viewport, bool) {
	return d.pending, d.hasPending
}

// Poll fires at most once per burst: when a pending viewport exists and the
// quiet window has elapsed it returns that viewport and clears the state.
func (d *Debouncer) Poll() (Viewport, bool) {
	if !d.hasPending || d.now().Before(d.deadline) {
		return Viewport{}, false
	}
	d.hasPending = false
	return d.pending, true
}

// WheelCoalescer accumulates scroll deltas and releases the sum at a fixed
// tick rate, so bursts of small wheel events become one zoom/pan step
// instead of many. Accumulation is last-write-wins on everything except the
// delta, which sums.
type WheelCoalescer struct {
	interval time.Duration
	now      func() time.Time
	delta    float64
	active   bool
	flushAt  time.Time
}

// NewWheelCoalescer creates a coalescer flushing at the given interval.
func NewWheelCoalescer(interval time.Duration) *WheelCoalescer {
	return &WheelCoalescer{interval: interval, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (w *WheelCoalescer) SetClock(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// Add accumulates one wheel delta. The first delta of a burst schedules the
// flush tick; later deltas accumulate without extending it.
func (w *WheelCoalescer) Add(delta float64) {
	w.delta += delta
	if !w.active {
		w.active = true
		w.flushAt = w.now().Add(w.interval)
	}
}

// Poll returns the accumulated delta once the flush tick has passed.
func (w *WheelCoalescer) Poll() (float64, bool) {
	if !w.active || w.now().Before(w.flushAt) {
		return 0, false
	}
	d := w.delta
	w.delta = 0
	w.active = false
	return d, true
}
