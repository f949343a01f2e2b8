package synthesis

import (
	"sync"
	"time"
)

// Debounced coalesces bursts of triggers into one trailing-edge call: the
// function runs once, delay after the last Trigger. Stop cancels any pending
// run; call it on component teardown.
type Debounced struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebounced wraps fn with a trailing-edge debounce of the given delay.
func NewDebounced(delay time.Duration, fn func()) *Debounced {
	return &Debounced{delay: delay, fn: fn}
}

// Trigger schedules (or reschedules) the call.
func (d *Debounced) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any pending call. Safe to call repeatedly.
func (d *Debounced) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
