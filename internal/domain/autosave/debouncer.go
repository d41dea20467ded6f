package autosave

import (
	"sync"
	"time"

	"github.com/opsboard/pulse/pkg/clock"
)

// Debouncer runs fn once the window has elapsed since the last Trigger.
type Debouncer struct {
	mu     sync.Mutex
	clock  clock.Clock
	window time.Duration
	fn     func()
	timer  clock.Timer
	seq    uint64
}

// NewDebouncer creates a debouncer over c.
func NewDebouncer(c clock.Clock, window time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: c, window: window, fn: fn}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(seq) })
}

// Cancel stops a pending window. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Pending reports whether a window is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// fire ignores stale timers: a real timer may already be running its callback
// when Stop is called.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}
