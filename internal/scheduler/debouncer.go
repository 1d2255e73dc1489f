// Package scheduler runs delayed, per-key work that can be rescheduled or cancelled.
package scheduler

import (
	"sync"
	"time"
)

// Debouncer delays a function per key. Scheduling a key again before its timer fires
// restarts the delay and replaces the function, so only the last call runs.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timers  map[string]*entry
	seq     uint64
	stopped bool
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a Debouncer that waits delay after the last Schedule of a key.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, timers: make(map[string]*entry)}
}

// Delay returns the configured delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule runs fn for key after the delay unless the key is scheduled again or cancelled
// first. Returns false after Stop.
func (d *Debouncer) Schedule(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if e, ok := d.timers[key]; ok {
		e.timer.Stop()
	}
	d.seq++
	gen := d.seq
	e := &entry{gen: gen}
	e.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A timer that already fired may lose the race with a reschedule.
		cur, ok := d.timers[key]
		if !ok || cur.gen != gen {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = e
	return true
}

// Cancel drops the pending call for key. Returns true when one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.timers, key)
	return true
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every pending call. Later calls to Schedule are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, e := range d.timers {
		e.timer.Stop()
		delete(d.timers, key)
	}
	d.stopped = true
}
