package tracking

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before an update is sent.
const DefaultDebounce = 750 * time.Millisecond

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// Debouncer coalesces bursts of calls per key into one delayed call carrying
// the latest function.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pendingCall
	running sync.WaitGroup
	stopped bool
}

// NewDebouncer creates a Debouncer waiting delay after the last trigger.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingCall),
	}
}

// Trigger schedules fn for key, replacing any pending call. It reports false
// once the debouncer is stopped.
func (d *Debouncer) Trigger(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if existing, ok := d.pending[key]; ok {
		existing.timer.Stop()
	}
	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(d.delay, func() { d.fire(key, call) })
	d.pending[key] = call
	return true
}

func (d *Debouncer) fire(key string, call *pendingCall) {
	d.mu.Lock()
	if d.pending[key] != call {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	call.fn()
}

// Cancel drops the pending call for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if call, ok := d.pending[key]; ok {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending counts scheduled calls.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// FlushKey runs the pending call for key now.
func (d *Debouncer) FlushKey(key string) {
	d.mu.Lock()
	call, ok := d.pending[key]
	if ok {
		call.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		call.fn()
	}
}

// Flush runs every pending call now, on the caller's goroutine.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	calls := make([]*pendingCall, 0, len(d.pending))
	for key, call := range d.pending {
		call.timer.Stop()
		calls = append(calls, call)
		delete(d.pending, key)
	}
	d.mu.Unlock()
	for _, call := range calls {
		call.fn()
	}
}

// Stop flushes pending calls, rejects new ones and waits for calls already
// running on timer goroutines.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
	d.running.Wait()
}
