package perf

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultThrottle = 16 * time.Millisecond
)

// Debouncer runs only the last function passed to Call once no further call
// has arrived for the delay.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Call schedules fn, replacing anything scheduled earlier.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels a pending call. It reports whether one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Throttler admits at most one event per interval and drops the rest.
type Throttler struct {
	limiter *rate.Limiter
}

func NewThrottler(interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultThrottle
	}
	return &Throttler{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether an event may run now.
func (t *Throttler) Allow() bool {
	return t.limiter.Allow()
}
