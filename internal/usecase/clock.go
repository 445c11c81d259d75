package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock keeps a formatted wall-clock label refreshed on a fixed interval.
// It is independent of the feed session.
type Clock struct {
	interval time.Duration
	layout   string
	now      func() time.Time

	label atomic.Pointer[string]
	stop  chan struct{}
	once  sync.Once
}

// ClockOption configures Clock.
type ClockOption func(*Clock)

// WithClockNow replaces the time source.
func WithClockNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// NewClock creates a clock. Defaults are one second and "15:04:05".
func NewClock(interval time.Duration, layout string, opts ...ClockOption) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	if layout == "" {
		layout = "15:04:05"
	}
	c := &Clock{
		interval: interval,
		layout:   layout,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresh()
	return c
}

// Start ticks until ctx is cancelled or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-t.C:
				c.refresh()
			}
		}
	}()
}

// Stop halts the ticker. It is safe to call more than once, and before Start.
func (c *Clock) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Label returns the most recently formatted time.
func (c *Clock) Label() string {
	return *c.label.Load()
}

func (c *Clock) refresh() {
	s := c.now().Format(c.layout)
	c.label.Store(&s)
}
