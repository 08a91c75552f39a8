package session

import (
	"sync"
	"time"
)

// Countdown is the cosmetic per-second timer shown during the Comment
// and Vote phases. It is display-only: the authoritative end of a
// phase is always a server event, never this timer reaching zero. It
// must be stopped on every phase transition so a stale tick cannot
// touch the display after the phase moved on.
type Countdown struct {
	mu sync.Mutex

	remaining int
	stopCh    chan struct{}

	// interval is a second in production; tests shrink it.
	interval time.Duration
}

func NewCountdown() *Countdown {
	return &Countdown{interval: time.Second}
}

// Start resets the countdown to the given number of seconds and starts
// ticking. Any previous run is stopped first, so restarting with a new
// server-supplied duration is safe.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds

	if seconds == 0 {
		return
	}

	stopCh := make(chan struct{})
	c.stopCh = stopCh

	go c.run(stopCh)
}

func (c *Countdown) run(stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if c.Tick() == 0 {
				return
			}
		}
	}
}

// Tick decrements once, flooring at zero, and returns the remainder.
func (c *Countdown) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remaining
}

// Stop cancels the ticking goroutine and zeroes the display. Safe to
// call repeatedly and when nothing is running.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.remaining = 0
}

func (c *Countdown) stopLocked() {
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}
