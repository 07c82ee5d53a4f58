package service

import (
	"math"
	"sync"
	"time"
)

// Cooldown suspends purchases for a fixed window after each round start.
// Before the first round start no cooldown applies.
type Cooldown struct {
	mu         sync.Mutex
	duration   func() time.Duration
	roundStart time.Time
	now        func() time.Time
}

// NewCooldown creates a cooldown whose length is read from duration on every
// check so configuration reloads apply immediately.
func NewCooldown(duration func() time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{duration: duration, now: now}
}

// RoundStarted restarts the window at the current time.
func (c *Cooldown) RoundStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roundStart = c.now()
}

// Remaining returns the whole seconds left in the window, rounded up.
func (c *Cooldown) Remaining() int64 {
	c.mu.Lock()
	start := c.roundStart
	c.mu.Unlock()

	if start.IsZero() {
		return 0
	}
	d := c.duration()
	if d <= 0 {
		return 0
	}
	left := d - c.now().Sub(start)
	if left <= 0 {
		return 0
	}
	return int64(math.Ceil(left.Seconds()))
}

// Active reports whether purchases are currently suspended.
func (c *Cooldown) Active() bool {
	return c.Remaining() > 0
}
