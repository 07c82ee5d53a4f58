package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// playerLimiter throttles commands per player. Idle entries are pruned.
type playerLimiter struct {
	mu        sync.Mutex
	perSecond rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastPrune time.Time
	clockNow  func() time.Time
}

// newPlayerLimiter returns nil when perMinute is not positive.
func newPlayerLimiter(perMinute float64, burst int) *playerLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &playerLimiter{
		perSecond: rate.Limit(perMinute / 60.0),
		burst:     burst,
		entries:   make(map[string]*limiterEntry),
		clockNow:  time.Now,
	}
}

// Allow reports whether id may run a command now. A nil limiter allows all.
func (l *playerLimiter) Allow(id string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	if now.Sub(l.lastPrune) > time.Minute {
		for key, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.entries, key)
			}
		}
		l.lastPrune = now
	}

	e, ok := l.entries[id]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.entries[id] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
