// Package lock provides per-player locking for balance operations.
package lock

import (
	"context"
	"sync"
	"time"
)

// playerMutex is a mutex with a count of goroutines holding or waiting on it.
type playerMutex struct {
	mu   sync.Mutex
	refs int
}

// UserLock serialises balance operations per player. A player's entry is
// dropped once nobody holds or waits on it.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*playerMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*playerMutex)}
}

func (ul *UserLock) acquire(playerID string) *playerMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m, ok := ul.locks[playerID]
	if !ok {
		m = &playerMutex{}
		ul.locks[playerID] = m
	}
	m.refs++
	return m
}

func (ul *UserLock) release(playerID string, m *playerMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m.refs--
	if m.refs <= 0 {
		delete(ul.locks, playerID)
	}
}

// Lock acquires the lock for a player.
func (ul *UserLock) Lock(playerID string) {
	ul.acquire(playerID).mu.Lock()
}

// Unlock releases the lock for a player. Unlocking a player that is not
// locked does nothing.
func (ul *UserLock) Unlock(playerID string) {
	ul.mu.Lock()
	m, ok := ul.locks[playerID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Unlock()
	ul.release(playerID, m)
}

// TryLock attempts to acquire the lock without blocking.
func (ul *UserLock) TryLock(playerID string) bool {
	m := ul.acquire(playerID)
	if m.mu.TryLock() {
		return true
	}
	ul.release(playerID, m)
	return false
}

// LockWithTimeout attempts to acquire the lock within timeout.
// Returns false if the timeout or ctx expired first.
func (ul *UserLock) LockWithTimeout(ctx context.Context, playerID string, timeout time.Duration) bool {
	m := ul.acquire(playerID)

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine still gets the mutex eventually; hand it back.
		go func() {
			<-done
			m.mu.Unlock()
			ul.release(playerID, m)
		}()
		return false
	}
}

// WithLock executes fn while holding the player's lock.
func (ul *UserLock) WithLock(playerID string, fn func() error) error {
	ul.Lock(playerID)
	defer ul.Unlock(playerID)
	return fn()
}

// WithLockContext executes fn while holding the player's lock, giving up
// with ErrLockTimeout if it cannot be acquired within timeout.
func (ul *UserLock) WithLockContext(ctx context.Context, playerID string, timeout time.Duration, fn func() error) error {
	if !ul.LockWithTimeout(ctx, playerID, timeout) {
		return ErrLockTimeout
	}
	defer ul.Unlock(playerID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether a player's lock is currently held.
// This is a point-in-time check and may change immediately after.
func (ul *UserLock) IsLocked(playerID string) bool {
	ul.mu.Lock()
	m, ok := ul.locks[playerID]
	ul.mu.Unlock()
	if !ok {
		return false
	}
	if m.mu.TryLock() {
		m.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of players with a live lock entry.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
