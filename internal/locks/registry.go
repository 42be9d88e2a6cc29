// Package locks provides per-terrain exclusive locks with FIFO fairness.
package locks

import (
	"context"
	"sync"
)

// TerrainLock is an exclusive lock scoped to one terrain. Waiters are
// granted the lock in the order they arrived, so no caller can be starved
// by overtaking.
type TerrainLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// Acquire blocks until the lock is granted or ctx is cancelled.
// On cancellation the waiter is removed from the queue; a grant that races
// with the cancellation is passed on to the next waiter, never leaked.
func (l *TerrainLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Not in the queue anymore: the grant already happened, so we
		// own the lock. Hand it to the next waiter before giving up.
		l.Release()
		return ctx.Err()
	}
}

// Release hands the lock to the oldest waiter, or marks it free.
func (l *TerrainLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}
	l.held = false
}

// Registry maps a terrain ID to its lock. Locks are created lazily on first
// reference and kept for the lifetime of the process; the terrain catalog is
// small and bounded, so the map never needs eviction.
type Registry struct {
	mu    sync.Mutex
	locks map[int64]*TerrainLock
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[int64]*TerrainLock)}
}

// Get returns the lock for a terrain, creating it on first use. Concurrent
// first access for the same terrain yields the same lock instance.
func (r *Registry) Get(terrainID int64) *TerrainLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[terrainID]
	if !ok {
		lock = &TerrainLock{}
		r.locks[terrainID] = lock
	}
	return lock
}

// Len returns the number of distinct terrains ever locked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
