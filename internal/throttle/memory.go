// ABOUTME: In-memory counter store for tests and single-node deployments
// ABOUTME: Mutex-guarded map with the same lazy-expiry semantics as SQLite

package throttle

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	points        int
	windowStarted time.Time
	blockedUntil  time.Time
}

// MemoryCounterStore is a process-local CounterStore. Increment-and-check is
// atomic under a single mutex.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

var _ CounterStore = (*MemoryCounterStore)(nil)

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// ConsumePoint increments the counter for (scope, key), entering a blocked
// state once the increment would exceed capacity. Expiry is lazy: stale
// windows and elapsed blocks are cleared on the next access.
func (m *MemoryCounterStore) ConsumePoint(_ context.Context, scope, key string, limits Limits) (Consumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := scope + "\x00" + key

	c, ok := m.counters[k]
	if ok {
		if !c.blockedUntil.IsZero() {
			if now.Before(c.blockedUntil) {
				return Consumption{OK: false, RetryAfter: c.blockedUntil.Sub(now)}, nil
			}
			// Block elapsed, counter starts fresh
			delete(m.counters, k)
			c = nil
		} else if now.Sub(c.windowStarted) >= limits.Window {
			delete(m.counters, k)
			c = nil
		}
	}

	if c == nil || !ok {
		m.counters[k] = &memoryCounter{points: 1, windowStarted: now}
		if limits.Points < 1 {
			m.counters[k].blockedUntil = now.Add(limits.BlockDuration)
			return Consumption{OK: false, RetryAfter: limits.BlockDuration}, nil
		}
		return Consumption{OK: true}, nil
	}

	c.points++
	if c.points > limits.Points {
		c.blockedUntil = now.Add(limits.BlockDuration)
		return Consumption{OK: false, RetryAfter: limits.BlockDuration}, nil
	}
	return Consumption{OK: true}, nil
}

// ResetCounter clears the counter and any block state for (scope, key).
func (m *MemoryCounterStore) ResetCounter(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, scope+"\x00"+key)
	return nil
}

// SetClock overrides the time source, for tests.
func (m *MemoryCounterStore) SetClock(now func() time.Time) {
	m.now = now
}
