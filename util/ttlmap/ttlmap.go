// Package ttlmap provides a small in-process TTL cache used by the config
// resolvers. Entries expire lazily on read, with an optional background sweep
// to reclaim memory for keys that are never read again.
package ttlmap

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val       V
	expiresAt time.Time
}

// Map is a mutex-guarded map of string keys to values with a fixed TTL.
// Expired entries are invisible to Get whether or not the sweep has run.
type Map[V any] struct {
	// TimeNow is the clock used for expiry checks. Swappable in tests.
	TimeNow func() time.Time

	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry[V]

	sweepMu   sync.Mutex
	sweepStop chan struct{}
}

func New[V any](ttl time.Duration) *Map[V] {
	return &Map[V]{
		TimeNow: time.Now,
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the live value for key. An expired entry counts as a miss even
// if the sweep has not deleted it yet.
func (m *Map[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.TimeNow().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set stores val under key, replacing any previous entry wholesale.
func (m *Map[V]) Set(key string, val V) {
	m.mu.Lock()
	m.entries[key] = entry[V]{val: val, expiresAt: m.TimeNow().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Map[V]) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// DeleteFunc removes every entry matching pred, returning the number of
// entries removed.
func (m *Map[V]) DeleteFunc(pred func(key string, val V) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if pred(k, e.val) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Map[V]) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]entry[V])
	m.mu.Unlock()
}

func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep deletes every expired entry and returns how many were removed.
func (m *Map[V]) Sweep() int {
	now := m.TimeNow()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// StartSweep launches a background goroutine calling Sweep on the given
// interval. Calling it again while a sweep is running is a no-op.
func (m *Map[V]) StartSweep(interval time.Duration) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	if m.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	m.sweepStop = stop
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// StopSweep stops the background sweep goroutine. Idempotent.
func (m *Map[V]) StopSweep() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	if m.sweepStop != nil {
		close(m.sweepStop)
		m.sweepStop = nil
	}
}
