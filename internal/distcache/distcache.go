// Package distcache holds point-to-point distance caches used by the routing
// service. All implementations satisfy routing.DistanceCache.
package distcache

import (
	"context"
	"sync"
	"time"

	"github.com/evroute/evroute/internal/routing"
)

// DefaultTTL is how long a cached leg is served when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// sweepInterval caps how often Memory scans for expired entries.
const sweepInterval = 5 * time.Minute

// Key returns the cache key for a directed pair. It matches the key the
// routing service collapses concurrent queries on.
func Key(from, to routing.Coordinate) string {
	return routing.PairKey(from, to)
}

type memoryEntry struct {
	leg       routing.Leg
	expiresAt time.Time
}

// Memory is an in-process cache. It is the default when no shared store is
// configured. Expired entries are dropped on read and by a sweep that runs
// on writes at most once per sweep interval.
type Memory struct {
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu        sync.RWMutex
	entries   map[string]memoryEntry
	lastSweep time.Time
}

// NewMemory creates a Memory cache. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:           ttl,
		sweepInterval: min(ttl, sweepInterval),
		now:           time.Now,
		entries:       make(map[string]memoryEntry),
	}
}

// Get implements routing.DistanceCache.
func (m *Memory) Get(_ context.Context, from, to routing.Coordinate) (routing.Leg, bool, error) {
	k := Key(from, to)
	m.mu.RLock()
	e, ok := m.entries[k]
	m.mu.RUnlock()
	if !ok {
		return routing.Leg{}, false, nil
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
		return routing.Leg{}, false, nil
	}
	return e.leg, true, nil
}

// Set implements routing.DistanceCache.
func (m *Memory) Set(_ context.Context, from, to routing.Coordinate, leg routing.Leg) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Key(from, to)] = memoryEntry{leg: leg, expiresAt: now.Add(m.ttl)}
	if now.Sub(m.lastSweep) >= m.sweepInterval {
		m.sweepLocked(now)
	}
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

// sweepLocked expects m.mu held for writing.
func (m *Memory) sweepLocked(now time.Time) int {
	m.lastSweep = now
	dropped := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
