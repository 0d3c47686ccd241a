package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cvcreator-backend/internal/shared/metrics"
)

type memoryEntry struct {
	value    []byte
	absolute time.Time
	expires  time.Time
	sliding  time.Duration
}

// Memory is a process-local Cache.
type Memory struct {
	mu    sync.Mutex
	items map[string]*memoryEntry
	now   func() time.Time
	group singleflight.Group
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*memoryEntry), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Memory) GetOrLoad(ctx context.Context, key string, policy Policy, load Loader) ([]byte, error) {
	if value, ok := m.get(key); ok {
		metrics.IncCacheHit()
		return value, nil
	}
	metrics.IncCacheMiss()

	v, err, _ := m.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.set(key, value, policy.normalize())
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]byte)), nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, entry := range m.items {
		if entry.expired(now) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.items[key]
	if !ok {
		return nil, false
	}
	now := m.now()
	if entry.expired(now) {
		delete(m.items, key)
		return nil, false
	}
	entry.expires = now.Add(entry.sliding)
	if entry.expires.After(entry.absolute) {
		entry.expires = entry.absolute
	}
	return clone(entry.value), true
}

func (m *Memory) set(key string, value []byte, policy Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.items[key] = &memoryEntry{
		value:    clone(value),
		absolute: now.Add(policy.Absolute),
		expires:  now.Add(policy.Sliding),
		sliding:  policy.Sliding,
	}
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expires) || !now.Before(e.absolute)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Cache = (*Memory)(nil)
