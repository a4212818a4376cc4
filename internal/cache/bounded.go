package cache

import (
	"sync"
	"time"
)

// Bounded is a small LRU cache with per-entry TTL, used for hot public
// query results (proximity lookups). When full, the least recently
// accessed entry is evicted.
type Bounded struct {
	mu         sync.Mutex
	entries    map[string]*boundedEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type boundedEntry struct {
	value    any
	expires  time.Time
	accessed time.Time
}

// NewBounded builds a bounded cache.
func NewBounded(maxEntries int, ttl time.Duration) *Bounded {
	return &Bounded{
		entries:    make(map[string]*boundedEntry, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock overrides the cache clock, for tests.
func (b *Bounded) WithClock(now func() time.Time) *Bounded {
	b.now = now
	return b
}

// Get returns the cached value when present and unexpired.
func (b *Bounded) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	now := b.now()
	if now.After(e.expires) {
		delete(b.entries, key)
		return nil, false
	}
	e.accessed = now
	return e.value, true
}

// Set stores value under key, evicting the LRU entry when full.
func (b *Bounded) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if _, exists := b.entries[key]; !exists && len(b.entries) >= b.maxEntries {
		b.evictLRU()
	}
	b.entries[key] = &boundedEntry{value: value, expires: now.Add(b.ttl), accessed: now}
}

// Len reports the current entry count.
func (b *Bounded) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Bounded) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, e := range b.entries {
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey, oldest = k, e.accessed
		}
	}
	if oldestKey != "" {
		delete(b.entries, oldestKey)
	}
}
