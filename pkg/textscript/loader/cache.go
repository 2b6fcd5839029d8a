package loader

import (
	"sync"
	"time"
)

// Default cache settings.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
)

// cache holds loaded template text with a TTL, evicting the least
// recently used entry when full.
type cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*cached[T]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// cached wraps a value with metadata
type cached[T any] struct {
	value     T
	createdAt time.Time
	lastUsed  time.Time
}

func newCache[T any](maxSize int, ttl time.Duration) *cache[T] {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &cache[T]{
		entries: make(map[string]*cached[T]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns the value for key unless it is missing or expired.
func (c *cache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if c.ttl > 0 && now.Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	e.lastUsed = now
	return e.value, true
}

// put stores a value, evicting expired entries and then the least recently
// used one if the cache is full.
func (c *cache[T]) put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evictStale()
		if len(c.entries) >= c.maxSize {
			c.evictLRU()
		}
	}
	now := c.now()
	c.entries[key] = &cached[T]{value: value, createdAt: now, lastUsed: now}
}

// evictLRU removes the least recently used entry (caller must hold lock)
func (c *cache[T]) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range c.entries {
		if first || e.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// evictStale removes expired entries (caller must hold lock)
func (c *cache[T]) evictStale() {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// remove drops key, or everything when key is empty.
func (c *cache[T]) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		clear(c.entries)
		return
	}
	delete(c.entries, key)
}

func (c *cache[T]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
