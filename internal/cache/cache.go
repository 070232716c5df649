package cache

import (
	"sync"
	"time"
)

// TTL is a mutex-guarded in-process cache with per-entry expiry. Reads
// of expired entries miss and evict lazily; Flush drops everything.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
	}
}

// Get returns the cached value if present and fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value for the cache's TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expires: time.Now().Add(c.ttl)}
}

// GetOrFill returns the cached value, calling fill on a miss and caching
// the result. Fill errors are returned without caching.
func (c *TTL[V]) GetOrFill(key string, fill func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete evicts one key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Flush drops every entry.
func (c *TTL[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len counts live entries, evicting expired ones.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}
