// Package cache provides the in-memory read-through caches that sit in
// front of the persistence layer. Each cache is an explicitly constructed
// component owned by the storage facade, never package-global state, so
// tests get a fresh cache per instance.
package cache

import "sync"

// Cache is a type-safe concurrent map keyed by entity ID.
//
// It uses a RWMutex rather than sync.Map because the workload is
// read-heavy with bursty writes (one bulk parse per hour), where the
// plain map with a read lock is faster. Entries are last-writer-wins;
// there is no merging and no TTL - coherence is the facade's job.
type Cache[T any] struct {
	m  map[string]T
	mu sync.RWMutex
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{
		m: make(map[string]T),
	}
}

// Get returns the cached value for an ID.
// The ok result indicates whether the value was present.
func (c *Cache[T]) Get(id string) (value T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok = c.m[id]
	return
}

// Put stores the value for an ID, replacing any existing entry.
func (c *Cache[T]) Put(id string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = value
}

// PutAll stores a batch of values in one critical section.
func (c *Cache[T]) PutAll(values map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, v := range values {
		c.m[id] = v
	}
}

// GetAll returns a snapshot of every cached value.
func (c *Cache[T]) GetAll() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make([]T, 0, len(c.m))
	for _, v := range c.m {
		values = append(values, v)
	}
	return values
}

// Evict removes the entry for an ID. No-op when absent.
func (c *Cache[T]) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

// EvictAll empties the cache.
func (c *Cache[T]) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
