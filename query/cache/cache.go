// Package cache provides the bounded LRU caches holding compiled query
// plans and SQL statements.
package cache

import (
	"sync"

	"github.com/satishbabariya/objql/internal/debug"
)

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

// LRU is a mutex protected least recently used cache keyed by plan hash.
// A cache with capacity 0 stores nothing and every lookup misses.
type LRU[V any] struct {
	name    string
	mu      sync.Mutex
	data    map[uint64]*node[V]
	maxSize int
	head    *node[V]
	tail    *node[V]
	stats   Stats

	// OnEvict, when set, is called with the key and value of every entry
	// dropped to make room. It runs with the cache locked.
	OnEvict func(key uint64, value V)
}

// node is an element of the doubly-linked recency list
type node[V any] struct {
	key   uint64
	value V
	prev  *node[V]
	next  *node[V]
}

// New creates a cache holding at most maxSize entries. name identifies
// the cache in logs and metrics.
func New[V any](name string, maxSize int) *LRU[V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &LRU[V]{
		name:    name,
		data:    make(map[uint64]*node[V]),
		maxSize: maxSize,
		stats:   Stats{MaxSize: maxSize},
	}
}

// Name returns the name the cache was created with.
func (c *LRU[V]) Name() string { return c.name }

// Get retrieves a value and marks it most recently used.
func (c *LRU[V]) Get(key uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.moveToFront(n)
	c.stats.Hits++
	return n.value, true
}

// Set stores a value, replacing the previous value of key. When the cache
// is full the least recently used entry is evicted.
func (c *LRU[V]) Set(key uint64, value V) {
	if c.maxSize == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.data[key]; ok {
		n.value = value
		c.moveToFront(n)
		return
	}
	if len(c.data) >= c.maxSize {
		c.evictLRU()
	}
	n := &node[V]{key: key, value: value}
	c.addToFront(n)
	c.data[key] = n
}

// Invalidate removes a specific key from the cache
func (c *LRU[V]) Invalidate(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.data[key]; ok {
		c.removeNode(n)
	}
}

// Clear removes all entries and resets the statistics.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[uint64]*node[V])
	c.head = nil
	c.tail = nil
	c.stats = Stats{MaxSize: c.maxSize}
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns cache statistics
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.data)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

func (c *LRU[V]) addToFront(n *node[V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRU[V]) moveToFront(n *node[V]) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.addToFront(n)
}

func (c *LRU[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *LRU[V]) removeNode(n *node[V]) {
	c.unlink(n)
	delete(c.data, n.key)
}

// evictLRU evicts the least recently used node
func (c *LRU[V]) evictLRU() {
	n := c.tail
	if n == nil {
		return
	}
	c.removeNode(n)
	c.stats.Evictions++
	debug.Debug("cache eviction", "cache", c.name, "key", n.key, "size", len(c.data))
	if c.OnEvict != nil {
		c.OnEvict(n.key, n.value)
	}
}
