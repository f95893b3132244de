// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package cache

import (
	"sync"
	"time"
)

// EvictReason says why an entry left the cache.
type EvictReason uint8

const (
	// EvictCapacity means the entry was the least recently used when the cache was full.
	EvictCapacity EvictReason = iota + 1
	// EvictExpired means the entry outlived its TTL.
	EvictExpired
	// EvictRemoved means the entry was removed explicitly.
	EvictRemoved
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one cached key/value pair.
type Entry[K comparable, V any] struct {
	Key       K
	Value     V
	ExpiresAt time.Time
}

type node[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	prev      *node[K, V]
	next      *node[K, V]
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithEvictCallback registers fn to run after an entry is evicted. fn runs
// outside the cache lock and may call back into the cache.
func WithEvictCallback[K comparable, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithClock overrides time.Now for TTL bookkeeping.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.now = now
	}
}

// LRU is a thread-safe least recently used cache with a per-entry TTL.
// Get, Add and Remove are O(1); expired entries are dropped lazily on
// access and in bulk by CleanupExpired.
type LRU[K comparable, V any] struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	items    map[K]*node[K, V]

	// head.next is the most recently used, tail.prev the least.
	head *node[K, V]
	tail *node[K, V]

	onEvict func(K, V, EvictReason)
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache holding at most capacity entries, each living at most ttl.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*node[K, V]),
		head:     &node[K, V]{},
		tail:     &node[K, V]{},
		now:      time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type evicted[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

func (c *LRU[K, V]) notify(ev []evicted[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range ev {
		c.onEvict(e.key, e.value, e.reason)
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	n, ok := c.items[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return zero, false
	}
	if c.now().After(n.expiresAt) {
		c.unlink(n)
		c.misses++
		c.evictions++
		c.mu.Unlock()
		c.notify([]evicted[K, V]{{n.key, n.value, EvictExpired}})
		return zero, false
	}
	c.moveToFront(n)
	c.hits++
	v := n.value
	c.mu.Unlock()
	return v, true
}

// Peek returns the value for key without touching recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.items[key]; ok && !c.now().After(n.expiresAt) {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Add inserts or replaces key, refreshing its TTL, and evicts the least
// recently used entries while over capacity.
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	expiresAt := c.now().Add(c.ttl)
	if n, ok := c.items[key]; ok {
		n.value = value
		n.expiresAt = expiresAt
		c.moveToFront(n)
		c.mu.Unlock()
		return
	}

	n := &node[K, V]{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(n)
	c.items[key] = n

	var ev []evicted[K, V]
	for len(c.items) > c.capacity {
		oldest := c.tail.prev
		c.unlink(oldest)
		c.evictions++
		ev = append(ev, evicted[K, V]{oldest.key, oldest.value, EvictCapacity})
	}
	c.mu.Unlock()
	c.notify(ev)
}

// Remove deletes key. It reports whether the key was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	n, ok := c.items[key]
	if ok {
		c.unlink(n)
	}
	c.mu.Unlock()
	if ok {
		c.notify([]evicted[K, V]{{n.key, n.value, EvictRemoved}})
	}
	return ok
}

// Len returns the number of entries, including expired ones not yet collected.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Entries returns a snapshot of the live entries, least recently used first.
func (c *LRU[K, V]) Entries() []Entry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Entry[K, V], 0, len(c.items))
	for n := c.tail.prev; n != c.head; n = n.prev {
		if now.After(n.expiresAt) {
			continue
		}
		out = append(out, Entry[K, V]{Key: n.key, Value: n.value, ExpiresAt: n.expiresAt})
	}
	return out
}

// CleanupExpired drops every expired entry and returns how many were removed.
func (c *LRU[K, V]) CleanupExpired() int {
	c.mu.Lock()
	now := c.now()
	var ev []evicted[K, V]
	for n := c.tail.prev; n != c.head; {
		prev := n.prev
		if now.After(n.expiresAt) {
			c.unlink(n)
			c.evictions++
			ev = append(ev, evicted[K, V]{n.key, n.value, EvictExpired})
		}
		n = prev
	}
	c.mu.Unlock()
	c.notify(ev)
	return len(ev)
}

// Stats returns hit, miss and eviction counters plus the current size.
func (c *LRU[K, V]) Stats() (hits, misses, evictions int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions, len(c.items)
}

// list helpers; callers hold c.mu.

func (c *LRU[K, V]) pushFront(n *node[K, V]) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU[K, V]) moveToFront(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	c.pushFront(n)
}

func (c *LRU[K, V]) unlink(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(c.items, n.key)
}
