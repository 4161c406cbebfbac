// Package lru is a minimal bounded LRU map used for the coordinator
// caches. It is not safe for concurrent use; the coordinator's dispatcher
// is its only writer.
package lru

import "container/list"

// Cache maps string keys to values of type V, evicting the least
// recently used entry once cap is exceeded.
type Cache[V any] struct {
	cap   int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

type pair[V any] struct {
	key string
	val V
}

// New creates a Cache holding at most cap entries. cap must be positive.
func New[V any](cap int) *Cache[V] {
	if cap <= 0 {
		cap = 1
	}
	return &Cache[V]{
		cap:   cap,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(pair[V]).val, true
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value for key, evicting the oldest entry
// when the bound is exceeded.
func (c *Cache[V]) Put(key string, val V) {
	if el, ok := c.items[key]; ok {
		el.Value = pair[V]{key: key, val: val}
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(pair[V]{key: key, val: val})
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(pair[V]).key)
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.order.Len()
}
