// Package cache implements the LRU checkpoint cache described in §4.1: a
// thread-safe, capacity-bounded map from a predecessor checkpoint to the
// single Transaction that succeeds it.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/txnfeed/txnfeed/store"
)

// Cache maps a predecessor checkpoint to its successor Transaction.
// Capacity is fixed at construction; zero capacity degenerates to
// pass-through (every TryGet misses). Safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, store.Transaction]
}

// New returns a Cache bounded to size entries. size == 0 is permitted
// and yields a cache that never retains anything.
func New(size int) *Cache {
	if size <= 0 {
		// hashicorp/golang-lru rejects size <= 0, so no underlying LRU is
		// built: with a nil lru, TryGet always misses and Set is a no-op,
		// which is exactly pass-through.
		return &Cache{}
	}
	c, err := lru.New[string, store.Transaction](size)
	if err != nil {
		// Only invalid (<=0) sizes error, guarded above.
		panic(err)
	}
	return &Cache{lru: c}
}

// TryGet looks up key, marking it most-recently-used on a hit.
func (c *Cache) TryGet(key string) (store.Transaction, bool) {
	if c.lru == nil {
		return store.Transaction{}, false
	}
	return c.lru.Get(key)
}

// Set inserts or refreshes key -> value, evicting the least-recently-used
// entry if the cache is at capacity. A racing Set on the same key leaves
// the later writer's value in place. Set is a no-op against a
// pass-through (zero-capacity) cache, and against a self-loop (a
// checkpoint equal to the value's own Checkpoint, which would let a
// follower chase its own tail forever).
func (c *Cache) Set(key string, value store.Transaction) {
	if c.lru == nil {
		return
	}
	if value.Checkpoint == key {
		return
	}
	c.lru.Add(key, value)
}
