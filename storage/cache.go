// Copyright 2024 The Lattice Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package storage

import (
	"sync"

	"github.com/cockroachdb/pebble"
)

// defaultWriteBufferSize is reserved from a Cache's capacity on every Open
// call to leave headroom for the memtable, matching §5's reservation rule.
const defaultWriteBufferSize = 4 << 20

// Cache is a process-wide, reference-counted wrapper around a
// *pebble.Cache. Multiple stores opened against the same Cache share one
// underlying block cache; capacity mutations are serialized so concurrent
// Open/Close calls never race on the shared budget.
type Cache struct {
	mu       sync.Mutex
	pc       *pebble.Cache
	refs     int
	capacity int64
}

// NewCache allocates a block cache with the given byte capacity. The
// returned Cache has one reference; pass it to Options.Cache, and the
// Store opened with it releases that reference in Store.Close. Call Ref
// once for each additional store that shares it.
func NewCache(capacity int64) *Cache {
	return &Cache{
		pc:       pebble.NewCache(capacity),
		refs:     1,
		capacity: capacity,
	}
}

// Ref increments the reference count and returns c, so multiple Options
// can share one cache across several Open calls.
func (c *Cache) Ref() *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return c
}

// Close releases one reference. The underlying pebble.Cache is released
// once the last reference is dropped.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	if c.refs <= 0 {
		c.pc.Unref()
	}
}

// Capacity returns the cache's current accounted byte budget. The
// underlying pebble.Cache itself is sized once at NewCache time; Capacity
// tracks the budget this wrapper has reserved out of it so callers can
// reason about remaining headroom without a second allocation.
func (c *Cache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// reserveWriteBuffer decreases the cache's accounted capacity once by
// defaultWriteBufferSize, called on every engine Open to reserve memtable
// headroom out of the shared cache budget. Guarded by c.mu per §5's
// "access to capacity mutations is guarded by a mutex" rule.
func (c *Cache) reserveWriteBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity < defaultWriteBufferSize {
		c.capacity = 0
		return
	}
	c.capacity -= defaultWriteBufferSize
}
