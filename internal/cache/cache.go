// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the store's block cache: an ordered mapping
// from page address to decoded page.Block, with LRU eviction gated by
// dirtiness. It is not safe for concurrent use; the store that owns it
// is itself single-threaded (see the store's concurrency model).
package cache

import "github.com/dacapoday/pagestore/internal/page"

type node struct {
	addr       page.Address
	block      *page.Block
	prev, next *node
}

// Cache is a doubly linked list combined with a hash map, giving O(1)
// get/set/move-to-front. head is the most-recently-used sentinel side;
// tail is the least-recently-used side, which eviction walks from.
type Cache struct {
	items      map[page.Address]*node
	head, tail node
}

// New constructs an empty cache.
func New() *Cache {
	c := &Cache{items: make(map[page.Address]*node)}
	c.head.next = &c.tail
	c.tail.prev = &c.head
	return c
}

// Len reports the number of blocks currently cached.
func (c *Cache) Len() int { return len(c.items) }

func (c *Cache) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *Cache) pushFront(n *node) {
	n.prev = &c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache) moveToFront(n *node) {
	c.unlink(n)
	c.pushFront(n)
}

// Get returns the cached block for addr, moving it to most-recently-used.
func (c *Cache) Get(addr page.Address) (*page.Block, bool) {
	n, ok := c.items[addr]
	if !ok {
		return nil, false
	}
	c.moveToFront(n)
	return n.block, true
}

// Set inserts or replaces the block cached at its own address, moving
// it to most-recently-used.
func (c *Cache) Set(block *page.Block) {
	addr := block.Addr()
	if n, ok := c.items[addr]; ok {
		n.block = block
		c.moveToFront(n)
		return
	}
	n := &node{addr: addr, block: block}
	c.items[addr] = n
	c.pushFront(n)
}

// LeastRecentlyUsed walks cached blocks oldest (least-recently-used)
// first, calling yield for each. Stops early if yield returns false.
func (c *Cache) LeastRecentlyUsed(yield func(*page.Block) bool) {
	for n := c.tail.prev; n != &c.head; n = n.prev {
		if !yield(n.block) {
			return
		}
	}
}

// Trim walks oldest to newest, dropping clean blocks until the cache
// size is at most limit or no clean candidate remains. Dirty blocks
// are never evicted, so the cache may remain above limit when every
// entry is dirty; that is intentional, matching the store's checkCache
// contract (correctness beats the soft bound).
func (c *Cache) Trim(limit int) {
	n := c.tail.prev
	for len(c.items) > limit && n != &c.head {
		prev := n.prev
		if !n.block.Dirty() {
			c.unlink(n)
			delete(c.items, n.addr)
		}
		n = prev
	}
}
