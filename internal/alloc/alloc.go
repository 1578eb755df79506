// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package alloc implements the free-list manager and the allocator
// that sits on top of it. The free-list is a doubly-chained sequence
// of pages reachable from the root's firstFreelistAddr; the allocator
// hands out addresses by popping the free-list, falling back to
// extending the file's in-memory page count.
//
// Both types operate over a narrow capability interface (Backend)
// rather than the whole store, per the store's own design notes: the
// callee only ever sees getRootOrEntry/checkCache-shaped operations,
// never the store itself.
package alloc

import "github.com/dacapoday/pagestore/internal/page"

// Backend is the slice of store capability the free-list and
// allocator need: root-header access, block load/materialize/empty,
// and the ability to grow the in-memory page count.
type Backend interface {
	// RootFirstFreelist returns root.firstFreelistAddr.
	RootFirstFreelist() page.Address
	// SetRootFirstFreelist updates root.firstFreelistAddr.
	SetRootFirstFreelist(page.Address)

	// LoadFreelist returns the free-list block at addr, loading it
	// from the cache or the file. addr must already be a free-list
	// node; it is a programming error otherwise.
	LoadFreelist(addr page.Address) (*page.Block, error)

	// NewFreelistAt materializes a fresh, empty free-list block at
	// addr and caches it.
	NewFreelistAt(addr page.Address) *page.Block

	// MarkEmpty replaces the cached block at addr with a freshly
	// cleared Empty block, to be written back as Empty on save.
	MarkEmpty(addr page.Address)

	// Extend returns a brand-new address by growing the in-memory
	// page count; it never reuses a free-list address.
	Extend() page.Address
}

// Freelist manages the on-disk doubly-chained free-list reachable from
// root.firstFreelistAddr.
type Freelist struct {
	backend Backend
}

// New constructs a Freelist manager over backend.
func New(backend Backend) *Freelist {
	return &Freelist{backend: backend}
}

// tail follows nextAddr from firstFreelistAddr until it finds the node
// whose nextAddr is Null. Returns nil if the chain is empty.
func (f *Freelist) tail() (*page.Block, error) {
	addr := f.backend.RootFirstFreelist()
	if addr == page.Null {
		return nil, nil
	}
	node, err := f.backend.LoadFreelist(addr)
	if err != nil {
		return nil, err
	}
	for node.FreelistNext() != page.Null {
		node, err = f.backend.LoadFreelist(node.FreelistNext())
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// TakeOne pops one address off the free-list for the allocator's use.
// It returns page.Null if the free-list is empty, in which case the
// allocator must extend the file instead.
//
// When the tail node itself becomes empty, it is recycled: this is the
// only place a free-list node is turned back into a free address. The
// surviving neighbor's nextAddr is cleared to 0 (see the spec's open
// question on which pointer survives recycling).
func (f *Freelist) TakeOne() (page.Address, error) {
	tail, err := f.tail()
	if err != nil {
		return page.Null, err
	}
	if tail == nil {
		return page.Null, nil
	}
	if tail.FreelistCount() > 0 {
		return tail.FreelistPop(), nil
	}

	addr := tail.Addr()
	prev := tail.FreelistPrev()
	f.backend.MarkEmpty(addr)
	if prev == page.Null {
		f.backend.SetRootFirstFreelist(page.Null)
	} else {
		prevNode, err := f.backend.LoadFreelist(prev)
		if err != nil {
			return page.Null, err
		}
		prevNode.SetFreelistNext(page.Null)
	}
	return addr, nil
}

// GiveBack releases addr back to the free-list, appending it to the
// tail node or growing the chain with a brand-new free-list page.
func (f *Freelist) GiveBack(addr page.Address) error {
	first := f.backend.RootFirstFreelist()
	if first == page.Null {
		f.backend.NewFreelistAt(addr)
		f.backend.SetRootFirstFreelist(addr)
		return nil
	}

	tail, err := f.tail()
	if err != nil {
		return err
	}
	if tail.FreelistFull() {
		node := f.backend.NewFreelistAt(addr)
		node.SetFreelistPrev(tail.Addr())
		tail.SetFreelistNext(addr)
		return nil
	}

	tail.FreelistPush(addr)
	return nil
}

// Allocator hands out page addresses, preferring free-list reuse over
// growing the file.
type Allocator struct {
	free    *Freelist
	backend Backend
}

// NewAllocator constructs an Allocator over the same backend as free.
func NewAllocator(free *Freelist, backend Backend) *Allocator {
	return &Allocator{free: free, backend: backend}
}

// Allocate returns the address of an unused page: one popped from the
// free-list if non-empty, otherwise a newly extended address.
func (a *Allocator) Allocate() (page.Address, error) {
	addr, err := a.free.TakeOne()
	if err != nil {
		return page.Null, err
	}
	if addr != page.Null {
		return addr, nil
	}
	return a.backend.Extend(), nil
}
