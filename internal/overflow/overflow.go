// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package overflow maps a single logical byte range onto a linked
// chain of data pages. A logical read or write is parameterised by a
// head page (root or entry) and walks forward through node.nextOverflow
// links, growing the chain lazily on write and freeing it on shrink or
// delete.
//
// The walkers are written against a narrow Backend capability rather
// than the whole store, mirroring the store's own design notes: the
// callee only ever sees getEmptyAddr/deleteDataChain-shaped operations.
package overflow

import (
	"errors"

	"github.com/dacapoday/pagestore/internal/page"
)

// ErrOutOfRange is returned when a read's start offset or finite length
// walks off the end of the chain before being satisfied. Write never
// returns it: a write grows the chain instead.
var ErrOutOfRange = errors.New("out of range")

// Backend is the slice of store capability the overflow walkers need.
type Backend interface {
	// LoadData loads the data page at addr. addr must already be a
	// data page in the chain; it is a programming error otherwise.
	LoadData(addr page.Address) (*page.Block, error)
	// NewData allocates and caches a fresh data page linked from prev.
	NewData(prev page.Address) (*page.Block, error)
	// FreeChainFrom walks the chain starting at addr, marking every
	// node Empty in the cache and returning its address to the
	// free-list, until it reaches the terminal Null address.
	FreeChainFrom(addr page.Address) error
}

// Length returns the logical byte length of the page owned by head:
// its own content capacity plus the capacities of every data page
// reachable via the overflow chain.
func Length(backend Backend, head *page.Block) (int, error) {
	total := len(head.HeadContent())
	addr := head.HeadNextOverflow()
	for addr != page.Null {
		node, err := backend.LoadData(addr)
		if err != nil {
			return 0, err
		}
		total += len(node.DataContent())
		addr = node.DataNextOverflow()
	}
	return total, nil
}

// Read copies up to length bytes starting at start from the logical
// page owned by head into a freshly allocated slice. A nil length
// means "read to the end of the chain". Returns ErrOutOfRange if start
// or a finite length walks past the end of the chain.
func Read(backend Backend, head *page.Block, start int, length *int) ([]byte, error) {
	content := head.HeadContent()
	nextAddr := head.HeadNextOverflow()

	for start >= len(content) {
		start -= len(content)
		if nextAddr == page.Null {
			return nil, ErrOutOfRange
		}
		node, err := backend.LoadData(nextAddr)
		if err != nil {
			return nil, err
		}
		content = node.DataContent()
		nextAddr = node.DataNextOverflow()
	}

	var out []byte
	for {
		avail := len(content) - start
		want := avail
		if length != nil && *length < want {
			want = *length
		}
		out = append(out, content[start:start+want]...)
		start = 0
		if length != nil {
			*length -= want
			if *length == 0 {
				return out, nil
			}
		}
		if nextAddr == page.Null {
			if length != nil && *length > 0 {
				return nil, ErrOutOfRange
			}
			return out, nil
		}
		node, err := backend.LoadData(nextAddr)
		if err != nil {
			return nil, err
		}
		content = node.DataContent()
		nextAddr = node.DataNextOverflow()
	}
}

// Write copies content into the logical page owned by head starting at
// start, allocating new data pages as needed when the chain is too
// short. If cleanupAfter is true, every node beyond the one the write
// ends in is freed and the chain is truncated there.
func Write(backend Backend, head *page.Block, content []byte, start int, cleanupAfter bool) error {
	node, nodeContent, advance, setNext := headView(head)

	for start >= len(nodeContent) {
		start -= len(nodeContent)
		nextAddr := advance()
		if nextAddr == page.Null {
			next, err := backend.NewData(node.Addr())
			if err != nil {
				return err
			}
			setNext(next.Addr())
			node, nodeContent, advance, setNext = dataView(next)
			continue
		}
		next, err := backend.LoadData(nextAddr)
		if err != nil {
			return err
		}
		node, nodeContent, advance, setNext = dataView(next)
	}

	for len(content) > 0 {
		n := copy(nodeContent[start:], content)
		// Copying through the content slice does not set the dirty flag;
		// re-stamping the current link marks the block dirty, so Save
		// flushes it and cache trimming cannot evict it.
		setNext(advance())
		content = content[n:]
		start = 0

		if len(content) == 0 {
			if cleanupAfter {
				if err := backend.FreeChainFrom(advance()); err != nil {
					return err
				}
				setNext(page.Null)
			}
			return nil
		}

		nextAddr := advance()
		if nextAddr == page.Null {
			next, err := backend.NewData(node.Addr())
			if err != nil {
				return err
			}
			setNext(next.Addr())
			node, nodeContent, advance, setNext = dataView(next)
			continue
		}
		next, err := backend.LoadData(nextAddr)
		if err != nil {
			return err
		}
		node, nodeContent, advance, setNext = dataView(next)
	}
	return nil
}

// CleanupAfter truncates the overflow chain of the page owned by head
// after offset: every data page beyond the one offset falls within is
// freed, and that node's nextOverflow is cleared. The logical length
// afterwards ends at the end of that page, not at offset.
func CleanupAfter(backend Backend, head *page.Block, offset int) error {
	node, nodeContent, advance, setNext := headView(head)

	for offset >= len(nodeContent) {
		offset -= len(nodeContent)
		nextAddr := advance()
		if nextAddr == page.Null {
			return nil
		}
		next, err := backend.LoadData(nextAddr)
		if err != nil {
			return err
		}
		node, nodeContent, advance, setNext = dataView(next)
	}
	_ = node
	if err := backend.FreeChainFrom(advance()); err != nil {
		return err
	}
	setNext(page.Null)
	return nil
}

// headView returns accessors for a head block (Root or Entry).
func headView(head *page.Block) (node *page.Block, content []byte, advance func() page.Address, setNext func(page.Address)) {
	node = head
	content = head.HeadContent()
	advance = head.HeadNextOverflow
	setNext = head.SetHeadNextOverflow
	return
}

// dataView returns accessors for a chain body node, always Data kind.
func dataView(data *page.Block) (node *page.Block, content []byte, advance func() page.Address, setNext func(page.Address)) {
	node = data
	content = data.DataContent()
	advance = data.DataNextOverflow
	setNext = data.SetDataNextOverflow
	return
}
