// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"fmt"

	"github.com/dacapoday/pagestore/internal/overflow"
	"github.com/dacapoday/pagestore/internal/page"
)

// Page is a handle on a logical page: the user-visible concatenation
// of a head page's content with its overflow chain. Root and entry
// pages are possible heads; data and free-list pages never surface as
// a Page.
//
// A Page may be held by several PageManagers at once (see manager.go);
// it is released, and further calls fail with ErrUseAfterRelease,
// once every manager that ever observed it has released its own
// reference.
type Page struct {
	store    *Store
	addr     Address
	released bool
	refs     int
}

func (p *Page) checkAlive() error {
	if p.released {
		return ErrUseAfterRelease
	}
	return p.store.checkOpen()
}

func (p *Page) head() (*page.Block, error) {
	if err := p.checkAlive(); err != nil {
		return nil, err
	}
	b, err := p.store.load(p.addr)
	if err != nil {
		return nil, err
	}
	if b.Kind() == page.KindEmpty {
		return nil, fmt.Errorf("%w: page %d", ErrEmptyPageOp, p.addr)
	}
	return b, nil
}

// Addr returns the page's own address.
func (p *Page) Addr() Address { return p.addr }

// IsRoot reports whether this handle is the permanent root page.
func (p *Page) IsRoot() bool { return p.addr == RootAddress }

// Type returns -1 for the root page, or the application subtype
// (0..251) for an entry page.
func (p *Page) Type() (int, error) {
	b, err := p.head()
	if err != nil {
		return 0, err
	}
	if b.Kind() == page.KindRoot {
		return -1, nil
	}
	subtype, _ := b.Kind().Subtype()
	return subtype, nil
}

// ByteLength returns the logical length of the page: its head's
// content capacity plus the capacities of every data page in its
// overflow chain.
func (p *Page) ByteLength() (int, error) {
	b, err := p.head()
	if err != nil {
		return 0, err
	}
	return overflow.Length(p.store, b)
}

// Read copies bytes from the logical page. With no arguments it reads
// the whole page. With one argument it reads from that start offset
// to the end. With two arguments it reads exactly length bytes
// starting at start, failing with ErrOutOfRange if the chain ends
// first.
func (p *Page) Read(args ...int) ([]byte, error) {
	start, length, err := parseReadArgs(args)
	if err != nil {
		return nil, err
	}

	b, herr := p.head()
	if herr != nil {
		return nil, herr
	}
	out, err := overflow.Read(p.store, b, start, length)
	if err != nil {
		return nil, translateOverflowErr(err)
	}
	return out, nil
}

func parseReadArgs(args []int) (start int, length *int, err error) {
	switch len(args) {
	case 0:
		return 0, nil, nil
	case 1:
		return args[0], nil, nil
	case 2:
		l := args[1]
		return args[0], &l, nil
	default:
		return 0, nil, fmt.Errorf("pagestore: Read takes at most (start, length)")
	}
}

func translateOverflowErr(err error) error {
	if err == overflow.ErrOutOfRange {
		return ErrOutOfRange
	}
	return err
}

// Write copies content into the logical page starting at offset
// (default 0), lazily growing the overflow chain as needed. Bytes
// beyond the written region, if any, are left untouched.
func (p *Page) Write(content []byte, offset ...int) error {
	return p.write(content, offset, false)
}

// WriteAndCleanup behaves like Write, then frees every data page
// beyond the one the write ends in, so the logical page ends at the
// end of that page.
func (p *Page) WriteAndCleanup(content []byte, offset ...int) error {
	return p.write(content, offset, true)
}

func (p *Page) write(content []byte, offset []int, cleanup bool) error {
	start, err := parseOffset(offset)
	if err != nil {
		return err
	}
	b, herr := p.head()
	if herr != nil {
		return herr
	}
	return overflow.Write(p.store, b, content, start, cleanup)
}

func parseOffset(offset []int) (int, error) {
	switch len(offset) {
	case 0:
		return 0, nil
	case 1:
		return offset[0], nil
	default:
		return 0, fmt.Errorf("pagestore: at most one offset argument")
	}
}

// CleanupAfter frees every data page beyond the one offset falls
// within, so the logical page ends at the end of that page.
func (p *Page) CleanupAfter(offset int) error {
	b, err := p.head()
	if err != nil {
		return err
	}
	return overflow.CleanupAfter(p.store, b, offset)
}

// Delete destroys the page, recursively freeing its overflow chain. It
// is illegal to call Delete on the root page; the store's
// Store.DeletePage is a no-op for the root instead of calling this.
func (p *Page) Delete() error {
	b, err := p.head()
	if err != nil {
		return err
	}
	if b.Kind() == page.KindRoot {
		return fmt.Errorf("pagestore: cannot delete the root page")
	}

	if err := overflow.CleanupAfter(p.store, b, 0); err != nil {
		return err
	}
	p.store.MarkEmpty(page.Address(p.addr))
	if err := p.store.free.GiveBack(page.Address(p.addr)); err != nil {
		return err
	}

	p.released = true
	p.store.forget(p.addr)
	return nil
}

// Release drops one reference to the page. Once every manager that
// ever observed it (including the store's own implicit manager) has
// released its reference, the handle becomes released and further
// operations fail with ErrUseAfterRelease.
func (p *Page) Release() {
	if p.released {
		return
	}
	p.refs--
	if p.refs <= 0 {
		p.released = true
		p.store.forget(p.addr)
	}
}
