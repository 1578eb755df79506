package alloc

import (
	"fmt"
	"testing"

	"github.com/dacapoday/pagestore/internal/page"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal in-memory Backend for exercising Freelist
// and Allocator without a Store.
type fakeBackend struct {
	pageSize int
	root     page.Address
	blocks   map[page.Address]*page.Block
	nextAddr int
}

func newFakeBackend(pageSize int) *fakeBackend {
	return &fakeBackend{pageSize: pageSize, blocks: make(map[page.Address]*page.Block), nextAddr: 1}
}

func (f *fakeBackend) RootFirstFreelist() page.Address     { return f.root }
func (f *fakeBackend) SetRootFirstFreelist(addr page.Address) { f.root = addr }

func (f *fakeBackend) LoadFreelist(addr page.Address) (*page.Block, error) {
	b, ok := f.blocks[addr]
	if !ok || b.Kind() != page.KindFreelist {
		return nil, fmt.Errorf("not a free-list page: %d", addr)
	}
	return b, nil
}

func (f *fakeBackend) NewFreelistAt(addr page.Address) *page.Block {
	b := page.NewFreelist(addr, make([]byte, f.pageSize))
	f.blocks[addr] = b
	return b
}

func (f *fakeBackend) MarkEmpty(addr page.Address) {
	f.blocks[addr] = page.NewEmpty(addr, make([]byte, f.pageSize))
}

func (f *fakeBackend) Extend() page.Address {
	addr := page.Address(f.nextAddr)
	f.nextAddr++
	return addr
}

var _ Backend = (*fakeBackend)(nil)

func TestAllocateExtendsWhenFreelistEmpty(t *testing.T) {
	backend := newFakeBackend(256)
	free := New(backend)
	a := NewAllocator(free, backend)

	first, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, page.Address(1), first)

	second, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, page.Address(2), second)
}

func TestGiveBackThenTakeOneReuses(t *testing.T) {
	backend := newFakeBackend(256)
	free := New(backend)

	require.NoError(t, free.GiveBack(5))
	addr, err := free.TakeOne()
	require.NoError(t, err)
	require.Equal(t, page.Address(5), addr)

	// list is empty again after the sole node recycles itself
	require.Equal(t, page.Null, backend.root)
}

func TestGiveBackManyFillsAndChains(t *testing.T) {
	backend := newFakeBackend(256)
	free := New(backend)

	cap := page.FreelistCapacity(256)
	total := cap + 3
	for i := 0; i < total; i++ {
		require.NoError(t, free.GiveBack(page.Address(100+i)))
	}

	var popped []page.Address
	for i := 0; i < total; i++ {
		addr, err := free.TakeOne()
		require.NoError(t, err)
		require.NotEqual(t, page.Null, addr)
		popped = append(popped, addr)
	}

	// every address given back comes back out exactly once
	require.Len(t, popped, total)
	seen := make(map[page.Address]bool)
	for _, addr := range popped {
		require.False(t, seen[addr], "duplicate address in free-list: %d", addr)
		seen[addr] = true
	}

	// chain is fully drained
	last, err := free.TakeOne()
	require.NoError(t, err)
	require.Equal(t, page.Null, last)
	require.Equal(t, page.Null, backend.root)
}

func TestTakeOneOnEmptyFreelistReturnsNull(t *testing.T) {
	backend := newFakeBackend(256)
	free := New(backend)
	addr, err := free.TakeOne()
	require.NoError(t, err)
	require.Equal(t, page.Null, addr)
}

func TestAllocatePrefersFreelistOverExtend(t *testing.T) {
	backend := newFakeBackend(256)
	free := New(backend)
	a := NewAllocator(free, backend)

	require.NoError(t, free.GiveBack(77))
	addr, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, page.Address(77), addr)

	// Extend was never called, so the next address still starts at 1
	next, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, page.Address(1), next)
}
