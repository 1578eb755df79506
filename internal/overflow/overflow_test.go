package overflow

import (
	"fmt"
	"testing"

	"github.com/dacapoday/pagestore/internal/page"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal in-memory overflow.Backend for exercising
// the chain walker without a Store.
type fakeBackend struct {
	pageSize int
	blocks   map[page.Address]*page.Block
	nextAddr int
}

func newFakeBackend(pageSize int) *fakeBackend {
	return &fakeBackend{pageSize: pageSize, blocks: make(map[page.Address]*page.Block), nextAddr: 1}
}

func (f *fakeBackend) LoadData(addr page.Address) (*page.Block, error) {
	b, ok := f.blocks[addr]
	if !ok || b.Kind() != page.KindData {
		return nil, fmt.Errorf("not a data page: %d", addr)
	}
	return b, nil
}

func (f *fakeBackend) NewData(prev page.Address) (*page.Block, error) {
	addr := page.Address(f.nextAddr)
	f.nextAddr++
	b := page.NewData(addr, prev, make([]byte, f.pageSize))
	f.blocks[addr] = b
	return b, nil
}

func (f *fakeBackend) FreeChainFrom(addr page.Address) error {
	for addr != page.Null {
		node, err := f.LoadData(addr)
		if err != nil {
			return err
		}
		next := node.DataNextOverflow()
		delete(f.blocks, addr)
		addr = next
	}
	return nil
}

var _ Backend = (*fakeBackend)(nil)

func newRootHead(pageSize int) *page.Block {
	return page.NewRoot(make([]byte, pageSize), pageSize)
}

func TestWriteReadRoundTripWithinHead(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	content := []byte("hello, world")
	require.NoError(t, Write(backend, head, content, 0, false))

	got, err := Read(backend, head, 0, nil)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])
}

func TestWriteGrowsChainAcrossPages(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	content := make([]byte, 300)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, Write(backend, head, content, 0, false))
	require.NotEqual(t, page.Null, head.HeadNextOverflow())

	got, err := Read(backend, head, 0, nil)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])
}

func TestWriteAtOffsetSpillsAcrossTwoDataPages(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	content := make([]byte, 300)
	for i := range content {
		content[i] = byte(i % 7)
	}
	require.NoError(t, Write(backend, head, content, 260, false))

	first := head.HeadNextOverflow()
	require.NotEqual(t, page.Null, first)
	firstNode, err := backend.LoadData(first)
	require.NoError(t, err)
	second := firstNode.DataNextOverflow()
	require.NotEqual(t, page.Null, second)

	got, err := Read(backend, head, 260, nil)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])
}

func TestReadFixedLengthOutOfRange(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)
	require.NoError(t, Write(backend, head, []byte("short"), 0, false))

	length := 10000
	_, err := Read(backend, head, 0, &length)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestOffsetRoundTrip(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	x := []byte{1, 2, 3, 4, 5}
	require.NoError(t, Write(backend, head, x, 50, false))

	length := len(x)
	got, err := Read(backend, head, 50, &length)
	require.NoError(t, err)
	require.Equal(t, x, got)
}

func TestWriteAndCleanupTruncatesChain(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	long := make([]byte, 600)
	require.NoError(t, Write(backend, head, long, 0, false))
	total, err := Length(backend, head)
	require.NoError(t, err)
	require.True(t, total >= 600)

	short := make([]byte, 10)
	require.NoError(t, Write(backend, head, short, 0, true))
	require.Equal(t, page.Null, head.HeadNextOverflow())
	require.Equal(t, 0, len(backend.blocks))
}

func TestCleanupAfterFreesTail(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)

	long := make([]byte, 600)
	require.NoError(t, Write(backend, head, long, 0, false))
	require.True(t, len(backend.blocks) >= 2)

	require.NoError(t, CleanupAfter(backend, head, 10))
	total, err := Length(backend, head)
	require.NoError(t, err)
	require.Equal(t, len(head.HeadContent()), total)
}

func TestCleanupAfterBeyondChainIsNoop(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)
	require.NoError(t, Write(backend, head, []byte("x"), 0, false))
	require.NoError(t, CleanupAfter(backend, head, 10_000))
}

func TestLengthSumsHeadAndChain(t *testing.T) {
	backend := newFakeBackend(256)
	head := newRootHead(256)
	headCap := len(head.HeadContent())

	length, err := Length(backend, head)
	require.NoError(t, err)
	require.Equal(t, headCap, length)

	require.NoError(t, Write(backend, head, make([]byte, headCap+1), 0, false))
	length, err = Length(backend, head)
	require.NoError(t, err)
	require.True(t, length > headCap)
}
