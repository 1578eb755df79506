package cache

import (
	"testing"

	"github.com/dacapoday/pagestore/internal/page"
	"github.com/stretchr/testify/require"
)

func cleanBlock(addr page.Address) *page.Block {
	b, err := page.Load(addr, make([]byte, 256))
	if err != nil {
		panic(err)
	}
	return b
}

func dirtyBlock(addr page.Address) *page.Block {
	return page.NewData(addr, page.Null, make([]byte, 256))
}

func TestGetSetMoveToFront(t *testing.T) {
	c := New()
	c.Set(cleanBlock(1))
	c.Set(cleanBlock(2))
	c.Set(cleanBlock(3))
	require.Equal(t, 3, c.Len())

	b, ok := c.Get(2)
	require.True(t, ok)
	require.Equal(t, page.Address(2), b.Addr())

	var order []page.Address
	c.LeastRecentlyUsed(func(b *page.Block) bool {
		order = append(order, b.Addr())
		return true
	})
	require.Equal(t, []page.Address{1, 3, 2}, order)
}

func TestGetMiss(t *testing.T) {
	c := New()
	_, ok := c.Get(42)
	require.False(t, ok)
}

func TestSetReplacesExisting(t *testing.T) {
	c := New()
	c.Set(cleanBlock(1))
	c.Set(dirtyBlock(1))
	b, ok := c.Get(1)
	require.True(t, ok)
	require.True(t, b.Dirty())
	require.Equal(t, 1, c.Len())
}

func TestTrimEvictsOnlyClean(t *testing.T) {
	c := New()
	c.Set(dirtyBlock(1))
	c.Set(cleanBlock(2))
	c.Set(dirtyBlock(3))
	c.Set(cleanBlock(4))

	c.Trim(0)

	require.Equal(t, 2, c.Len())
	_, ok1 := c.Get(1)
	_, ok3 := c.Get(3)
	require.True(t, ok1)
	require.True(t, ok3)
	_, ok2 := c.Get(2)
	_, ok4 := c.Get(4)
	require.False(t, ok2)
	require.False(t, ok4)
}

func TestTrimStopsAtLimit(t *testing.T) {
	c := New()
	for i := page.Address(1); i <= 5; i++ {
		c.Set(cleanBlock(i))
	}
	c.Trim(3)
	require.Equal(t, 3, c.Len())
}

func TestTrimNoOpAboveLimit(t *testing.T) {
	c := New()
	c.Set(cleanBlock(1))
	c.Trim(10)
	require.Equal(t, 1, c.Len())
}
