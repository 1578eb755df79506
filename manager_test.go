package pagestore_test

import (
	"testing"

	"github.com/dacapoday/pagestore"
	"github.com/dacapoday/pagestore/mem"
	"github.com/stretchr/testify/require"
)

func TestManagerSharesUnderlyingReference(t *testing.T) {
	var f mem.File
	s, err := pagestore.Open(&f, pagestore.WithPageSize(256))
	require.NoError(t, err)

	created, err := s.CreatePage(5)
	require.NoError(t, err)
	addr := created.Addr()

	m1 := pagestore.NewManager(s, "reader")
	m2 := pagestore.NewManager(s, "writer")

	p1, err := m1.Page(addr, 5)
	require.NoError(t, err)
	p2, err := m2.Page(addr, 5)
	require.NoError(t, err)

	// released by the store's own implicit manager first...
	created.Release()
	// ...and by m1, the page must still be usable via m2.
	m1.Release(addr)
	typ, err := p2.Type()
	require.NoError(t, err)
	require.Equal(t, 5, typ)

	// once m2 also releases, the page becomes unusable.
	m2.Release(addr)
	_, err = p1.Type()
	require.ErrorIs(t, err, pagestore.ErrUseAfterRelease)
}

func TestManagerObserveIsIdempotent(t *testing.T) {
	var f mem.File
	s, err := pagestore.Open(&f, pagestore.WithPageSize(256))
	require.NoError(t, err)

	created, err := s.CreatePage(1)
	require.NoError(t, err)
	addr := created.Addr()
	created.Release()

	m := pagestore.NewManager(s, "m")
	p1, err := m.Page(addr, 1)
	require.NoError(t, err)
	p2, err := m.Page(addr, 1)
	require.NoError(t, err)
	require.Same(t, p1, p2)

	// a single Release call drops the manager's one reference, even
	// though Page was called twice.
	m.Release(addr)
	_, err = p1.Type()
	require.ErrorIs(t, err, pagestore.ErrUseAfterRelease)
}

func TestManagerReleaseAll(t *testing.T) {
	var f mem.File
	s, err := pagestore.Open(&f, pagestore.WithPageSize(256))
	require.NoError(t, err)

	p1, err := s.CreatePage(1)
	require.NoError(t, err)
	p2, err := s.CreatePage(2)
	require.NoError(t, err)
	p1.Release()
	p2.Release()

	m := pagestore.NewManager(s, "m")
	_, err = m.Page(p1.Addr(), 1)
	require.NoError(t, err)
	_, err = m.Page(p2.Addr(), 2)
	require.NoError(t, err)

	m.ReleaseAll()

	_, err = m.Page(p1.Addr(), 1)
	require.NoError(t, err) // re-observing after release acquires a fresh reference
}
