// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package pagestore

// PageManager is a named reference holder over pages: multiple
// managers may hold the same page, and the page becomes eligible for
// internal release only once every manager that ever observed it has
// released its own reference (or the manager released all of them at
// once). The store itself owns one implicit manager through
// RootPage/Page/CreatePage/DeletePage. Manager operations are thin
// dispatch to the owning Store.
type PageManager struct {
	name  string
	store *Store
	held  map[Address]*Page
}

// NewManager creates a named reference holder over store. name is
// informational only; it never affects dispatch.
func NewManager(store *Store, name string) *PageManager {
	return &PageManager{name: name, store: store, held: make(map[Address]*Page)}
}

// Name returns the manager's name.
func (m *PageManager) Name() string { return m.name }

// RootPage returns (and, if this is the first time this manager has
// observed it, registers a reference on) the root page.
func (m *PageManager) RootPage() (*Page, error) {
	return m.observe(RootAddress, func() (*Page, error) { return m.store.RootPage() })
}

// Page dispatches to Store.Page, registering a reference the first
// time this manager observes addr.
func (m *PageManager) Page(addr Address, subtype ...int) (*Page, error) {
	return m.observe(addr, func() (*Page, error) { return m.store.Page(addr, subtype...) })
}

// CreatePage dispatches to Store.CreatePage and registers this
// manager's reference on the new page.
func (m *PageManager) CreatePage(subtype int) (*Page, error) {
	p, err := m.store.CreatePage(subtype)
	if err != nil {
		return nil, err
	}
	m.held[p.addr] = p
	return p, nil
}

// DeletePage dispatches to Store.DeletePage, also dropping this
// manager's own bookkeeping for addr.
func (m *PageManager) DeletePage(addr Address, subtype ...int) error {
	err := m.store.DeletePage(addr, subtype...)
	delete(m.held, addr)
	return err
}

// observe returns this manager's existing reference to addr, or
// acquires a new one via fetch the first time the manager sees addr.
func (m *PageManager) observe(addr Address, fetch func() (*Page, error)) (*Page, error) {
	if p, ok := m.held[addr]; ok {
		return p, nil
	}
	p, err := fetch()
	if err != nil {
		return nil, err
	}
	m.held[addr] = p
	return p, nil
}

// Release drops this manager's reference to the page at addr, if it
// is currently held. No-op if the manager never observed addr or has
// already released it.
func (m *PageManager) Release(addr Address) {
	p, ok := m.held[addr]
	if !ok {
		return
	}
	delete(m.held, addr)
	p.Release()
}

// ReleaseAll drops every reference this manager currently holds.
func (m *PageManager) ReleaseAll() {
	for addr, p := range m.held {
		delete(m.held, addr)
		p.Release()
	}
}
