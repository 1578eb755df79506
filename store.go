// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dacapoday/pagestore/internal/alloc"
	"github.com/dacapoday/pagestore/internal/cache"
	"github.com/dacapoday/pagestore/internal/overflow"
	"github.com/dacapoday/pagestore/internal/page"
)

// Store is a paged random-access store bound to a single host file.
// It is single-threaded and synchronous: wrap it in an external mutex
// to share it across goroutines.
type Store struct {
	file      File
	pageSize  int
	cacheSize int
	logger    *slog.Logger

	cache *cache.Cache
	free  *alloc.Freelist
	alloc *alloc.Allocator

	filePageCount   int
	memoryPageCount int

	pages map[Address]*Page

	closed bool
}

// Open opens or creates a paged store backed by file. With no options
// the store uses a 4096-byte page size, an ~8 MiB cache budget, and
// creates an empty file's root page automatically.
func Open(file File, opts ...Option) (*Store, error) {
	o := resolveOptions(opts)
	if !page.ValidSize(o.PageSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, o.PageSize)
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("pagestore: seek: %w", err)
	}
	if size%int64(o.PageSize) != 0 {
		return nil, fmt.Errorf("%w: size %d not a multiple of page size %d", ErrCorruptFile, size, o.PageSize)
	}

	filePageCount := int(size / int64(o.PageSize))
	if filePageCount == 0 && !o.Create {
		return nil, fmt.Errorf("%w: empty file and Create is false", ErrCorruptFile)
	}

	s := &Store{
		file:            file,
		pageSize:        o.PageSize,
		cacheSize:       o.CacheSize,
		logger:          o.Logger,
		cache:           cache.New(),
		filePageCount:   filePageCount,
		memoryPageCount: max(filePageCount, 1),
		pages:           make(map[Address]*Page),
	}
	s.free = alloc.New(s)
	s.alloc = alloc.NewAllocator(s.free, s)

	if filePageCount > 0 {
		root, err := s.load(RootAddress)
		if err != nil {
			return nil, err
		}
		if root.Kind() != page.KindRoot {
			return nil, fmt.Errorf("%w: page 0 is not root", ErrCorruptFile)
		}
		if stored := root.RootPageSize(); stored != o.PageSize {
			return nil, fmt.Errorf("%w: stored page size %d != configured %d", ErrCorruptFile, stored, o.PageSize)
		}
	}

	s.log("open", "pageSize", o.PageSize, "cacheSize", o.CacheSize, "filePageCount", filePageCount)
	return s, nil
}

func (s *Store) log(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Store) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// --- raw page I/O ---

// readRaw retries short reads until the full page is transferred, per
// the store's I/O failure semantics: a zero-return on a non-empty
// request is ErrUnexpectedIO, never a silent partial page.
func (s *Store) readRaw(addr Address) ([]byte, error) {
	buf := make([]byte, s.pageSize)
	off := int64(addr) * int64(s.pageSize)
	n := 0
	for n < len(buf) {
		m, err := s.file.ReadAt(buf[n:], off+int64(n))
		if m == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, ErrUnexpectedIO
		}
		n += m
	}
	return buf, nil
}

func (s *Store) writeRaw(addr Address, buf []byte) error {
	off := int64(addr) * int64(s.pageSize)
	n := 0
	for n < len(buf) {
		m, err := s.file.WriteAt(buf[n:], off+int64(n))
		if m == 0 && err == nil {
			return ErrUnexpectedIO
		}
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

// load reads addr from the cache, or from the file on a cache miss,
// decoding it according to its stored kind byte.
func (s *Store) load(addr Address) (*page.Block, error) {
	if b, ok := s.cache.Get(page.Address(addr)); ok {
		return b, nil
	}
	if int(addr) >= s.memoryPageCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
	}
	if addr == RootAddress && s.filePageCount == 0 {
		root := page.NewRoot(make([]byte, s.pageSize), s.pageSize)
		s.cache.Set(root)
		return root, nil
	}
	buf, err := s.readRaw(addr)
	if err != nil {
		return nil, err
	}
	b, err := page.Load(page.Address(addr), buf)
	if err != nil {
		return nil, err
	}
	s.cache.Set(b)
	return b, nil
}

// root returns the root block through the cache, loading it from the
// file or materializing it on an empty file when it is not cached.
func (s *Store) root() *page.Block {
	b, err := s.load(RootAddress)
	if err != nil {
		panic(fmt.Errorf("pagestore: root page unreadable: %w", err))
	}
	return b
}

// --- alloc.Backend ---

func (s *Store) RootFirstFreelist() page.Address { return s.root().FirstFreelistAddr() }

func (s *Store) SetRootFirstFreelist(addr page.Address) { s.root().SetFirstFreelistAddr(addr) }

func (s *Store) LoadFreelist(addr page.Address) (*page.Block, error) {
	b, err := s.load(Address(addr))
	if err != nil {
		return nil, err
	}
	if b.Kind() != page.KindFreelist {
		return nil, fmt.Errorf("%w: %d is not a free-list page", ErrCorruptFile, addr)
	}
	return b, nil
}

func (s *Store) NewFreelistAt(addr page.Address) *page.Block {
	b := page.NewFreelist(addr, make([]byte, s.pageSize))
	s.cache.Set(b)
	return b
}

func (s *Store) MarkEmpty(addr page.Address) {
	b := page.NewEmpty(addr, make([]byte, s.pageSize))
	s.cache.Set(b)
	s.log("reclaim", "addr", addr)
}

func (s *Store) Extend() page.Address {
	addr := page.Address(s.memoryPageCount)
	s.memoryPageCount++
	return addr
}

// --- overflow.Backend ---

func (s *Store) LoadData(addr page.Address) (*page.Block, error) {
	b, err := s.load(Address(addr))
	if err != nil {
		return nil, err
	}
	if b.Kind() != page.KindData {
		return nil, fmt.Errorf("%w: %d is not a data page", ErrCorruptFile, addr)
	}
	return b, nil
}

func (s *Store) NewData(prev page.Address) (*page.Block, error) {
	addr, err := s.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	b := page.NewData(addr, prev, make([]byte, s.pageSize))
	s.cache.Set(b)
	s.checkCache()
	return b, nil
}

// FreeChainFrom walks the chain starting at addr, marking every node
// Empty and returning its address to the free-list.
func (s *Store) FreeChainFrom(addr page.Address) error {
	for addr != page.Null {
		node, err := s.LoadData(addr)
		if err != nil {
			return err
		}
		next := node.DataNextOverflow()
		s.MarkEmpty(addr)
		if err := s.free.GiveBack(addr); err != nil {
			return err
		}
		addr = next
	}
	return nil
}

// checkCache trims the block cache down to cacheSize, evicting only
// clean blocks, oldest first.
func (s *Store) checkCache() {
	s.cache.Trim(s.cacheSize)
}

var _ alloc.Backend = (*Store)(nil)
var _ overflow.Backend = (*Store)(nil)

// --- public surface ---

// RootPage returns a handle on the permanent root page.
func (s *Store) RootPage() (*Page, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.acquire(RootAddress), nil
}

// Page loads an existing entry page at addr. If subtype is given, the
// stored subtype must match or ErrTypeMismatch is returned; if
// omitted, any entry subtype is accepted ("read unchecked").
func (s *Store) Page(addr Address, subtype ...int) (*Page, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if addr == RootAddress {
		return s.acquire(addr), nil
	}
	if int(addr) >= s.memoryPageCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
	}
	b, err := s.load(addr)
	if err != nil {
		return nil, err
	}
	if b.Kind() == page.KindEmpty {
		return nil, fmt.Errorf("%w: page %d", ErrEmptyPageOp, addr)
	}
	got, ok := b.Kind().Subtype()
	if !ok {
		return nil, fmt.Errorf("%w: page %d is not an entry page", ErrTypeMismatch, addr)
	}
	if len(subtype) > 0 && subtype[0] != got {
		return nil, fmt.Errorf("%w: page %d has subtype %d, want %d", ErrTypeMismatch, addr, got, subtype[0])
	}
	return s.acquire(addr), nil
}

// CreatePage allocates a fresh entry page with the given subtype.
// subtype must be in [0, 251].
func (s *Store) CreatePage(subtype int) (*Page, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if subtype < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubtype, subtype)
	}
	if subtype > page.MaxSubtype {
		return nil, fmt.Errorf("%w: %d", ErrSubtypeTooLarge, subtype)
	}

	addr, err := s.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	b := page.NewEntry(addr, page.Null, subtype, make([]byte, s.pageSize))
	s.cache.Set(b)
	s.checkCache()
	return s.acquire(Address(addr)), nil
}

// DeletePage deletes the entry page at addr, recursively freeing its
// overflow chain. It is a no-op when addr is the root address.
func (s *Store) DeletePage(addr Address, subtype ...int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if addr == RootAddress {
		return nil
	}
	p, err := s.Page(addr, subtype...)
	if err != nil {
		return err
	}
	return p.Delete()
}

// acquire returns the shared Page for addr, incrementing its reference
// count. A fresh handle starts at one reference, matching the store's
// own implicit manager observing it.
func (s *Store) acquire(addr Address) *Page {
	if p, ok := s.pages[addr]; ok {
		p.refs++
		return p
	}
	p := &Page{store: s, addr: addr, refs: 1}
	s.pages[addr] = p
	return p
}

func (s *Store) forget(addr Address) {
	delete(s.pages, addr)
}

// Save flushes every dirty cached block to the file in
// least-recently-used order, then eagerly trims the cache back to its
// configured soft limit.
func (s *Store) Save() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var saveErr error
	s.cache.LeastRecentlyUsed(func(b *page.Block) bool {
		addr := int(b.Addr())
		if addr >= s.filePageCount {
			s.filePageCount = addr + 1
		}
		if !b.Dirty() {
			return true
		}
		if err := s.writeRaw(Address(addr), b.Bytes()); err != nil {
			saveErr = fmt.Errorf("pagestore: save page %d: %w", addr, err)
			return false
		}
		b.MarkClean()
		return true
	})
	if saveErr != nil {
		return saveErr
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("pagestore: sync: %w", err)
	}

	s.checkCache()
	s.log("save", "filePageCount", s.filePageCount, "cacheLen", s.cache.Len())
	return nil
}

// Close releases the underlying file handle. Close is idempotent;
// operations after Close fail with ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.log("close")
	return s.file.Close()
}

// Size returns the number of bytes persisted to the file as of the
// last Save.
func (s *Store) Size() int64 {
	return int64(s.filePageCount) * int64(s.pageSize)
}

// UnsavedSize returns the number of bytes staged in memory but not yet
// persisted: the memory page count's footprint minus what has been
// saved.
func (s *Store) UnsavedSize() int64 {
	return int64(s.memoryPageCount)*int64(s.pageSize) - s.Size()
}

// Debug returns a one-line-per-page textual dump of every page in the
// saved file, in address order. Empty pages are omitted. It exists for
// test and diagnostic use only; the line format is not a stability
// contract.
func (s *Store) Debug() []string {
	var lines []string
	for addr := 0; addr < s.filePageCount; addr++ {
		b, err := s.load(Address(addr))
		if err != nil {
			lines = append(lines, fmt.Sprintf("%03d: <error: %v>", addr, err))
			continue
		}
		switch b.Kind() {
		case page.KindEmpty:
			continue
		case page.KindRoot:
			lines = append(lines, fmt.Sprintf("%03d: Root [pageSize: %d, emptylistAddr: %d, nextPage: %d]",
				addr, b.RootPageSize(), b.FirstFreelistAddr(), b.RootNextOverflow()))
		case page.KindFreelist:
			lines = append(lines, fmt.Sprintf("%03d: Freelist [prevPage: %d, nextPage: %d, count: %d]",
				addr, b.FreelistPrev(), b.FreelistNext(), b.FreelistCount()))
		case page.KindData:
			lines = append(lines, fmt.Sprintf("%03d: Data [prevPage: %d, nextPage: %d]",
				addr, b.DataPrev(), b.DataNextOverflow()))
		default:
			lines = append(lines, fmt.Sprintf("%03d: Entry(%d) [nextPage: %d]",
				addr, byte(b.Kind()), b.EntryNextOverflow()))
		}
	}
	return lines
}
