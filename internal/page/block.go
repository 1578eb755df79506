// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package page

// Block wraps the raw byte buffer of exactly one page. It is
// constructed in one of two modes: New* (dirty=true, the caller's
// header values are stamped into the buffer) or Load* (dirty=false,
// the header is validated against the buffer's existing bytes). Every
// setter marks the block dirty; every getter is pure.
type Block struct {
	addr  Address
	kind  Kind
	buf   []byte
	dirty bool
}

// Addr returns the page's own address.
func (b *Block) Addr() Address { return b.addr }

// Kind returns the page's kind byte.
func (b *Block) Kind() Kind { return b.kind }

// Dirty reports whether the block's buffer has been mutated since load
// or since the last MarkClean.
func (b *Block) Dirty() bool { return b.dirty }

// MarkClean clears the dirty flag after the owning store has flushed
// the buffer to disk.
func (b *Block) MarkClean() { b.dirty = false }

// Bytes returns the full page-sized buffer, including the header.
func (b *Block) Bytes() []byte { return b.buf }

const (
	rootHeaderBytes = 6
	rootContentOff  = 1 + rootHeaderBytes

	freelistHeaderBytes = 6
	freelistEntriesOff  = 1 + freelistHeaderBytes

	dataHeaderBytes = 4
	dataContentOff  = 1 + dataHeaderBytes

	entryHeaderBytes = 4
	entryContentOff  = 1 + entryHeaderBytes
)

// ContentCapacity returns the number of content bytes available on a
// page of the given kind and pageSize. Free-list pages have no
// "content" in the user sense; callers should use FreelistCapacity.
func ContentCapacity(kind Kind, pageSize int) int {
	switch {
	case kind == KindRoot:
		return pageSize - rootContentOff
	case kind == KindFreelist:
		return pageSize - freelistEntriesOff
	default: // Data or Entry
		return pageSize - dataContentOff
	}
}

// FreelistCapacity returns the maximum number of addresses a free-list
// page of the given pageSize can hold.
func FreelistCapacity(pageSize int) int {
	return (pageSize - freelistEntriesOff) / 2
}

// NewEmpty constructs a fresh Empty block over buf. buf is zeroed and
// the block is marked dirty so the owning cache writes the clear back
// to disk.
func NewEmpty(addr Address, buf []byte) *Block {
	clear(buf)
	return &Block{addr: addr, kind: KindEmpty, buf: buf, dirty: true}
}

// LoadEmpty wraps an already-empty buffer without mutating it.
func LoadEmpty(addr Address, buf []byte) *Block {
	return &Block{addr: addr, kind: KindEmpty, buf: buf}
}

// Load decodes buf according to its stored kind byte and returns a
// clean block. It validates only that the kind byte is one of the
// four known categories; header field sanity is the caller's concern.
func Load(addr Address, buf []byte) (*Block, error) {
	kind := Kind(buf[0])
	if kind != KindEmpty && kind != KindRoot && kind != KindFreelist && kind != KindData && kind < KindEntry {
		return nil, ErrCorruptFile
	}
	return &Block{addr: addr, kind: kind, buf: buf}, nil
}

// --- Root ---

// NewRoot stamps a fresh root header into buf.
func NewRoot(buf []byte, pageSize int) *Block {
	b := &Block{addr: Root, kind: KindRoot, buf: buf, dirty: true}
	buf[0] = byte(KindRoot)
	putU16(buf[1:], Address(pageSize))
	putU16(buf[3:], Null)
	putU16(buf[5:], Null)
	return b
}

func (b *Block) requireKind(k Kind) {
	if b.kind != k {
		panic(ErrTypeMismatch)
	}
}

func (b *Block) RootPageSize() int {
	b.requireKind(KindRoot)
	return int(getU16(b.buf[1:]))
}

func (b *Block) FirstFreelistAddr() Address {
	b.requireKind(KindRoot)
	return getU16(b.buf[3:])
}

func (b *Block) SetFirstFreelistAddr(addr Address) {
	b.requireKind(KindRoot)
	putU16(b.buf[3:], addr)
	b.dirty = true
}

func (b *Block) RootNextOverflow() Address {
	b.requireKind(KindRoot)
	return getU16(b.buf[5:])
}

func (b *Block) SetRootNextOverflow(addr Address) {
	b.requireKind(KindRoot)
	putU16(b.buf[5:], addr)
	b.dirty = true
}

func (b *Block) RootContent() []byte {
	b.requireKind(KindRoot)
	return b.buf[rootContentOff:]
}

// --- Free-list ---

// NewFreelist stamps a fresh, empty free-list header into buf.
func NewFreelist(addr Address, buf []byte) *Block {
	b := &Block{addr: addr, kind: KindFreelist, buf: buf, dirty: true}
	buf[0] = byte(KindFreelist)
	putU16(buf[1:], Null)
	putU16(buf[3:], Null)
	putU16(buf[5:], 0)
	return b
}

func (b *Block) FreelistPrev() Address {
	b.requireKind(KindFreelist)
	return getU16(b.buf[1:])
}

func (b *Block) SetFreelistPrev(addr Address) {
	b.requireKind(KindFreelist)
	putU16(b.buf[1:], addr)
	b.dirty = true
}

func (b *Block) FreelistNext() Address {
	b.requireKind(KindFreelist)
	return getU16(b.buf[3:])
}

func (b *Block) SetFreelistNext(addr Address) {
	b.requireKind(KindFreelist)
	putU16(b.buf[3:], addr)
	b.dirty = true
}

func (b *Block) FreelistCount() int {
	b.requireKind(KindFreelist)
	return int(getU16(b.buf[5:]))
}

func (b *Block) freelistCapacity() int {
	return FreelistCapacity(len(b.buf))
}

func (b *Block) freelistSlot(i int) []byte {
	off := freelistEntriesOff + 2*i
	return b.buf[off : off+2]
}

// FreelistPop removes and returns the last stored address, decrementing
// count. It panics if the free-list is empty.
func (b *Block) FreelistPop() Address {
	b.requireKind(KindFreelist)
	count := b.FreelistCount()
	if count == 0 {
		panic("page: FreelistPop on empty free-list")
	}
	addr := getU16(b.freelistSlot(count - 1))
	putU16(b.buf[5:], Address(count-1))
	b.dirty = true
	return addr
}

// FreelistPush appends addr to the slot array. It panics if the
// free-list is already at capacity.
func (b *Block) FreelistPush(addr Address) {
	b.requireKind(KindFreelist)
	count := b.FreelistCount()
	if count >= b.freelistCapacity() {
		panic("page: FreelistPush on full free-list")
	}
	putU16(b.freelistSlot(count), addr)
	putU16(b.buf[5:], Address(count+1))
	b.dirty = true
}

// FreelistFull reports whether the free-list has no remaining slots.
func (b *Block) FreelistFull() bool {
	b.requireKind(KindFreelist)
	return b.FreelistCount() >= b.freelistCapacity()
}

// --- Data ---

// NewData stamps a fresh data-page header into buf.
func NewData(addr, prev Address, buf []byte) *Block {
	b := &Block{addr: addr, kind: KindData, buf: buf, dirty: true}
	buf[0] = byte(KindData)
	putU16(buf[1:], prev)
	putU16(buf[3:], Null)
	return b
}

func (b *Block) DataPrev() Address {
	b.requireKind(KindData)
	return getU16(b.buf[1:])
}

func (b *Block) SetDataPrev(addr Address) {
	b.requireKind(KindData)
	putU16(b.buf[1:], addr)
	b.dirty = true
}

func (b *Block) DataNextOverflow() Address {
	b.requireKind(KindData)
	return getU16(b.buf[3:])
}

func (b *Block) SetDataNextOverflow(addr Address) {
	b.requireKind(KindData)
	putU16(b.buf[3:], addr)
	b.dirty = true
}

func (b *Block) DataContent() []byte {
	b.requireKind(KindData)
	return b.buf[dataContentOff:]
}

// --- Entry ---

// NewEntry stamps a fresh entry-page header into buf with the given
// application subtype.
func NewEntry(addr, prev Address, subtype int, buf []byte) *Block {
	b := &Block{addr: addr, kind: EntryKind(subtype), buf: buf, dirty: true}
	buf[0] = byte(b.kind)
	putU16(buf[1:], prev)
	putU16(buf[3:], Null)
	return b
}

func (b *Block) entryGuard() {
	if _, ok := b.kind.Subtype(); !ok {
		panic(ErrTypeMismatch)
	}
}

func (b *Block) EntrySubtype() int {
	b.entryGuard()
	subtype, _ := b.kind.Subtype()
	return subtype
}

// SetEntrySubtype changes the application subtype in place without
// touching the rest of the header or content.
func (b *Block) SetEntrySubtype(subtype int) {
	b.entryGuard()
	b.kind = EntryKind(subtype)
	b.buf[0] = byte(b.kind)
	b.dirty = true
}

func (b *Block) EntryPrev() Address {
	b.entryGuard()
	return getU16(b.buf[1:])
}

func (b *Block) SetEntryPrev(addr Address) {
	b.entryGuard()
	putU16(b.buf[1:], addr)
	b.dirty = true
}

func (b *Block) EntryNextOverflow() Address {
	b.entryGuard()
	return getU16(b.buf[3:])
}

func (b *Block) SetEntryNextOverflow(addr Address) {
	b.entryGuard()
	putU16(b.buf[3:], addr)
	b.dirty = true
}

func (b *Block) EntryContent() []byte {
	b.entryGuard()
	return b.buf[entryContentOff:]
}

// --- Shared head-page view (Root or Entry) ---

// HeadNextOverflow returns the nextOverflowAddr field for whichever
// head kind (Root or Entry) the block holds.
func (b *Block) HeadNextOverflow() Address {
	if b.kind == KindRoot {
		return b.RootNextOverflow()
	}
	return b.EntryNextOverflow()
}

func (b *Block) SetHeadNextOverflow(addr Address) {
	if b.kind == KindRoot {
		b.SetRootNextOverflow(addr)
		return
	}
	b.SetEntryNextOverflow(addr)
}

func (b *Block) HeadContent() []byte {
	if b.kind == KindRoot {
		return b.RootContent()
	}
	return b.EntryContent()
}

// --- Shared overflow-node view (Data or Entry: both prev/nextOverflow over content) ---

func (b *Block) NodeNextOverflow() Address {
	if b.kind == KindData {
		return b.DataNextOverflow()
	}
	return b.EntryNextOverflow()
}

func (b *Block) SetNodeNextOverflow(addr Address) {
	if b.kind == KindData {
		b.SetDataNextOverflow(addr)
		return
	}
	b.SetEntryNextOverflow(addr)
}

func (b *Block) NodeContent() []byte {
	if b.kind == KindData {
		return b.DataContent()
	}
	return b.EntryContent()
}
