package page

import "encoding/binary"

// Index page header, body-relative offsets, per §6:
// "Index page header at offset 38: n-dir-slots(2), heap-top(2), n-heap(2),
// free(2), garbage(2), last-insert(2), direction(2), n-direction(2),
// n-recs(2), max-trx-id(8), level(2), index-id(8), leaf-seg-hdr(10),
// nonleaf-seg-hdr(10)." Offsets below are relative to Body(), i.e.
// relative to absolute offset HeaderSize (38).
const (
	IdxNDirSlots    = 0
	IdxHeapTop      = 2
	IdxNHeap        = 4
	IdxFree         = 6
	IdxGarbage      = 8
	IdxLastInsert   = 10
	IdxDirection    = 12
	IdxNDirection   = 14
	IdxNRecs        = 16
	IdxMaxTrxID     = 18
	IdxLevel        = 26
	IdxIndexID      = 28
	IdxLeafSegHdr   = 36
	IdxNonleafSeg   = 46
	IdxHeaderSize   = 56 // bytes consumed by the index header itself
)

// Direction values for the sequential-insert heuristic used to bias
// split points (§4.4 "biased by direction header if sequential inserts
// detected").
const (
	DirNone  = 0
	DirLeft  = 1
	DirRight = 2
)

// IndexHeader is a decoded view over an index page's header fields.
type IndexHeader struct{ p *Page }

func (p *Page) Index() IndexHeader { return IndexHeader{p} }

func (h IndexHeader) body() []byte { return h.p.Body() }

func (h IndexHeader) NDirSlots() uint16  { return binary.BigEndian.Uint16(h.body()[IdxNDirSlots:]) }
func (h IndexHeader) SetNDirSlots(v uint16) {
	binary.BigEndian.PutUint16(h.body()[IdxNDirSlots:], v)
}

func (h IndexHeader) HeapTop() uint16     { return binary.BigEndian.Uint16(h.body()[IdxHeapTop:]) }
func (h IndexHeader) SetHeapTop(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxHeapTop:], v) }

func (h IndexHeader) NHeap() uint16     { return binary.BigEndian.Uint16(h.body()[IdxNHeap:]) }
func (h IndexHeader) SetNHeap(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxNHeap:], v) }

func (h IndexHeader) Free() uint16     { return binary.BigEndian.Uint16(h.body()[IdxFree:]) }
func (h IndexHeader) SetFree(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxFree:], v) }

func (h IndexHeader) Garbage() uint16     { return binary.BigEndian.Uint16(h.body()[IdxGarbage:]) }
func (h IndexHeader) SetGarbage(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxGarbage:], v) }

func (h IndexHeader) LastInsert() uint16 {
	return binary.BigEndian.Uint16(h.body()[IdxLastInsert:])
}
func (h IndexHeader) SetLastInsert(v uint16) {
	binary.BigEndian.PutUint16(h.body()[IdxLastInsert:], v)
}

func (h IndexHeader) Direction() uint16     { return binary.BigEndian.Uint16(h.body()[IdxDirection:]) }
func (h IndexHeader) SetDirection(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxDirection:], v) }

func (h IndexHeader) NDirection() uint16 {
	return binary.BigEndian.Uint16(h.body()[IdxNDirection:])
}
func (h IndexHeader) SetNDirection(v uint16) {
	binary.BigEndian.PutUint16(h.body()[IdxNDirection:], v)
}

func (h IndexHeader) NRecs() uint16     { return binary.BigEndian.Uint16(h.body()[IdxNRecs:]) }
func (h IndexHeader) SetNRecs(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxNRecs:], v) }

func (h IndexHeader) MaxTrxID() uint64 { return binary.BigEndian.Uint64(h.body()[IdxMaxTrxID:]) }
func (h IndexHeader) SetMaxTrxID(v uint64) {
	binary.BigEndian.PutUint64(h.body()[IdxMaxTrxID:], v)
}

// Level is the tree level; 0 means leaf, per §4.4.
func (h IndexHeader) Level() uint16     { return binary.BigEndian.Uint16(h.body()[IdxLevel:]) }
func (h IndexHeader) SetLevel(v uint16) { binary.BigEndian.PutUint16(h.body()[IdxLevel:], v) }
func (h IndexHeader) IsLeaf() bool      { return h.Level() == 0 }

func (h IndexHeader) IndexID() uint64 { return binary.BigEndian.Uint64(h.body()[IdxIndexID:]) }
func (h IndexHeader) SetIndexID(v uint64) {
	binary.BigEndian.PutUint64(h.body()[IdxIndexID:], v)
}

// InitIndexPage stamps a fresh index page: header defaults, system
// records, and an empty two-slot directory (infimum, supremum).
func InitIndexPage(p *Page, spaceID, pageNo uint32, indexID uint64, level uint16) {
	p.Init(spaceID, pageNo, TypeIndex)
	h := p.Index()
	h.SetNDirSlots(2)
	h.SetHeapTop(uint16(SupremumOffset + len(supremumBytes)))
	h.SetNHeap(2) // infimum + supremum
	h.SetFree(0)
	h.SetGarbage(0)
	h.SetNRecs(0)
	h.SetLevel(level)
	h.SetIndexID(indexID)
	WriteSystemRecords(p)
	dir := NewDirectory(p)
	dir.SetSlot(0, uint16(InfimumOffset))
	dir.SetSlot(1, uint16(SupremumOffset))
}

// Directory is the page directory growing down from the trailer, §3/§6:
// "directory grows downward from trailer", 2-byte slot pointers.
type Directory struct{ p *Page }

func NewDirectory(p *Page) Directory { return Directory{p} }

const dirSlotSize = 2

// slotsBase returns the body-relative offset of directory slot 0
// (the slot closest to the trailer; slots grow toward lower offsets as
// more are added, mirroring InnoDB's page_dir layout).
func (d Directory) slotsBase() int {
	return len(d.p.Body()) - dirSlotSize
}

func (d Directory) SetSlot(i int, bodyOffset uint16) {
	off := d.slotsBase() - i*dirSlotSize
	binary.BigEndian.PutUint16(d.p.Body()[off:], bodyOffset)
}

func (d Directory) Slot(i int) uint16 {
	off := d.slotsBase() - i*dirSlotSize
	return binary.BigEndian.Uint16(d.p.Body()[off:])
}
