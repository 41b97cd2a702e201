// Package page implements the fixed-size on-disk page format of §3 and
// the on-disk formats of §6: the 38-byte common header, the 8-byte
// trailer, and the page-type tag every higher layer dispatches on.
//
// A Page is a thin view over a fixed-size byte buffer; it never takes
// ownership of that buffer's lifetime (the buffer pool frame owns it).
package page

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
)

// NilPageNo marks an absent page-no / list terminator, mirroring
// InnoDB's FIL_NULL sentinel.
const NilPageNo uint32 = 0xFFFFFFFF

// Size is the fixed page size, P in spec.md §3. InnoDB-alikes use 16 KiB.
const Size = 16 * 1024

// Header field offsets/sizes, matching §6 "Index page header at offset 38"
// and the FileHeader layout modeled on the teacher's
// storage/store/pages/page.go.
const (
	OffChecksum  = 0  // 4 bytes: checksum (or space-id in old format)
	OffPageNo    = 4  // 4 bytes
	OffPrevPage  = 8  // 4 bytes
	OffNextPage  = 12 // 4 bytes
	OffLSN       = 16 // 8 bytes
	OffPageType  = 24 // 2 bytes
	OffFlushLSN  = 26 // 8 bytes, only meaningful on page 0
	OffSpaceID   = 34 // 4 bytes
	HeaderSize   = 38

	TrailerLSNLow  = 0 // 4 bytes: low 4 bytes of page LSN, torn-write detector
	TrailerCheck   = 4 // 4 bytes: checksum repeated
	TrailerSize    = 8
)

// Type tags a page's physical layout, dispatched on rather than modeled
// with per-type inheritance (§9 "polymorphism without deep inheritance").
type Type uint16

const (
	TypeAllocatedUnused Type = iota
	TypeIndex
	TypeUndoLog
	TypeSegmentInode
	TypeSpaceHeader
	TypeExtentDescriptor
	TypeIbufBitmap
	TypeTrxSys
	TypeBlobOverflow
)

func (t Type) String() string {
	switch t {
	case TypeIndex:
		return "INDEX"
	case TypeUndoLog:
		return "UNDO_LOG"
	case TypeSegmentInode:
		return "INODE"
	case TypeSpaceHeader:
		return "FSP_HDR"
	case TypeExtentDescriptor:
		return "XDES"
	case TypeIbufBitmap:
		return "IBUF_BITMAP"
	case TypeTrxSys:
		return "TRX_SYS"
	case TypeBlobOverflow:
		return "BLOB"
	default:
		return "ALLOCATED_UNUSED"
	}
}

// Page is a mutable view over one fixed-size frame's backing buffer.
type Page struct {
	Buf []byte // len(Buf) == Size, owned by the caller (buffer frame)
}

// New wraps buf (which must be exactly Size bytes) as a Page.
func New(buf []byte) *Page {
	if len(buf) != Size {
		panic("page: buffer must be exactly Size bytes")
	}
	return &Page{Buf: buf}
}

// Init zeroes the header/trailer fields and stamps identity, used when a
// freshly allocated frame becomes a page for the first time.
func (p *Page) Init(spaceID, pageNo uint32, typ Type) {
	for i := 0; i < HeaderSize; i++ {
		p.Buf[i] = 0
	}
	for i := len(p.Buf) - TrailerSize; i < len(p.Buf); i++ {
		p.Buf[i] = 0
	}
	p.SetSpaceID(spaceID)
	p.SetPageNo(pageNo)
	p.SetPrevPage(NilPageNo)
	p.SetNextPage(NilPageNo)
	p.SetType(typ)
}

func (p *Page) SpaceID() uint32   { return binary.BigEndian.Uint32(p.Buf[OffSpaceID:]) }
func (p *Page) SetSpaceID(v uint32) { binary.BigEndian.PutUint32(p.Buf[OffSpaceID:], v) }

func (p *Page) PageNo() uint32    { return binary.BigEndian.Uint32(p.Buf[OffPageNo:]) }
func (p *Page) SetPageNo(v uint32) { binary.BigEndian.PutUint32(p.Buf[OffPageNo:], v) }

func (p *Page) PrevPage() uint32    { return binary.BigEndian.Uint32(p.Buf[OffPrevPage:]) }
func (p *Page) SetPrevPage(v uint32) { binary.BigEndian.PutUint32(p.Buf[OffPrevPage:], v) }

func (p *Page) NextPage() uint32    { return binary.BigEndian.Uint32(p.Buf[OffNextPage:]) }
func (p *Page) SetNextPage(v uint32) { binary.BigEndian.PutUint32(p.Buf[OffNextPage:], v) }

// LSN returns the page-LSN: the LSN of the most recent log record whose
// effects are reflected on this page.
func (p *Page) LSN() uint64    { return binary.BigEndian.Uint64(p.Buf[OffLSN:]) }
func (p *Page) SetLSN(v uint64) { binary.BigEndian.PutUint64(p.Buf[OffLSN:], v) }

func (p *Page) Type() Type     { return Type(binary.BigEndian.Uint16(p.Buf[OffPageType:])) }
func (p *Page) SetType(t Type) { binary.BigEndian.PutUint16(p.Buf[OffPageType:], uint16(t)) }

func (p *Page) FlushLSN() uint64     { return binary.BigEndian.Uint64(p.Buf[OffFlushLSN:]) }
func (p *Page) SetFlushLSN(v uint64) { binary.BigEndian.PutUint64(p.Buf[OffFlushLSN:], v) }

// Checksum computes an xxHash32 digest over the page body (everything but
// the checksum field itself and the trailer), the concrete choice noted
// in SPEC_FULL.md / DESIGN.md in place of InnoDB's legacy Fletcher-style
// checksum.
func (p *Page) Checksum() uint32 {
	h := xxhash.NewS32(0)
	h.Write(p.Buf[OffPageNo : len(p.Buf)-TrailerSize])
	return h.Sum32()
}

// Stamp writes the checksum field and the trailer's torn-write detector.
// Called once per page just before it is queued for flush.
func (p *Page) Stamp() {
	binary.BigEndian.PutUint32(p.Buf[OffChecksum:], p.Checksum())
	trailer := p.Buf[len(p.Buf)-TrailerSize:]
	lsn := p.LSN()
	binary.BigEndian.PutUint32(trailer[TrailerLSNLow:], uint32(lsn&0xFFFFFFFF))
	binary.BigEndian.PutUint32(trailer[TrailerCheck:], p.Checksum())
}

// Verify checks the checksum and the LSN torn-write detector, per the
// get-page protocol step 3 in §4.1.
func (p *Page) Verify() bool {
	trailer := p.Buf[len(p.Buf)-TrailerSize:]
	wantCheck := binary.BigEndian.Uint32(p.Buf[OffChecksum:])
	gotCheck := p.Checksum()
	if wantCheck != gotCheck {
		return false
	}
	trailerCheck := binary.BigEndian.Uint32(trailer[TrailerCheck:])
	if trailerCheck != gotCheck {
		return false
	}
	trailerLow := binary.BigEndian.Uint32(trailer[TrailerLSNLow:])
	return trailerLow == uint32(p.LSN()&0xFFFFFFFF)
}

// Body returns the page bytes following the common header, up to (but
// excluding) the trailer -- the area layout-specific code operates on.
func (p *Page) Body() []byte {
	return p.Buf[HeaderSize : len(p.Buf)-TrailerSize]
}

// WriteUint writes an n-byte (1,2,4,8) big-endian unsigned integer at a
// body-relative offset and is the primitive the MTR layer's
// write_ulint/write_bytes operations (§4.2) compile down to.
func (p *Page) WriteUint(bodyOffset int, n int, v uint64) {
	b := p.Body()
	switch n {
	case 1:
		b[bodyOffset] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b[bodyOffset:], uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b[bodyOffset:], uint32(v))
	case 8:
		binary.BigEndian.PutUint64(b[bodyOffset:], v)
	default:
		panic("page: unsupported WriteUint width")
	}
}

func (p *Page) ReadUint(bodyOffset int, n int) uint64 {
	b := p.Body()
	switch n {
	case 1:
		return uint64(b[bodyOffset])
	case 2:
		return uint64(binary.BigEndian.Uint16(b[bodyOffset:]))
	case 4:
		return uint64(binary.BigEndian.Uint32(b[bodyOffset:]))
	case 8:
		return binary.BigEndian.Uint64(b[bodyOffset:])
	default:
		panic("page: unsupported ReadUint width")
	}
}

func (p *Page) WriteBytes(bodyOffset int, data []byte) {
	copy(p.Body()[bodyOffset:], data)
}

func (p *Page) ReadBytes(bodyOffset, n int) []byte {
	out := make([]byte, n)
	copy(out, p.Body()[bodyOffset:bodyOffset+n])
	return out
}

// ID identifies a page within the engine: (space, page-no).
type ID struct {
	Space  uint32
	PageNo uint32
}

// Addr is a file address: (page-no, byte offset), used for list bases and
// segment-inode pointers per §6.
type Addr struct {
	PageNo uint32
	Offset uint16
}

var NilAddr = Addr{PageNo: NilPageNo, Offset: 0}

func (a Addr) IsNil() bool { return a.PageNo == NilPageNo }
