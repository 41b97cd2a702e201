// Package fsp is the file-space manager of §4 component design: extents,
// segments, and the tablespace header that track which pages are
// free/allocated. Grounded on the teacher's
// storage/store/extents/extent.go and storage/store/segs/segment.go,
// generalized from a single-tablespace demo into the engine's segment
// allocator used by pkg/btree and pkg/wal/undo pages alike.
package fsp

import "github.com/xmysql-server/innodb-core/pkg/page"

// Extent sizing, per §3 "Extent — 64 consecutive pages (1 MiB)".
const (
	PagesPerExtent = 64
	ExtentBytes    = PagesPerExtent * page.Size
)

// State is an extent's membership, per §3 XDES.
type State uint8

const (
	StateFree State = iota
	StateFreeFrag
	StateFullFrag
	StateFSEG
)

// XDES is an in-memory extent descriptor: {owning-segment-id or 0,
// list-node, state, 128-bit page bitmap (2 bits/page: free?, clean?)}.
// Persisted 32 bytes per §6 ("Extent descriptor 32 bytes... array of 256
// descriptors on every page whose offset mod 16384 is 0").
type XDES struct {
	SegmentID   uint64
	State       State
	FirstPageNo uint32
	PrevInList  uint32 // page-no of the extent descriptor page holding the prev XDES (NilPageNo if none)
	NextInList  uint32
	Bitmap      [16]byte // 2 bits/page: bit0=free, bit1=clean
}

func NewXDES(firstPageNo uint32) *XDES {
	return &XDES{
		FirstPageNo: firstPageNo,
		State:       StateFree,
		PrevInList:  page.NilPageNo,
		NextInList:  page.NilPageNo,
	}
}

func bitPos(pageIdx int) (byteIdx, bit0 int) { return pageIdx / 4, (pageIdx % 4) * 2 }

// IsPageFree reports the free bit for the pageIdx-th page of the extent.
func (x *XDES) IsPageFree(pageIdx int) bool {
	b, bit := bitPos(pageIdx)
	return x.Bitmap[b]&(1<<uint(bit)) != 0
}

func (x *XDES) SetPageFree(pageIdx int, free bool) {
	b, bit := bitPos(pageIdx)
	if free {
		x.Bitmap[b] |= 1 << uint(bit)
	} else {
		x.Bitmap[b] &^= 1 << uint(bit)
	}
}

// FreePageCount counts pages still marked free within the extent.
func (x *XDES) FreePageCount() int {
	n := 0
	for i := 0; i < PagesPerExtent; i++ {
		if x.IsPageFree(i) {
			n++
		}
	}
	return n
}

// Encode serializes the descriptor to its 32-byte on-disk form.
func (x *XDES) Encode() []byte {
	buf := make([]byte, 32)
	putU64(buf[0:], x.SegmentID)
	buf[8] = byte(x.State)
	putU32(buf[9:], x.PrevInList)
	putU32(buf[13:], x.NextInList)
	copy(buf[16:32], x.Bitmap[:])
	return buf
}

func DecodeXDES(firstPageNo uint32, buf []byte) *XDES {
	x := &XDES{FirstPageNo: firstPageNo}
	x.SegmentID = getU64(buf[0:])
	x.State = State(buf[8])
	x.PrevInList = getU32(buf[9:])
	x.NextInList = getU32(buf[13:])
	copy(x.Bitmap[:], buf[16:32])
	return x
}

func putU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}
func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
}
func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
