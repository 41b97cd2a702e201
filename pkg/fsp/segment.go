package fsp

// Segment type, per §3 "A logical allocation unit... Every B+ tree owns
// two segments: leaf pages and internal pages."
type SegType uint8

const (
	SegTypeLeaf SegType = iota
	SegTypeNonLeaf
	SegTypeUndo
)

// MaxFragPages bounds the individually-allocated fragment pages a
// segment may hold before it must allocate whole extents, per §3
// "up to 32 individually allocated fragment pages".
const MaxFragPages = 32

// Segment is the in-memory form of a segment inode: three extent lists
// plus up to MaxFragPages fragment pages, per §3.
type Segment struct {
	ID      uint64
	Type    SegType
	SpaceID uint32

	Free    []*XDES // fully free extents owned by this segment
	NotFull []*XDES // partially used extents
	Full    []*XDES // fully used extents

	FragPages []uint32 // individually allocated pages, not part of an extent

	// InodePage/InodeOffset locate this segment's persisted inode entry,
	// the "10-byte header embedded in the root object" of §3.
	InodePage   uint32
	InodeOffset uint16
}

func NewSegment(id uint64, typ SegType, spaceID uint32, inodePage uint32, inodeOffset uint16) *Segment {
	return &Segment{
		ID: id, Type: typ, SpaceID: spaceID,
		InodePage: inodePage, InodeOffset: inodeOffset,
	}
}

// TotalPages is the segment's page budget across fragments and extents.
func (s *Segment) TotalPages() uint32 {
	n := uint32(len(s.FragPages))
	n += uint32(len(s.NotFull)+len(s.Full)+len(s.Free)) * PagesPerExtent
	return n
}

// FreePages is the number of still-unallocated pages reachable from this
// segment without growing it (used fill-factor bookkeeping in §4.4).
func (s *Segment) FreePages() uint32 {
	var n int
	for _, x := range s.NotFull {
		n += x.FreePageCount()
	}
	for _, x := range s.Free {
		n += x.FreePageCount()
	}
	return uint32(n)
}

// Header is the 10-byte segment header persisted in the root object
// (e.g. a B+ tree root page), per §3.
type Header struct {
	SpaceID     uint32
	InodePageNo uint32
	InodeOffset uint16
}

func (h Header) Encode() []byte {
	buf := make([]byte, 10)
	putU32(buf[0:], h.SpaceID)
	putU32(buf[4:], h.InodePageNo)
	buf[8], buf[9] = byte(h.InodeOffset>>8), byte(h.InodeOffset)
	return buf
}

func DecodeHeader(buf []byte) Header {
	return Header{
		SpaceID:     getU32(buf[0:]),
		InodePageNo: getU32(buf[4:]),
		InodeOffset: uint16(buf[8])<<8 | uint16(buf[9]),
	}
}

// AllocateFragPage hands out one individually-allocated page for a small
// segment that hasn't yet grown to a full extent (§3: "up to 32...
// fragment pages"). Returns ok=false once MaxFragPages fragment pages
// are held; it does not look at the segment's extents, which
// AllocateFromExtents serves.
func (s *Segment) AllocateFragPage(nextPageNo func() uint32) (pageNo uint32, ok bool) {
	if len(s.FragPages) < MaxFragPages {
		pageNo = nextPageNo()
		s.FragPages = append(s.FragPages, pageNo)
		return pageNo, true
	}
	return 0, false
}

// AllocateFromExtents takes a free page from the segment's not-full
// extents (promoting one from Free if NotFull is empty), or reports
// ok=false if the segment owns no room at all.
func (s *Segment) AllocateFromExtents() (pageNo uint32, ok bool) {
	if len(s.NotFull) == 0 && len(s.Free) > 0 {
		x := s.Free[0]
		s.Free = s.Free[1:]
		s.NotFull = append(s.NotFull, x)
	}
	for i, x := range s.NotFull {
		for j := 0; j < PagesPerExtent; j++ {
			if x.IsPageFree(j) {
				x.SetPageFree(j, false)
				pageNo = x.FirstPageNo + uint32(j)
				if x.FreePageCount() == 0 {
					s.NotFull = append(s.NotFull[:i], s.NotFull[i+1:]...)
					s.Full = append(s.Full, x)
				}
				return pageNo, true
			}
		}
	}
	return 0, false
}

// FreePage returns pageNo to its owning extent's free bitmap, moving the
// extent between Full/NotFull/Free as its occupancy changes.
func (s *Segment) FreePage(pageNo uint32) {
	release := func(list []*XDES) ([]*XDES, bool) {
		for i, x := range list {
			if pageNo < x.FirstPageNo || pageNo >= x.FirstPageNo+PagesPerExtent {
				continue
			}
			wasFull := x.FreePageCount() == 0
			x.SetPageFree(int(pageNo-x.FirstPageNo), true)
			if wasFull {
				list = append(list[:i], list[i+1:]...)
				s.NotFull = append(s.NotFull, x)
			} else if x.FreePageCount() == PagesPerExtent {
				list = append(list[:i], list[i+1:]...)
				s.Free = append(s.Free, x)
			}
			return list, true
		}
		return list, false
	}
	if l, ok := release(s.Full); ok {
		s.Full = l
		return
	}
	if l, ok := release(s.NotFull); ok {
		s.NotFull = l
		return
	}
}
