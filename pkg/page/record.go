package page

import "encoding/binary"

// Record header layout per §6 "Record header (compact)": 5 bytes
// preceding the field data, preceded by variable-length lengths and a
// null bitmap. We keep the null bitmap and variable-length array out of
// this package (they are column-shape dependent, computed by pkg/row)
// and expose only the fixed 5-byte header every record carries.
const RecHeaderSize = 5

// Info bits packed into the record header's first byte.
const (
	InfoDeleted   = 1 << 0 // delete-marked
	InfoMinRec    = 1 << 1 // leftmost record of a non-root level
	infoOwnedMask = 0xFC   // top 6 bits: n-owned count (this slot's group size)
)

// RecHeader is a decoded view of the 5-byte compact record header.
type RecHeader struct {
	InfoBits uint8  // low bits: flags; high 6 bits: n-owned
	HeapNo   uint16 // 13-bit heap number (shares a 2-byte field with Status on disk)
	Status   uint8  // record status: 0=ordinary,1=node-ptr,2=infimum,3=supremum
	Next     int16  // relative offset to next record in the sorted chain
}

const (
	StatusOrdinary = 0
	StatusNodePtr  = 1
	StatusInfimum  = 2
	StatusSupremum = 3
)

// Encode writes the record header at buf[0:5].
func (h RecHeader) Encode(buf []byte) {
	buf[0] = h.InfoBits
	heapAndStatus := (h.HeapNo << 3) | uint16(h.Status&0x7)
	binary.BigEndian.PutUint16(buf[1:], heapAndStatus)
	binary.BigEndian.PutUint16(buf[3:], uint16(h.Next))
}

// DecodeRecHeader reads the 5-byte header starting at buf[0].
func DecodeRecHeader(buf []byte) RecHeader {
	heapAndStatus := binary.BigEndian.Uint16(buf[1:])
	return RecHeader{
		InfoBits: buf[0],
		HeapNo:   heapAndStatus >> 3,
		Status:   uint8(heapAndStatus & 0x7),
		Next:     int16(binary.BigEndian.Uint16(buf[3:])),
	}
}

func (h RecHeader) NOwned() uint8    { return h.InfoBits >> 2 }
func (h RecHeader) IsDeleted() bool  { return h.InfoBits&InfoDeleted != 0 }
func (h RecHeader) IsMinRec() bool   { return h.InfoBits&InfoMinRec != 0 }

func (h *RecHeader) SetNOwned(n uint8) {
	h.InfoBits = (h.InfoBits &^ infoOwnedMask) | (n << 2)
}
func (h *RecHeader) SetDeleted(v bool) {
	if v {
		h.InfoBits |= InfoDeleted
	} else {
		h.InfoBits &^= InfoDeleted
	}
}

// Fixed system-record positions, §6: "Infimum at fixed offset 99;
// supremum at 112".
const (
	InfimumOffset  = 99 - HeaderSize  // body-relative
	SupremumOffset = 112 - HeaderSize // body-relative
)

var infimumBytes = []byte("infimum\x00")
var supremumBytes = []byte("supremum")

// WriteSystemRecords stamps the infimum/supremum pseudo-records that
// bound every index page's user records, per §3.
func WriteSystemRecords(p *Page) {
	body := p.Body()
	infHdr := RecHeader{Status: StatusInfimum, HeapNo: 0}
	infHdr.Encode(body[InfimumOffset-RecHeaderSize:])
	copy(body[InfimumOffset:], infimumBytes)

	supHdr := RecHeader{Status: StatusSupremum, HeapNo: 1}
	supHdr.Encode(body[SupremumOffset-RecHeaderSize:])
	copy(body[SupremumOffset:], supremumBytes)
}
