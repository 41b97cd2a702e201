// Package btree implements the B+ tree index of §4.4: latch-coupled
// search, split-on-overflow insert, delete-mark plus physical purge,
// and leaf-sibling range scans, all built directly on pkg/page's slotted
// page format and driven exclusively through pkg/mtr so every structural
// change is redo-logged.
//
// Grounded on the teacher's manager.EnhancedBTreeIndex for its public
// surface (page cache with reference counting, Insert/Delete/Search/
// RangeSearch, leaf-chain traversal via NextPage) and
// innodb_store/store/btree_add.go for the recursive split-and-propagate
// shape of insert. Both teacher sources stop short of a working split: the
// former fakes page allocation and child lookup, the latter's internalSplit/
// leafSplit never update a parent's separator key on the left half and
// leave BalancePage unimplemented. The actual split and insert
// algorithms here are written fresh against the page primitives pkg/page
// already provides, rather than adapted from either. Under-full pages
// are never merged with or rebalanced against a sibling: a purge only
// removes the record and rewrites its page, which may stay sparse.
package btree

import (
	"bytes"
	"encoding/binary"

	"github.com/xmysql-server/innodb-core/pkg/page"
)

// Comparator orders two keys the way the owning index (clustered or
// secondary) requires; pkg/dict supplies the concrete implementation once
// it knows the index's column types.
type Comparator func(a, b []byte) int

// BytesComparator is the default lexicographic ordering, used by tests
// and by any index whose key encoding already sorts byte-wise (the usual
// case once pkg/row has applied its own memcmp-friendly column encoding).
func BytesComparator(a, b []byte) int { return bytes.Compare(a, b) }

// entry is one decoded user record, independent of any page buffer.
//
// heapNo is the record's stable identity within its page: pkg/lock keys
// gap/record locks on (space, page, heapNo) and pkg/txn's physical purge
// addresses a delete-marked record the same way, so a heap number must
// survive every buildBody rebuild the record lives through rather than
// being recomputed from position each time. A zero heapNo is the
// "unassigned" sentinel used for a record not yet written to any page
// (infimum/supremum permanently own 0 and 1); buildBody assigns the next
// free number from its caller-supplied counter the first time it sees one.
type entry struct {
	key     []byte
	value   []byte // leaf: row payload; internal: 4-byte big-endian child page-no
	heapNo  uint16
	deleted bool
}

const recFixedOverhead = page.RecHeaderSize + 2 + 2 // header + keylen + vallen

func recordSize(key, value []byte) int {
	return recFixedOverhead + len(key) + len(value)
}

func encodeChildPtr(pageNo uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, pageNo)
	return buf
}

func decodeChildPtr(value []byte) uint32 {
	return binary.BigEndian.Uint32(value)
}

// encodeRecordAt writes one record's on-page bytes into buf, which must
// be exactly recordSize(key, value) long.
func encodeRecordAt(buf []byte, hdr page.RecHeader, key, value []byte) {
	hdr.Encode(buf)
	o := page.RecHeaderSize
	binary.BigEndian.PutUint16(buf[o:], uint16(len(key)))
	o += 2
	copy(buf[o:], key)
	o += len(key)
	binary.BigEndian.PutUint16(buf[o:], uint16(len(value)))
	o += 2
	copy(buf[o:], value)
}

// decodeRecordAt reads one record starting at a body-relative offset,
// returning its header, a copy of its key/value, and its total size.
func decodeRecordAt(body []byte, offset int) (hdr page.RecHeader, key, value []byte, size int) {
	hdr = page.DecodeRecHeader(body[offset:])
	o := offset + page.RecHeaderSize
	keyLen := int(binary.BigEndian.Uint16(body[o:]))
	o += 2
	key = append([]byte(nil), body[o:o+keyLen]...)
	o += keyLen
	valLen := int(binary.BigEndian.Uint16(body[o:]))
	o += 2
	value = append([]byte(nil), body[o:o+valLen]...)
	o += valLen
	size = o - offset
	return
}

// entriesOf walks the sorted singly-linked record chain from infimum to
// supremum, decoding every user record in chain (key) order.
// Delete-marked records are included so callers needing them (purge,
// rebuild-after-mark) can see them; Search/Cursor filter them out.
func entriesOf(p *page.Page) []rawEntry {
	body := p.Body()
	var out []rawEntry
	off := page.InfimumOffset
	for {
		hdr := page.DecodeRecHeader(body[off:])
		nextOff := off + int(hdr.Next)
		if nextOff == page.SupremumOffset || nextOff == off {
			break
		}
		h, key, value, _ := decodeRecordAt(body, nextOff)
		e := entry{key: key, value: value, heapNo: h.HeapNo, deleted: h.IsDeleted()}
		out = append(out, rawEntry{entry: e, header: h, offset: nextOff})
		off = nextOff
	}
	return out
}

// rawEntry is a decoded record plus the bookkeeping (header bits, page
// offset) callers need to locate it again without a second directory scan.
type rawEntry struct {
	entry
	header page.RecHeader
	offset int
}

func liveEntries(raw []rawEntry) []entry {
	out := make([]entry, 0, len(raw))
	for _, r := range raw {
		if !r.header.IsDeleted() {
			out = append(out, r.entry)
		}
	}
	return out
}

const bodyLen = page.Size - page.HeaderSize - page.TrailerSize

// dataBytesFor sums the physical record bytes entries would occupy; it
// excludes directory and header overhead, computed separately by fits.
func dataBytesFor(entries []entry) int {
	n := 0
	for _, e := range entries {
		n += recordSize(e.key, e.value)
	}
	return n
}

// fits reports whether entries (plus the always-present infimum/supremum
// slots) can be laid out in a single fresh page body.
func fits(entries []entry) bool {
	heapTop := page.SupremumOffset + 8 // len(supremumBytes)
	dirBytes := (len(entries) + 2) * 2
	return heapTop+dataBytesFor(entries)+dirBytes <= bodyLen
}

// buildBody serializes entries (already sorted ascending by key) into a
// freshly initialized index-page body for (spaceID, pageNo, indexID,
// level). The returned slice is exactly len(Page.Body()) long and is
// written into a live frame with a single mtr WriteBytes call so the
// whole rebuild becomes one redo record, a deliberate whole-page logging
// strategy in place of per-field physiological writes -- see DESIGN.md.
//
// nextHeapNo is the page's running heap-number counter (its previous
// Index().NHeap()): entries that already carry a heapNo (copied unchanged
// across a rebuild) keep it, and only entries with the unassigned
// sentinel (heapNo == 0) draw a fresh one, so a record's lock/purge
// identity survives inserts, deletes and splits on its page.
func buildBody(spaceID, pageNo uint32, indexID uint64, level uint16, entries []entry, nextHeapNo uint16) []byte {
	buf := make([]byte, page.Size)
	p := page.New(buf)
	page.InitIndexPage(p, spaceID, pageNo, indexID, level)

	dir := page.NewDirectory(p)
	body := p.Body()
	h := p.Index()

	heapTop := int(h.HeapTop())
	prevOff := page.InfimumOffset
	heapCounter := nextHeapNo
	if heapCounter < 2 {
		heapCounter = 2
	}
	for i, e := range entries {
		heapNo := e.heapNo
		if heapNo == 0 {
			heapNo = heapCounter
			heapCounter++
		} else if heapNo >= heapCounter {
			heapCounter = heapNo + 1
		}
		size := recordSize(e.key, e.value)
		hdr := page.RecHeader{Status: page.StatusOrdinary, HeapNo: heapNo}
		hdr.SetDeleted(e.deleted)
		encodeRecordAt(body[heapTop:heapTop+size], hdr, e.key, e.value)
		linkNext(body, prevOff, heapTop)
		dir.SetSlot(i+1, uint16(heapTop))
		prevOff = heapTop
		heapTop += size
	}
	linkNext(body, prevOff, page.SupremumOffset)
	dir.SetSlot(len(entries)+1, uint16(page.SupremumOffset))

	h.SetHeapTop(uint16(heapTop))
	h.SetNHeap(heapCounter)
	h.SetNRecs(uint16(len(entries)))
	h.SetNDirSlots(uint16(len(entries) + 2))
	return body
}

func linkNext(body []byte, fromOff, toOff int) {
	hdr := page.DecodeRecHeader(body[fromOff:])
	hdr.Next = int16(toOff - fromOff)
	hdr.Encode(body[fromOff:])
}

// findChildIndex returns the index into entries of the child pointer an
// internal page's search for key must follow: the rightmost entry whose
// key is <= target, or 0 if target is below every separator (the
// leftmost child covers everything not yet separated out).
func findChildIndex(entries []entry, key []byte, cmp Comparator) int {
	idx := 0
	for i, e := range entries {
		if cmp(e.key, key) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// findInsertPos returns the position key would occupy in sorted entries
// (insertion index), and whether an exact match already exists there.
func findInsertPos(entries []entry, key []byte, cmp Comparator) (pos int, exact bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(entries[mid].key, key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func mergeInsert(entries []entry, key, value []byte, cmp Comparator) []entry {
	pos, exact := findInsertPos(entries, key, cmp)
	out := make([]entry, 0, len(entries)+1)
	out = append(out, entries[:pos]...)
	out = append(out, entry{key: key, value: value})
	if exact {
		// overwrite: the existing entry with this key is replaced;
		// Insert rejects a live duplicate at the leaf level before it
		// gets here.
		out = append(out, entries[pos+1:]...)
	} else {
		out = append(out, entries[pos:]...)
	}
	return out
}

func removeAt(entries []entry, pos int) []entry {
	out := make([]entry, 0, len(entries)-1)
	out = append(out, entries[:pos]...)
	out = append(out, entries[pos+1:]...)
	return out
}
