package txn

// OpType tags the logical operation an undo record reverses, per §4.6
// "undo writing ... every mutation of a clustered-index record".
type OpType uint8

const (
	OpInsert OpType = iota // inverse: delete the inserted record
	OpUpdate                // inverse: restore PreImage over the current row
	OpDelete                // inverse: restore PreImage and clear the delete-mark
)

// undoRecord is one entry in a transaction's undo chain: the pre-image
// of a clustered-index record before this transaction's mutation,
// linked to the previous version via PrevRollPtr so MVCC can walk
// arbitrarily far back, per §4.6 "old roll-ptr is preserved inside the
// undo record forming a linked version chain".
type undoRecord struct {
	seq      uint64
	op       OpType
	spaceID  uint32
	pageNo   uint32
	heapNo   uint16
	preImage []byte // the record's value bytes before this transaction's change
	prevRoll RollPtr
	next     *undoRecord // older entry in this transaction's own chain
}

// AppendUndo captures a mutation's pre-image and returns the roll-ptr
// the new clustered-index record version should store, per §4.6 "the
// new record's roll-ptr points to that undo record".
func (t *Trx) AppendUndo(op OpType, spaceID, pageNo uint32, heapNo uint16, preImage []byte, prevRoll RollPtr) RollPtr {
	t.undoLen++
	rec := &undoRecord{
		seq: uint64(t.undoLen), op: op,
		spaceID: spaceID, pageNo: pageNo, heapNo: heapNo,
		preImage: preImage, prevRoll: prevRoll, next: t.undoHead,
	}
	t.undoHead = rec
	return RollPtr{TrxID: t.ID, Seq: rec.seq}
}

// UndoEntry is the read-only view of one undo record, returned by
// walking a chain (this transaction's own, during rollback, or another
// transaction's version chain, during MVCC reconstruction).
type UndoEntry struct {
	Op        OpType
	SpaceID   uint32
	PageNo    uint32
	HeapNo    uint16
	PreImage  []byte
	PrevRoll  RollPtr
}

// Walk invokes fn for each undo record newest-first, stopping if fn
// returns false, per §4.6 "walk undo log newest-first". Rollback and
// purge use it; MVCC reconstruction looks entries up one at a time with
// Lookup instead.
func (t *Trx) Walk(fn func(UndoEntry) bool) {
	for r := t.undoHead; r != nil; r = r.next {
		keepGoing := fn(UndoEntry{
			Op: r.op, SpaceID: r.spaceID, PageNo: r.pageNo, HeapNo: r.heapNo,
			PreImage: r.preImage, PrevRoll: r.prevRoll,
		})
		if !keepGoing {
			return
		}
	}
}

// Lookup resolves a specific roll-ptr within this transaction's own
// chain, used by MVCC reconstruction chasing a record's roll-ptr field
// back to the version it was overwritten from.
func (t *Trx) Lookup(seq uint64) (UndoEntry, bool) {
	for r := t.undoHead; r != nil; r = r.next {
		if r.seq == seq {
			return UndoEntry{
				Op: r.op, SpaceID: r.spaceID, PageNo: r.pageNo, HeapNo: r.heapNo,
				PreImage: r.preImage, PrevRoll: r.prevRoll,
			}, true
		}
	}
	return UndoEntry{}, false
}
