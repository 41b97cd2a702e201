// Grounded on the teacher's storage/store/mvcc/read_view.go: a read
// view snapshots the set of transactions active at creation time and
// classifies any other transaction id as visible or not visible
// relative to that snapshot, per §4.6.
package txn

// ReadView is a snapshot of in-flight transactions at creation time,
// used to decide which version of a clustered-index record a
// transaction may see.
type ReadView struct {
	activeIDs    map[uint64]bool // transactions active when this view was taken
	upLimit      uint64          // smallest active trx id at snapshot time
	lowLimit     uint64          // next trx id to be assigned at snapshot time
	creatorTrxID uint64
}

// NewReadView builds a read view from the set of transactions active
// at snapshot time (activeIDs), the next id the system will hand out
// (nextTrxID), and the id of the transaction creating the view.
func NewReadView(activeIDs []uint64, nextTrxID, creatorTrxID uint64) *ReadView {
	set := make(map[uint64]bool, len(activeIDs))
	upLimit := nextTrxID
	for _, id := range activeIDs {
		set[id] = true
		if id < upLimit {
			upLimit = id
		}
	}
	return &ReadView{activeIDs: set, upLimit: upLimit, lowLimit: nextTrxID, creatorTrxID: creatorTrxID}
}

// IsVisible reports whether a record version stamped with trxID is
// visible under this read view, per §4.6:
//   - the view's own creator always sees its own writes
//   - a version stamped below the view's up-limit predates every
//     transaction active at snapshot time and is always visible
//   - a version stamped at or above the view's low-limit was created
//     by a transaction that didn't exist yet and is never visible
//   - otherwise the version is visible unless its trx id was one of
//     the transactions still active when the view was taken
func (rv *ReadView) IsVisible(trxID uint64) bool {
	if trxID == rv.creatorTrxID {
		return true
	}
	if trxID < rv.upLimit {
		return true
	}
	if trxID >= rv.lowLimit {
		return false
	}
	return !rv.activeIDs[trxID]
}

func (rv *ReadView) UpLimit() uint64      { return rv.upLimit }
func (rv *ReadView) LowLimit() uint64     { return rv.lowLimit }
func (rv *ReadView) CreatorTrxID() uint64 { return rv.creatorTrxID }

// VersionResolver looks up the transaction that produced a given
// clustered-index record version and the roll-ptr to its prior
// version, bridging ReadView to pkg/row's record chains.
type VersionResolver interface {
	VersionTrxID(roll RollPtr) (trxID uint64, ok bool)
	VersionPreImage(roll RollPtr) ([]byte, prevRoll RollPtr, ok bool)
}

// Resolve walks roll-ptrs starting from (trxID, roll) until it finds a
// version visible under rv, per §4.6 "MVCC read. Given a
// clustered-index record and a read view: if record.trx-id is visible,
// return it. Otherwise follow roll-ptr through undo chain...". It
// returns the pre-image bytes of the first visible version found, or
// ok=false if the chain is exhausted (the row did not exist under this
// view).
func Resolve(rv *ReadView, trxID uint64, roll RollPtr, vr VersionResolver) (preImage []byte, ok bool) {
	if rv.IsVisible(trxID) {
		return nil, true // caller's current row image is already visible
	}
	for !roll.IsNil() {
		image, prevRoll, found := vr.VersionPreImage(roll)
		if !found {
			return nil, false
		}
		ownerTrxID, _ := vr.VersionTrxID(roll)
		if rv.IsVisible(ownerTrxID) {
			return image, true
		}
		roll = prevRoll
	}
	return nil, false
}
