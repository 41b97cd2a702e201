// Package txn implements the transaction manager, undo log, MVCC read
// views, and purge worker of §4.6. Grounded on the teacher's
// server/innodb/manager/transaction_manager.go (trx lifecycle, state
// machine, read-view creation) and undo_log_manager.go (per-transaction
// undo chains, newest-first rollback, activeTxns/oldestTxnTime
// bookkeeping that becomes the purge worker's
// oldest_active_read_view_limit here).
package txn

import "time"

// State is a transaction's lifecycle state, per §4.6 and the teacher's
// TRX_STATE_* constants, adding COMMITTED_IN_MEMORY to distinguish
// "commit marker appended, log not yet flushed" (locks are released
// while in this state) from a fully retired transaction.
type State uint8

const (
	StateActive State = iota
	StateCommittedInMemory
	StateCommitted
	StateRolledBack
)

// Isolation is the transaction's isolation level, per §4.6 "begin
// (isolation)".
type Isolation uint8

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

// Trx is one transaction. ID is 0 until the first write, per §4.6
// "First write -> assign trx-id from global counter" -- a read-only
// transaction never takes one.
type Trx struct {
	ID        uint64
	State     State
	Isolation Isolation
	ReadOnly  bool

	StartedAt    time.Time
	LastActiveAt time.Time

	ReadView *ReadView // nil until first created, per isolation rules

	undoHead *undoRecord // newest-first singly-linked undo chain
	undoLen  int

	rollbackSegID int
}

// RollPtr addresses one undo record for a clustered-index record's
// roll-ptr field, per §4.6 "the new record's roll-ptr points to that
// undo record".
type RollPtr struct {
	TrxID uint64
	Seq   uint64 // position in the transaction's undo chain, newest highest
}

func (r RollPtr) IsNil() bool { return r.TrxID == 0 && r.Seq == 0 }

// UndoSize reports the transaction's undo chain length, the weight
// estimate pkg/lock's deadlock victim selection uses per §4.5 ("weight
// ... estimated by undo log size").
func (t *Trx) UndoSize() uint64 { return uint64(t.undoLen) }
