package engine

import "github.com/xmysql-server/innodb-core/pkg/txn"

// Tx is the §6 tx handle, a thin alias kept so callers outside this
// package never need to import pkg/txn directly.
type Tx = txn.Trx

// Isolation re-exports pkg/txn's isolation levels under the engine's
// own name, per §6 "tx_begin(isolation)".
type Isolation = txn.Isolation

const (
	ReadUncommitted = txn.ReadUncommitted
	ReadCommitted   = txn.ReadCommitted
	RepeatableRead  = txn.RepeatableRead
	Serializable    = txn.Serializable
)

// Begin implements §6's tx_begin(isolation) -> tx.
func (e *Engine) Begin(isolation Isolation) *Tx {
	return e.tm.Begin(isolation, false)
}

// BeginReadOnly begins a read-only transaction: it takes a snapshot
// but never acquires a trx-id or writes undo while it only reads, so
// Commit/Rollback only set its final state.
func (e *Engine) BeginReadOnly(isolation Isolation) *Tx {
	return e.tm.Begin(isolation, true)
}

// Commit implements §6's tx_commit(tx) -> ok|fail.
func (e *Engine) Commit(tx *Tx) error {
	return e.tm.Commit(tx)
}

// Rollback implements §6's tx_rollback(tx).
func (e *Engine) Rollback(tx *Tx) error {
	return e.tm.Rollback(tx)
}
