package row

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/btree"
	"github.com/xmysql-server/innodb-core/pkg/dict"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/lock"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/txn"
)

// Table binds one clustered-index B+ tree to the schema that interprets
// its leaf records and the lock/transaction managers its mutating
// operations must go through, implementing the insert/update/delete/
// read surface of §4.7 on top of pkg/btree, pkg/lock and pkg/txn.
//
// A mutating call acquires its record lock only after the physical
// change it protects is known to be possible to locate again (Update
// and Delete look the record up first and lock before mutating; Insert
// has no (pageNo, heapNo) to lock until the record exists, so it locks
// immediately after Tree.Insert returns). Tree.Insert holds the tree's
// own tree-wide mutex for the whole call, so no concurrent insert or
// delete can observe the new record during that short window -- only a
// concurrent Search could, and it would simply not find the row yet,
// same as if it had run a moment earlier.
type Table struct {
	tree    *btree.Tree
	schema  dict.Schema
	tableID uint64
	locks   *lock.Manager
	tm      *txn.Manager

	overflowSpace *fsp.Space
	overflowSeg   *fsp.Segment
}

// NewTable builds a Table over an already-open clustered index. overflowSpace
// and overflowSeg may be nil, in which case any tuple larger than
// inlineThreshold fails with enginerr.ErrInvalidInput instead of
// spilling off-page.
func NewTable(tree *btree.Tree, schema dict.Schema, tableID uint64, locks *lock.Manager, tm *txn.Manager, overflowSpace *fsp.Space, overflowSeg *fsp.Segment) *Table {
	return &Table{
		tree: tree, schema: schema, tableID: tableID, locks: locks, tm: tm,
		overflowSpace: overflowSpace, overflowSeg: overflowSeg,
	}
}

// Tree exposes the underlying clustered index, for pkg/engine to wire a
// prefetcher into or to read physical placement from when persisting
// dictionary metadata.
func (tbl *Table) Tree() *btree.Tree { return tbl.tree }

// Schema returns the row schema this table encodes against.
func (tbl *Table) Schema() dict.Schema { return tbl.schema }

func (tbl *Table) encodeRow(m *mtr.Mtr, values []interface{}) ([]byte, error) {
	tuple, err := EncodeTuple(tbl.schema, values)
	if err != nil {
		return nil, err
	}
	if len(tuple) <= inlineThreshold {
		return append([]byte{0}, tuple...), nil
	}
	if tbl.overflowSeg == nil {
		return nil, errors.Annotatef(enginerr.ErrInvalidInput, "row: tuple of %d bytes exceeds inline threshold and no overflow segment is configured", len(tuple))
	}
	desc, err := writeOverflow(m, tbl.overflowSpace, tbl.overflowSeg, tbl.tree.SpaceID(), tuple)
	if err != nil {
		return nil, err
	}
	return append([]byte{1}, desc...), nil
}

func (tbl *Table) decodeRow(m *mtr.Mtr, encoded []byte) ([]interface{}, error) {
	if len(encoded) == 0 {
		return nil, enginerr.ErrSchemaError
	}
	flag, rest := encoded[0], encoded[1:]
	var tuple []byte
	switch flag {
	case 0:
		tuple = rest
	case 1:
		raw, err := readOverflow(m, tbl.tree.SpaceID(), rest)
		if err != nil {
			return nil, err
		}
		tuple = raw
	default:
		return nil, enginerr.ErrSchemaError
	}
	return DecodeTuple(tbl.schema, tuple)
}

// Insert adds a new row, failing with enginerr.ErrDuplicateKey if its
// primary key already exists.
func (tbl *Table) Insert(trx *txn.Trx, m *mtr.Mtr, values []interface{}) error {
	tbl.tm.AssignID(trx)
	if err := tbl.locks.AcquireTable(trx.ID, tbl.tableID, lock.IX); err != nil {
		return err
	}
	if len(values) != len(tbl.schema.Columns) {
		return errors.Annotatef(enginerr.ErrSchemaError, "row: insert wants %d values, got %d", len(tbl.schema.Columns), len(values))
	}
	key, err := EncodeKey(tbl.schema, values[tbl.schema.PrimaryKey])
	if err != nil {
		return err
	}
	encoded, err := tbl.encodeRow(m, values)
	if err != nil {
		return err
	}
	blob := EncodeVersioned(trx.ID, txn.RollPtr{}, encoded)
	if err := tbl.tree.Insert(m, key, blob); err != nil {
		return err
	}

	_, pageNo, heapNo, found, err := tbl.tree.Search(m, key)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("row: inserted record vanished before its lock could be acquired")
	}
	res := lock.ResourceID{Space: tbl.tree.SpaceID(), Page: pageNo, HeapNo: heapNo}
	if err := tbl.locks.AcquireRecord(trx.ID, res, lock.TypeX, lock.RecNotGap); err != nil {
		return err
	}
	trx.AppendUndo(txn.OpInsert, tbl.tree.SpaceID(), pageNo, heapNo, nil, txn.RollPtr{})
	return nil
}

// Update replaces pkValue's row with newValues, which must carry the
// same primary key -- changing a row's clustered key is out of scope
// for this pass; callers needing that do a Delete followed by an
// Insert under the same transaction.
func (tbl *Table) Update(trx *txn.Trx, m *mtr.Mtr, pkValue interface{}, newValues []interface{}) error {
	tbl.tm.AssignID(trx)
	if err := tbl.locks.AcquireTable(trx.ID, tbl.tableID, lock.IX); err != nil {
		return err
	}
	if len(newValues) != len(tbl.schema.Columns) {
		return errors.Annotatef(enginerr.ErrSchemaError, "row: update wants %d values, got %d", len(tbl.schema.Columns), len(newValues))
	}
	key, err := EncodeKey(tbl.schema, pkValue)
	if err != nil {
		return err
	}
	if newKey, err := EncodeKey(tbl.schema, newValues[tbl.schema.PrimaryKey]); err != nil {
		return err
	} else if string(newKey) != string(key) {
		return errors.Annotate(enginerr.ErrInvalidInput, "row: update may not change the primary key")
	}

	oldBlob, pageNo, heapNo, found, err := tbl.tree.Search(m, key)
	if err != nil {
		return err
	}
	if !found {
		return enginerr.ErrRowNotFound
	}
	res := lock.ResourceID{Space: tbl.tree.SpaceID(), Page: pageNo, HeapNo: heapNo}
	if err := tbl.locks.AcquireRecord(trx.ID, res, lock.TypeX, lock.RecNotGap); err != nil {
		return err
	}

	_, oldRoll, _ := DecodeVersioned(oldBlob)
	encoded, err := tbl.encodeRow(m, newValues)
	if err != nil {
		return err
	}
	newRoll := trx.AppendUndo(txn.OpUpdate, tbl.tree.SpaceID(), pageNo, heapNo, oldBlob, oldRoll)
	newBlob := EncodeVersioned(trx.ID, newRoll, encoded)

	ok, err := tbl.tree.ReplaceValue(m, pageNo, heapNo, newBlob)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.ErrRowNotFound
	}
	return nil
}

// Delete removes pkValue's row, stamping its version header with the
// deleting transaction's id (so an older read view still resolves the
// pre-delete image via the undo chain, per §4.6) before delete-marking
// it. The record stays physically on the page until the purge worker
// reclaims it.
func (tbl *Table) Delete(trx *txn.Trx, m *mtr.Mtr, pkValue interface{}) error {
	tbl.tm.AssignID(trx)
	if err := tbl.locks.AcquireTable(trx.ID, tbl.tableID, lock.IX); err != nil {
		return err
	}
	key, err := EncodeKey(tbl.schema, pkValue)
	if err != nil {
		return err
	}

	oldBlob, pageNo, heapNo, found, err := tbl.tree.Search(m, key)
	if err != nil {
		return err
	}
	if !found {
		return enginerr.ErrRowNotFound
	}
	res := lock.ResourceID{Space: tbl.tree.SpaceID(), Page: pageNo, HeapNo: heapNo}
	if err := tbl.locks.AcquireRecord(trx.ID, res, lock.TypeX, lock.RecNotGap); err != nil {
		return err
	}

	_, oldRoll, encoded := DecodeVersioned(oldBlob)
	newRoll := trx.AppendUndo(txn.OpDelete, tbl.tree.SpaceID(), pageNo, heapNo, oldBlob, oldRoll)
	newBlob := EncodeVersioned(trx.ID, newRoll, encoded)
	if _, err := tbl.tree.ReplaceValue(m, pageNo, heapNo, newBlob); err != nil {
		return err
	}

	_, _, ok, err := tbl.tree.Delete(m, key)
	if err != nil {
		return err
	}
	if !ok {
		return enginerr.ErrRowNotFound
	}
	return nil
}

// Read looks up pkValue, applying MVCC visibility under rv (nil skips
// MVCC entirely and returns the current row as-is, for engine-internal
// reads that don't need snapshot isolation). found is false if the row
// doesn't exist, or existed but isn't visible under rv.
func (tbl *Table) Read(rv *txn.ReadView, m *mtr.Mtr, pkValue interface{}) (values []interface{}, found bool, err error) {
	key, err := EncodeKey(tbl.schema, pkValue)
	if err != nil {
		return nil, false, err
	}
	blob, _, _, found, err := tbl.tree.Search(m, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return tbl.materialize(rv, m, blob)
}

// materialize applies MVCC visibility to one clustered-index record's
// raw value blob and decodes the visible version, shared by Read and
// Cursor's sequential scan.
func (tbl *Table) materialize(rv *txn.ReadView, m *mtr.Mtr, blob []byte) (values []interface{}, visible bool, err error) {
	trxID, roll, encoded := DecodeVersioned(blob)
	if rv == nil {
		values, err := tbl.decodeRow(m, encoded)
		return values, true, err
	}

	preImage, ok := txn.Resolve(rv, trxID, roll, tbl)
	if !ok {
		return nil, false, nil
	}
	if preImage == nil {
		values, err := tbl.decodeRow(m, encoded)
		return values, true, err
	}
	_, _, oldEncoded := DecodeVersioned(preImage)
	values, err = tbl.decodeRow(m, oldEncoded)
	return values, true, err
}

// VersionTrxID implements txn.VersionResolver: the version roll addresses
// is the pre-image held in that undo entry, and the transaction that
// produced it is the trx-id stamped in the pre-image's own version header
// (roll.TrxID names the transaction that overwrote it).
func (tbl *Table) VersionTrxID(roll txn.RollPtr) (uint64, bool) {
	preImage, _, ok := tbl.VersionPreImage(roll)
	if !ok || len(preImage) < versionHeaderLen {
		return 0, false
	}
	trxID, _, _ := DecodeVersioned(preImage)
	return trxID, true
}

// VersionPreImage implements txn.VersionResolver by chasing roll into
// the owning transaction's own undo chain, whether that transaction is
// still active or has committed and is merely awaiting purge.
func (tbl *Table) VersionPreImage(roll txn.RollPtr) ([]byte, txn.RollPtr, bool) {
	t, ok := tbl.tm.ByID(roll.TrxID)
	if !ok {
		return nil, txn.RollPtr{}, false
	}
	e, ok := t.Lookup(roll.Seq)
	if !ok {
		return nil, txn.RollPtr{}, false
	}
	return e.PreImage, e.PrevRoll, true
}

// ApplyUndo implements txn.RollbackApplier, reversing one undo entry
// against this table's clustered index.
func (tbl *Table) ApplyUndo(m *mtr.Mtr, e txn.UndoEntry) error {
	switch e.Op {
	case txn.OpInsert:
		return tbl.tree.PurgeDeleted(e.SpaceID, e.PageNo, e.HeapNo)
	case txn.OpUpdate:
		_, err := tbl.tree.ReplaceValue(m, e.PageNo, e.HeapNo, e.PreImage)
		return err
	case txn.OpDelete:
		if _, err := tbl.tree.ReplaceValue(m, e.PageNo, e.HeapNo, e.PreImage); err != nil {
			return err
		}
		_, err := tbl.tree.SetDeleteMark(m, e.PageNo, e.HeapNo, false)
		return err
	default:
		return fmt.Errorf("row: unknown undo op %v", e.Op)
	}
}

// PurgeDeleted implements txn.PhysicalPurger, delegating straight to
// the clustered index once no read view can still need the pre-delete
// version.
func (tbl *Table) PurgeDeleted(spaceID, pageNo uint32, heapNo uint16) error {
	return tbl.tree.PurgeDeleted(spaceID, pageNo, heapNo)
}
