package engine

import (
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/row"
	"github.com/xmysql-server/innodb-core/pkg/txn"
)

// MatchMode selects how CursorSearch interprets its key argument, per
// §6's "cursor_search(key, match-mode)".
type MatchMode int

const (
	// MatchEQ requires an exact primary-key match.
	MatchEQ MatchMode = iota
	// MatchGE positions at the first key greater than or equal to the
	// search key, for a range scan's opening bound.
	MatchGE
)

// Cursor is the §6 cursor handle: a positioned, MVCC-aware scan over
// one table's clustered index under one transaction. It holds no page
// latch between calls -- every method starts and either commits or
// discards its own short-lived Mtr, the same discipline pkg/row.Cursor
// and pkg/btree.Cursor already follow.
type Cursor struct {
	e   *Engine
	tbl *row.Table
	trx *txn.Trx
	rc  *row.Cursor

	positioned bool
	lastPK     interface{}
}

// CursorOpen implements §6's cursor_open(index-id, tx) -> csr. The
// dictionary entry behind indexID supplies the column list, key
// definition and root page-no pkg/row.Table was built from at Open or
// CreateTable time; this call only needs indexID to look that table
// back up.
func (e *Engine) CursorOpen(indexID uint64, tx *Tx) (*Cursor, error) {
	e.mu.Lock()
	tbl, ok := e.tables[indexID]
	e.mu.Unlock()
	if !ok {
		return nil, errors.Annotatef(enginerr.ErrSchemaError, "engine: no index %d", indexID)
	}
	return &Cursor{e: e, tbl: tbl, trx: tx, rc: tbl.NewCursor()}, nil
}

// CursorClose implements §6's cursor_close. A cursor holds no
// between-call state beyond its last position, so closing it is just
// making it unusable; pkg/row.Cursor and the Mtrs it used underneath
// are already fully released by the time any call returns.
func (c *Cursor) CursorClose() {
	c.tbl = nil
	c.rc = nil
	c.positioned = false
}

func (c *Cursor) startMtr() *mtr.Mtr { return mtr.Start(c.e.pool, c.e.log, c.trx.ID) }

func (c *Cursor) readView() *txn.ReadView { return c.trx.ReadView }

func (c *Cursor) setPosition(values []interface{}) {
	c.positioned = true
	c.lastPK = values[c.tbl.Schema().PrimaryKey]
}

// CursorSearch implements §6's cursor_search(key, match-mode).
func (c *Cursor) CursorSearch(key interface{}, mode MatchMode) (values []interface{}, found bool, err error) {
	m := c.startMtr()
	defer m.Discard()

	if mode == MatchEQ {
		values, found, err = c.tbl.Read(c.readView(), m, key)
		if found {
			c.setPosition(values)
		}
		return values, found, err
	}

	if err := c.rc.Seek(m, key); err != nil {
		return nil, false, err
	}
	values, found, err = c.rc.Next(c.readView(), m)
	if err != nil {
		return nil, false, err
	}
	if found {
		c.setPosition(values)
	}
	return values, found, nil
}

// CursorFirst implements §6's cursor_first: position at and return the
// smallest key in the index.
func (c *Cursor) CursorFirst() (values []interface{}, found bool, err error) {
	m := c.startMtr()
	defer m.Discard()
	if err := c.rc.First(m); err != nil {
		return nil, false, err
	}
	values, found, err = c.rc.Next(c.readView(), m)
	if err == nil && found {
		c.setPosition(values)
	}
	return values, found, err
}

// CursorLast implements §6's cursor_last: position at and return the
// largest key in the index.
func (c *Cursor) CursorLast() (values []interface{}, found bool, err error) {
	m := c.startMtr()
	defer m.Discard()
	if err := c.rc.Last(m); err != nil {
		return nil, false, err
	}
	values, found, err = c.rc.Prev(c.readView(), m)
	if err == nil && found {
		c.setPosition(values)
	}
	return values, found, err
}

// CursorNext implements §6's cursor_next.
func (c *Cursor) CursorNext() (values []interface{}, found bool, err error) {
	m := c.startMtr()
	defer m.Discard()
	values, found, err = c.rc.Next(c.readView(), m)
	if err == nil && found {
		c.setPosition(values)
	}
	return values, found, err
}

// CursorPrev implements §6's cursor_prev.
func (c *Cursor) CursorPrev() (values []interface{}, found bool, err error) {
	m := c.startMtr()
	defer m.Discard()
	values, found, err = c.rc.Prev(c.readView(), m)
	if err == nil && found {
		c.setPosition(values)
	}
	return values, found, err
}

// CursorRead implements §6's cursor_read(tuple-out): re-reads the row
// at the cursor's current position under the transaction's own read
// view, without moving it. enginerr.ErrInvalidInput if the cursor
// isn't positioned on a row yet.
func (c *Cursor) CursorRead() (values []interface{}, err error) {
	if !c.positioned {
		return nil, errors.Annotate(enginerr.ErrInvalidInput, "engine: cursor not positioned")
	}
	m := c.startMtr()
	defer m.Discard()
	values, found, err := c.tbl.Read(c.readView(), m, c.lastPK)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, enginerr.ErrRowNotFound
	}
	return values, nil
}

// CursorInsert implements §6's cursor_insert(tuple).
func (c *Cursor) CursorInsert(tuple []interface{}) error {
	m := c.startMtr()
	if err := c.tbl.Insert(c.trx, m, tuple); err != nil {
		m.Discard()
		return err
	}
	if _, _, err := m.Commit(); err != nil {
		return err
	}
	c.setPosition(tuple)
	return nil
}

// CursorUpdate implements §6's cursor_update(old-tuple, new-tuple): the
// primary-key column of oldTuple identifies the row; newTuple replaces
// it and must carry the same key, per pkg/row.Table.Update.
func (c *Cursor) CursorUpdate(oldTuple, newTuple []interface{}) error {
	pk := oldTuple[c.tbl.Schema().PrimaryKey]
	m := c.startMtr()
	if err := c.tbl.Update(c.trx, m, pk, newTuple); err != nil {
		m.Discard()
		return err
	}
	if _, _, err := m.Commit(); err != nil {
		return err
	}
	c.setPosition(newTuple)
	return nil
}

// CursorDelete implements §6's cursor_delete(): removes the row at the
// cursor's current position.
func (c *Cursor) CursorDelete() error {
	if !c.positioned {
		return errors.Annotate(enginerr.ErrInvalidInput, "engine: cursor not positioned")
	}
	m := c.startMtr()
	if err := c.tbl.Delete(c.trx, m, c.lastPK); err != nil {
		m.Discard()
		return err
	}
	if _, _, err := m.Commit(); err != nil {
		return err
	}
	c.positioned = false
	return nil
}
