package row

import (
	"github.com/xmysql-server/innodb-core/pkg/btree"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/txn"
)

// Cursor is a sequential, MVCC-aware scan over a table's clustered
// index, the collaborator pkg/engine's cursor_first/last/next/prev/
// search/read surface is built on. Like the pkg/btree.Cursor it wraps,
// it holds no page latch between calls -- every positioning or stepping
// call takes its own short-lived Mtr.
type Cursor struct {
	tbl *Table
	bc  *btree.Cursor
}

// NewCursor opens a cursor over tbl, unpositioned until First, Last or
// Seek is called.
func (tbl *Table) NewCursor() *Cursor { return &Cursor{tbl: tbl} }

// First positions the cursor before the smallest key.
func (c *Cursor) First(m *mtr.Mtr) error {
	bc, err := c.tbl.tree.SeekFirst(m)
	if err != nil {
		return err
	}
	c.bc = bc
	return nil
}

// Last positions the cursor at the largest key, ready for a Prev scan.
func (c *Cursor) Last(m *mtr.Mtr) error {
	bc, err := c.tbl.tree.SeekLast(m)
	if err != nil {
		return err
	}
	c.bc = bc
	return nil
}

// Seek positions the cursor at the first key >= pkValue.
func (c *Cursor) Seek(m *mtr.Mtr, pkValue interface{}) error {
	key, err := EncodeKey(c.tbl.schema, pkValue)
	if err != nil {
		return err
	}
	bc, err := c.tbl.tree.Seek(m, key)
	if err != nil {
		return err
	}
	c.bc = bc
	return nil
}

// Next advances the cursor and returns the next row visible under rv
// (nil skips MVCC), skipping over versions the view can't see rather
// than stopping at them. ok is false once the scan is exhausted.
func (c *Cursor) Next(rv *txn.ReadView, m *mtr.Mtr) (values []interface{}, ok bool, err error) {
	for {
		_, blob, more, err := c.bc.Next(m)
		if err != nil || !more {
			return nil, false, err
		}
		values, visible, err := c.tbl.materialize(rv, m, blob)
		if err != nil {
			return nil, false, err
		}
		if visible {
			return values, true, nil
		}
	}
}

// Prev steps the cursor backward, the mirror of Next.
func (c *Cursor) Prev(rv *txn.ReadView, m *mtr.Mtr) (values []interface{}, ok bool, err error) {
	for {
		_, blob, more, err := c.bc.Prev(m)
		if err != nil || !more {
			return nil, false, err
		}
		values, visible, err := c.tbl.materialize(rv, m, blob)
		if err != nil {
			return nil, false, err
		}
		if visible {
			return values, true, nil
		}
	}
}
