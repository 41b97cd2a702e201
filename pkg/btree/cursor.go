package btree

import (
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// Cursor walks a tree's leaf level in ascending key order via the
// NextPage sibling chain splitPage maintains, the §4.4 range-scan
// primitive. It is not safe for concurrent use and holds no latch
// between calls to Next -- each call takes its own short-lived S-latch
// through m, so a long scan never blocks a concurrent Insert/Delete for
// longer than one page fetch.
type Cursor struct {
	t        *Tree
	entries  []entry
	idx      int
	nextPage uint32
	prevPage uint32
}

// SeekFirst positions a cursor at the smallest key in the tree.
func (t *Tree) SeekFirst(m *mtr.Mtr) (*Cursor, error) {
	pageNo := t.rootPageNo
	for {
		f, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, latch.SLatch)
		if err != nil {
			return nil, errors.Annotate(err, "btree: seek-first")
		}
		h := f.Page.Index()
		entries := liveEntries(entriesOf(f.Page))
		if h.IsLeaf() {
			return &Cursor{t: t, entries: entries, nextPage: f.Page.NextPage(), prevPage: f.Page.PrevPage()}, nil
		}
		if len(entries) == 0 {
			return nil, errors.New("btree: internal page has no children")
		}
		pageNo = decodeChildPtr(entries[0].value)
	}
}

// SeekLast positions a cursor at the largest key in the tree, descending
// via each internal level's rightmost child the way SeekFirst descends
// via the leftmost.
func (t *Tree) SeekLast(m *mtr.Mtr) (*Cursor, error) {
	pageNo := t.rootPageNo
	for {
		f, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, latch.SLatch)
		if err != nil {
			return nil, errors.Annotate(err, "btree: seek-last")
		}
		h := f.Page.Index()
		entries := liveEntries(entriesOf(f.Page))
		if h.IsLeaf() {
			return &Cursor{
				t: t, entries: entries, idx: len(entries) - 1,
				nextPage: f.Page.NextPage(), prevPage: f.Page.PrevPage(),
			}, nil
		}
		if len(entries) == 0 {
			return nil, errors.New("btree: internal page has no children")
		}
		pageNo = decodeChildPtr(entries[len(entries)-1].value)
	}
}

// Seek positions a cursor at the first live key >= key.
func (t *Tree) Seek(m *mtr.Mtr, key []byte) (*Cursor, error) {
	path, err := t.descend(m, key, latch.SLatch)
	if err != nil {
		return nil, errors.Annotate(err, "btree: seek")
	}
	leaf := path[len(path)-1]
	entries := liveEntries(entriesOf(leaf.Page))
	pos, _ := findInsertPos(entries, key, t.cmp)
	return &Cursor{t: t, entries: entries, idx: pos, nextPage: leaf.Page.NextPage(), prevPage: leaf.Page.PrevPage()}, nil
}

// Next returns the cursor's current (key, value) and advances it,
// crossing into the next leaf via the sibling chain as needed. ok is
// false once the scan has exhausted the tree.
func (c *Cursor) Next(m *mtr.Mtr) (key, value []byte, ok bool, err error) {
	for c.idx >= len(c.entries) {
		if c.nextPage == page.NilPageNo {
			return nil, nil, false, nil
		}
		f, ferr := m.GetPage(page.ID{Space: c.t.spaceID, PageNo: c.nextPage}, latch.SLatch)
		if ferr != nil {
			return nil, nil, false, errors.Annotate(ferr, "btree: cursor next")
		}
		c.entries = liveEntries(entriesOf(f.Page))
		c.idx = 0
		c.nextPage = f.Page.NextPage()
		c.prevPage = f.Page.PrevPage()
		if c.t.prefetch != nil {
			c.t.prefetch.Ahead(page.ID{Space: c.t.spaceID, PageNo: c.nextPage})
		}
	}
	e := c.entries[c.idx]
	c.idx++
	return e.key, e.value, true, nil
}

// Prev returns the cursor's current (key, value) and steps it backward,
// crossing into the previous leaf via the PrevPage sibling chain as
// needed. ok is false once the scan has been exhausted in this
// direction.
func (c *Cursor) Prev(m *mtr.Mtr) (key, value []byte, ok bool, err error) {
	for c.idx < 0 {
		if c.prevPage == page.NilPageNo {
			return nil, nil, false, nil
		}
		f, ferr := m.GetPage(page.ID{Space: c.t.spaceID, PageNo: c.prevPage}, latch.SLatch)
		if ferr != nil {
			return nil, nil, false, errors.Annotate(ferr, "btree: cursor prev")
		}
		c.entries = liveEntries(entriesOf(f.Page))
		c.idx = len(c.entries) - 1
		c.nextPage = f.Page.NextPage()
		c.prevPage = f.Page.PrevPage()
	}
	e := c.entries[c.idx]
	c.idx--
	return e.key, e.value, true, nil
}
