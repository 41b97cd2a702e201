package btree

import (
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// rebuildAt locates the live-or-deleted record at heapNo on (pageNo),
// applies mutate to its decoded entry, and rewrites the whole page body
// through m, the same whole-page logging buildBody uses elsewhere in
// this package. found is false if heapNo no longer exists on the page
// (already purged, or moved by a since-happened split).
func (t *Tree) rebuildAt(m *mtr.Mtr, pageNo uint32, heapNo uint16, mutate func(*entry)) (found bool, err error) {
	f, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, latch.XLatch)
	if err != nil {
		return false, errors.Annotate(err, "btree: rebuildAt get page")
	}

	raw := entriesOf(f.Page)
	pos := -1
	for i, r := range raw {
		if r.header.HeapNo == heapNo {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false, nil
	}

	entries := make([]entry, len(raw))
	for i, r := range raw {
		entries[i] = r.entry
	}
	mutate(&entries[pos])

	level := f.Page.Index().Level()
	nextHeap := f.Page.Index().NHeap()
	body := buildBody(t.spaceID, pageNo, t.indexID, level, entries, nextHeap)
	m.WriteBytes(f, 0, body)
	return true, nil
}

// SetDeleteMark sets or clears a record's delete-mark bit in place
// without touching its key or value, used by pkg/row to undo a Delete
// on rollback (deleted=false) — Tree.Delete itself already covers the
// forward direction.
func (t *Tree) SetDeleteMark(m *mtr.Mtr, pageNo uint32, heapNo uint16, deleted bool) (found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rebuildAt(m, pageNo, heapNo, func(e *entry) { e.deleted = deleted })
}

// ReplaceValue overwrites a record's value bytes in place, leaving its
// key and delete-mark untouched, used by pkg/row to restore a prior row
// version over the current one on rollback of an update.
func (t *Tree) ReplaceValue(m *mtr.Mtr, pageNo uint32, heapNo uint16, newValue []byte) (found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rebuildAt(m, pageNo, heapNo, func(e *entry) { e.value = newValue })
}
