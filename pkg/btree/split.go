package btree

import (
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// splitPage divides merged (f's entries, delete-marked ones included,
// plus the one record that overflowed it) in half, writing the lower half back to a left page and
// the upper half to a freshly allocated right page, then relinks the
// leaf-level sibling chain around the new page. It returns both frames
// (growRoot needs leftFrame's page number when f is the root) and the
// separator key the caller must propagate into f's parent.
//
// When f is not the root, the left half stays on f's own page number, so
// every existing pointer into f from its parent and left sibling remains
// valid without further bookkeeping. When f is the root, both halves move
// to freshly allocated pages and f's page number is left for growRoot to
// repurpose as a new, taller root -- the root's page number must never
// change, since it is the tree's only externally-recorded entry point.
func (t *Tree) splitPage(m *mtr.Mtr, f *buffer.Frame, merged []entry, isRoot bool) (leftFrame, rightFrame *buffer.Frame, sepKey []byte, err error) {
	level := f.Page.Index().Level()
	mid := len(merged) / 2
	if mid == 0 {
		mid = 1
	}
	leftEntries, rightEntries := merged[:mid], merged[mid:]
	sepKey = append([]byte(nil), rightEntries[0].key...)

	rightFrame, err = t.allocLivePage(m, level)
	if err != nil {
		return nil, nil, nil, err
	}

	oldPrev, oldNext := f.Page.PrevPage(), f.Page.NextPage()
	if isRoot {
		leftFrame, err = t.allocLivePage(m, level)
		if err != nil {
			return nil, nil, nil, err
		}
		oldPrev, oldNext = page.NilPageNo, page.NilPageNo
	} else {
		leftFrame = f
	}

	leftHeap := leftFrame.Page.Index().NHeap()
	rightHeap := rightFrame.Page.Index().NHeap()
	m.WriteBytes(leftFrame, 0, buildBody(t.spaceID, leftFrame.ID().PageNo, t.indexID, level, leftEntries, leftHeap))
	m.WriteBytes(rightFrame, 0, buildBody(t.spaceID, rightFrame.ID().PageNo, t.indexID, level, rightEntries, rightHeap))

	if err := t.relink(m, leftFrame, rightFrame, level, isRoot, oldPrev, oldNext); err != nil {
		return nil, nil, nil, err
	}
	return leftFrame, rightFrame, sepKey, nil
}

// relink threads rightFrame into leftFrame's place in the level-wide
// sibling chain. Only leaf-level chains are actually walked by cursors in
// this engine, but keeping internal levels linked too costs nothing extra
// here and leaves the door open for a future top-down range-scan
// optimization that skips re-descending from the root.
func (t *Tree) relink(m *mtr.Mtr, leftFrame, rightFrame *buffer.Frame, level uint16, isRoot bool, oldPrev, oldNext uint32) error {
	if isRoot {
		m.SetSiblings(leftFrame, page.NilPageNo, rightFrame.ID().PageNo)
		m.SetSiblings(rightFrame, leftFrame.ID().PageNo, page.NilPageNo)
		return nil
	}
	m.SetSiblings(leftFrame, oldPrev, rightFrame.ID().PageNo)
	m.SetSiblings(rightFrame, leftFrame.ID().PageNo, oldNext)
	if oldNext != page.NilPageNo {
		nextFrame, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: oldNext}, latch.XLatch)
		if err != nil {
			return err
		}
		m.SetSiblings(nextFrame, rightFrame.ID().PageNo, nextFrame.Page.NextPage())
	}
	return nil
}

// growRoot rebuilds the tree's stable root page as a fresh internal page
// one level above oldLevel, containing exactly two node-pointer records
// that route to leftFrame and rightFrame. firstKeyOf(leftFrame) becomes
// the left entry's separator: it need not be the tree's true global
// minimum key for correctness, only a value findChildIndex will compare
// <= to every key actually routed through the left subtree, which the
// subtree's own smallest live key always satisfies.
func (t *Tree) growRoot(m *mtr.Mtr, rootFrame, leftFrame, rightFrame *buffer.Frame, sepKey []byte, oldLevel uint16) error {
	newLevel := oldLevel + 1
	leftKey := firstKeyOf(leftFrame.Page)
	entries := []entry{
		{key: leftKey, value: encodeChildPtr(leftFrame.ID().PageNo)},
		{key: sepKey, value: encodeChildPtr(rightFrame.ID().PageNo)},
	}
	body := buildBody(t.spaceID, rootFrame.ID().PageNo, t.indexID, newLevel, entries, 2)
	m.WriteBytes(rootFrame, 0, body)
	m.SetSiblings(rootFrame, page.NilPageNo, page.NilPageNo)
	return nil
}

func firstKeyOf(p *page.Page) []byte {
	live := liveEntries(entriesOf(p))
	if len(live) == 0 {
		return nil
	}
	return live[0].key
}
