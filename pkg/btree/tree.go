package btree

import (
	"sync"

	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

// Tree is one B+ tree index: a fixed root page number, two backing
// segments (leaf and non-leaf pages, per fsp's "every B+ tree owns two
// segments"), and the comparator its owning index defines.
//
// All structural mutation (Insert, Delete, PurgeDeleted) serializes
// through mu -- one writer at a time tree-wide, a coarser discipline than
// production InnoDB's per-level SX-latching but one that sidesteps the
// subtlety of concurrent split/merge without the ability to exercise it
// under a real scheduler (see DESIGN.md). Pure reads (Search, Seek,
// Cursor.Next) never take mu and rely only on per-page S-latches, so they
// still run fully concurrently with each other and are only blocked for
// the duration of whatever single page a writer currently holds.
type Tree struct {
	mu sync.Mutex

	pool    *buffer.Pool
	space   *fsp.Space
	log     *wal.Manager
	spaceID uint32
	indexID uint64
	cmp     Comparator

	leafSeg    *fsp.Segment
	nonLeafSeg *fsp.Segment
	rootPageNo uint32

	prefetch *buffer.Prefetcher
}

// SetPrefetcher attaches a background read-ahead hook used by Cursor
// during sequential leaf-chain scans; nil (the default) disables
// prefetching entirely.
func (t *Tree) SetPrefetcher(pf *buffer.Prefetcher) { t.prefetch = pf }

// Create allocates a brand-new, empty tree: two segments and a single
// leaf-level root page. log is used only by PurgeDeleted, which (as a
// pkg/txn.PhysicalPurger) is called outside any caller-supplied Mtr and
// so must open and commit its own.
func Create(pool *buffer.Pool, space *fsp.Space, log *wal.Manager, indexID uint64, cmp Comparator) (*Tree, error) {
	leafSeg, err := space.CreateSegment(fsp.SegTypeLeaf)
	if err != nil {
		return nil, errors.Annotate(err, "btree: create leaf segment")
	}
	nonLeafSeg, err := space.CreateSegment(fsp.SegTypeNonLeaf)
	if err != nil {
		return nil, errors.Annotate(err, "btree: create non-leaf segment")
	}
	t := &Tree{
		pool: pool, space: space, log: log, spaceID: space.ID, indexID: indexID, cmp: cmp,
		leafSeg: leafSeg, nonLeafSeg: nonLeafSeg,
	}
	rootNo, err := t.allocRawPage(leafSeg, 0)
	if err != nil {
		return nil, errors.Annotate(err, "btree: allocate root page")
	}
	t.rootPageNo = rootNo
	return t, nil
}

// Open reattaches to an existing tree whose root page and segments were
// previously persisted by pkg/dict's catalog.
func Open(pool *buffer.Pool, space *fsp.Space, log *wal.Manager, indexID uint64, rootPageNo uint32, leafSegID, nonLeafSegID uint64, cmp Comparator) (*Tree, error) {
	leafSeg, ok := space.Segment(leafSegID)
	if !ok {
		return nil, errors.Errorf("btree: leaf segment %d not found", leafSegID)
	}
	nonLeafSeg, ok := space.Segment(nonLeafSegID)
	if !ok {
		return nil, errors.Errorf("btree: non-leaf segment %d not found", nonLeafSegID)
	}
	return &Tree{
		pool: pool, space: space, log: log, spaceID: space.ID, indexID: indexID, cmp: cmp,
		leafSeg: leafSeg, nonLeafSeg: nonLeafSeg, rootPageNo: rootPageNo,
	}, nil
}

func (t *Tree) SpaceID() uint32         { return t.spaceID }
func (t *Tree) RootPageNo() uint32      { return t.rootPageNo }
func (t *Tree) IndexID() uint64         { return t.indexID }
func (t *Tree) LeafSegmentID() uint64   { return t.leafSeg.ID }
func (t *Tree) NonLeafSegmentID() uint64 { return t.nonLeafSeg.ID }

// allocRawPage hands out a fresh page from seg and stamps it directly to
// the tablespace file as an empty index page. This bypasses the mtr/redo
// path deliberately: the page has no prior content to recover, and
// buffer.Pool.Get requires every page it reads to pass Page.Verify, so a
// never-before-written page must already be a validly stamped one before
// the first Get brings it into the pool.
func (t *Tree) allocRawPage(seg *fsp.Segment, level uint16) (uint32, error) {
	pageNo, err := t.space.AllocatePageForSegment(seg)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, page.Size)
	p := page.New(buf)
	page.InitIndexPage(p, t.spaceID, pageNo, t.indexID, level)
	p.Stamp()
	if err := t.space.WritePage(pageNo, buf); err != nil {
		return 0, err
	}
	return pageNo, nil
}

func (t *Tree) allocLivePage(m *mtr.Mtr, level uint16) (*buffer.Frame, error) {
	seg := t.leafSeg
	if level > 0 {
		seg = t.nonLeafSeg
	}
	pageNo, err := t.allocRawPage(seg, level)
	if err != nil {
		return nil, err
	}
	return m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, latch.XLatch)
}

// descend latch-couples from the root to the leaf that must hold key,
// following the rightmost separator <= key at every internal level.
// Every frame visited is appended to path and stays latched for the
// duration of m (released together at m.Commit/Discard) rather than
// released eagerly level by level -- a simplification documented in
// DESIGN.md that trades concurrency for a much smaller surface to get
// wrong without the ability to run the result under a scheduler.
func (t *Tree) descend(m *mtr.Mtr, key []byte, mode latch.Mode) ([]*buffer.Frame, error) {
	var path []*buffer.Frame
	pageNo := t.rootPageNo
	for {
		f, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, mode)
		if err != nil {
			return nil, err
		}
		path = append(path, f)
		h := f.Page.Index()
		if h.IsLeaf() {
			return path, nil
		}
		entries := liveEntries(entriesOf(f.Page))
		if len(entries) == 0 {
			return nil, errors.New("btree: internal page has no children")
		}
		idx := findChildIndex(entries, key, t.cmp)
		pageNo = decodeChildPtr(entries[idx].value)
	}
}

// Insert adds (key, value), splitting pages and growing the root as
// needed. It fails with enginerr.ErrDuplicateKey if key is already
// present and not delete-marked; callers needing upsert semantics must
// Delete first.
func (t *Tree) Insert(m *mtr.Mtr, key, value []byte) error {
	if len(key) == 0 {
		return enginerr.ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	path, err := t.descend(m, key, latch.XLatch)
	if err != nil {
		return errors.Annotate(err, "btree: insert descend")
	}

	cur, curVal := key, value
	for i := len(path) - 1; i >= 0; i-- {
		f := path[i]
		level := f.Page.Index().Level()
		raw := entriesOf(f.Page)
		entries := make([]entry, len(raw))
		for j, r := range raw {
			entries[j] = r.entry
		}

		if i == len(path)-1 {
			if _, exact := findInsertPos(liveEntries(raw), cur, t.cmp); exact {
				return enginerr.ErrDuplicateKey
			}
		}

		merged := mergeInsert(entries, cur, curVal, t.cmp)
		if fits(merged) {
			nextHeap := f.Page.Index().NHeap()
			body := buildBody(t.spaceID, f.ID().PageNo, t.indexID, level, merged, nextHeap)
			m.WriteBytes(f, 0, body)
			return nil
		}

		isRoot := i == 0
		leftFrame, rightFrame, sepKey, err := t.splitPage(m, f, merged, isRoot)
		if err != nil {
			return errors.Annotate(err, "btree: split")
		}
		if isRoot {
			return t.growRoot(m, f, leftFrame, rightFrame, sepKey, level)
		}
		cur, curVal = sepKey, encodeChildPtr(rightFrame.ID().PageNo)
	}
	return nil
}

// Delete marks key's record deleted in place (InfoDeleted), leaving it
// physically on the page until PurgeDeleted removes it once no read view
// can still need the pre-delete version (§4.6). It returns the record's
// stable location for the caller's undo entry and lock/purge bookkeeping.
func (t *Tree) Delete(m *mtr.Mtr, key []byte) (pageNo uint32, heapNo uint16, found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, err := t.descend(m, key, latch.XLatch)
	if err != nil {
		return 0, 0, false, errors.Annotate(err, "btree: delete descend")
	}
	leaf := path[len(path)-1]
	raw := entriesOf(leaf.Page)

	pos := -1
	for i, r := range raw {
		if !r.header.IsDeleted() && t.cmp(r.key, key) == 0 {
			pos = i
			break
		}
	}
	if pos < 0 {
		return 0, 0, false, nil
	}

	entries := make([]entry, len(raw))
	for i, r := range raw {
		entries[i] = r.entry
	}
	entries[pos].deleted = true

	level := leaf.Page.Index().Level()
	nextHeap := leaf.Page.Index().NHeap()
	body := buildBody(t.spaceID, leaf.ID().PageNo, t.indexID, level, entries, nextHeap)
	m.WriteBytes(leaf, 0, body)
	return leaf.ID().PageNo, entries[pos].heapNo, true, nil
}

// PurgeDeleted physically removes the record identified by (pageNo,
// heapNo) without checking its delete-mark: purge passes delete-marked
// records, and rolling back an insert passes the live inserted record. It satisfies
// pkg/txn.PhysicalPurger. Pages are allowed to become sparse after a
// purge rather than merged with a sibling -- deliberately out of scope
// for this pass, see DESIGN.md.
func (t *Tree) PurgeDeleted(spaceID, pageNo uint32, heapNo uint16) error {
	if spaceID != t.spaceID {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m := mtr.Start(t.pool, t.log, 0)
	f, err := m.GetPage(page.ID{Space: t.spaceID, PageNo: pageNo}, latch.XLatch)
	if err != nil {
		m.Discard()
		return errors.Annotate(err, "btree: purge get page")
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
		m.Discard()
		return nil // already purged, or the page was rebuilt by a later split
	}
	all := make([]entry, len(raw))
	for i, r := range raw {
		all[i] = r.entry
	}
	entries := removeAt(all, pos)

	level := f.Page.Index().Level()
	nextHeap := f.Page.Index().NHeap()
	body := buildBody(t.spaceID, pageNo, t.indexID, level, entries, nextHeap)
	m.WriteBytes(f, 0, body)
	if _, _, err := m.Commit(); err != nil {
		return errors.Annotate(err, "btree: purge commit")
	}
	return nil
}

// Search looks up key and reports the live record's value and stable
// (pageNo, heapNo) location, or found=false if absent or delete-marked.
func (t *Tree) Search(m *mtr.Mtr, key []byte) (value []byte, pageNo uint32, heapNo uint16, found bool, err error) {
	path, err := t.descend(m, key, latch.SLatch)
	if err != nil {
		return nil, 0, 0, false, errors.Annotate(err, "btree: search descend")
	}
	leaf := path[len(path)-1]
	entries := liveEntries(entriesOf(leaf.Page))
	pos, exact := findInsertPos(entries, key, t.cmp)
	if !exact {
		return nil, 0, 0, false, nil
	}
	e := entries[pos]
	return e.value, leaf.ID().PageNo, e.heapNo, true, nil
}
