package buffer

import (
	"container/list"
	"sync"
	"time"

	"github.com/xmysql-server/innodb-core/pkg/page"
)

// lruList implements the split young/old LRU of §4.1: a configurable
// midpoint (~3/8 from the tail) separates a "young" head sublist from an
// "old" tail sublist, and a page re-touched after a dwell interval while
// still in the old sublist is promoted to the young head -- the
// scan-resistance rule that keeps a sequential scan from evicting hot
// pages.
type lruList struct {
	mu sync.Mutex

	l *list.List // each Element.Value is *Frame, youngest at Front

	oldPct int // percent of the list, from the tail, considered "old"
	dwell  time.Duration

	elems map[page.ID]*list.Element
}

func newLRU(oldPct int, dwell time.Duration) *lruList {
	return &lruList{
		l:      list.New(),
		oldPct: oldPct,
		dwell:  dwell,
		elems:  make(map[page.ID]*list.Element),
	}
}

// midpointElem returns the element at the young/old boundary: oldPct percent
// of the list length counted from the tail.
func (c *lruList) midpointElem() *list.Element {
	n := c.l.Len()
	if n == 0 {
		return nil
	}
	oldLen := n * c.oldPct / 100
	if oldLen < 1 {
		oldLen = 1
	}
	e := c.l.Back()
	for i := 1; i < oldLen && e != nil; i++ {
		e = e.Prev()
	}
	return e
}

// InsertAtMidpoint inserts a newly-cached frame at the LRU midpoint, per
// §4.1 step 4 of the get-page protocol, rather than at the young head --
// a single sequential scan only ever touches each page once, so it never
// earns promotion to young.
func (c *lruList) InsertAtMidpoint(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mid := c.midpointElem()
	var e *list.Element
	if mid == nil {
		e = c.l.PushFront(f)
	} else {
		e = c.l.InsertAfter(f, mid)
	}
	c.elems[f.id] = e
	f.lastAccess = time.Now()
}

// Touch re-registers access to a cached frame. If the frame sits in the
// old sublist and has dwelled there past the configured interval, it is
// promoted to the young head; otherwise its position is left alone so a
// tight scan loop doesn't thrash the list lock.
func (c *lruList) Touch(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.elems[f.id]
	if !ok {
		return
	}
	mid := c.midpointElem()
	inOld := mid != nil && isAtOrAfter(c.l, mid, e)
	now := time.Now()
	if inOld && now.Sub(f.lastAccess) > c.dwell {
		c.l.MoveToFront(e)
		f.lastAccess = now
	}
}

// isAtOrAfter reports whether e appears at or after mid when walking
// from mid toward the back of the list.
func isAtOrAfter(l *list.List, mid, e *list.Element) bool {
	for cur := mid; cur != nil; cur = cur.Next() {
		if cur == e {
			return true
		}
	}
	return false
}

// Remove drops f from the LRU. Eviction does not go through it:
// EvictCandidate unlinks its victim itself.
func (c *lruList) Remove(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.elems[f.id]; ok {
		c.l.Remove(e)
		delete(c.elems, f.id)
	}
}

// EvictCandidate returns the first unfixed, clean frame found scanning
// from the LRU tail, per §4.1 step 2 ("evict from LRU tail: first
// unfixed clean old page"). Dirty candidates are skipped; the caller
// must request a flush for those instead of evicting them directly.
func (c *lruList) EvictCandidate() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.l.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*Frame)
		if !f.Pinned() && !f.IsDirty() {
			c.l.Remove(e)
			delete(c.elems, f.id)
			return f
		}
	}
	return nil
}

// Len reports the number of frames currently tracked by the LRU.
func (c *lruList) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.l.Len()
}
