// Package buffer implements the page store (buffer pool) of §4.1: a
// fixed pool of frames caching tablespace pages, an LRU with
// scan-resistant young/old sublists, a flush list ordered by
// oldest-modification LSN, and the get-page/mark-dirty/flush protocols.
//
// Grounded on the teacher's server/innodb/buffer_pool package
// (buffer_pool.go, buffer_lru.go, stats.go, prefetch.go), generalized to
// the (space, page-no) addressing and LSN-driven flush-list ordering
// spec.md §4.1 requires.
package buffer

import (
	"sync/atomic"
	"time"

	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// Frame is one in-memory slot of the buffer pool, holding exactly one
// tablespace page while it is pinned/cached.
type Frame struct {
	Latch latch.Latch // per-page rwlatch, §4.1 "Concurrency"

	id       page.ID
	Page     *page.Page
	fixCount int32 // prevents eviction while any consumer pins the page, §"Fix-count"

	dirty        bool
	oldestModLSN uint64 // LSN at which the page first became dirty since last flush

	lastAccess time.Time // for the old-sublist dwell-time promotion rule

	// list membership pointers are managed by the LRU/flush-list types,
	// not here; Frame itself stays a dumb payload holder.
}

func newFrame(buf []byte) *Frame {
	return &Frame{Page: page.New(buf)}
}

func (f *Frame) ID() page.ID { return f.id }

func (f *Frame) Pin()   { atomic.AddInt32(&f.fixCount, 1) }
func (f *Frame) Unpin() { atomic.AddInt32(&f.fixCount, -1) }
func (f *Frame) Pinned() bool { return atomic.LoadInt32(&f.fixCount) > 0 }

func (f *Frame) IsDirty() bool { return f.dirty }
