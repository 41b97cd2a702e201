package buffer

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/internal/xlog"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// SpaceSource resolves a space-id to its backing tablespace, the
// "pread/pwrite, fsync" collaborator spec.md §1 assumes. pkg/fsp.Space
// satisfies this directly; the indirection lets pkg/buffer be tested
// without a real file-backed space.
type SpaceSource interface {
	ReadPage(pageNo uint32) ([]byte, error)
	WritePage(pageNo uint32, buf []byte) error
	Sync() error
}

// LogFlusher is the "log.flush_to(frame.page_lsn)" collaborator the
// flush path calls before writing a dirty page, enforcing WAL (§4.1).
type LogFlusher interface {
	FlushTo(lsn uint64) error
}

// Config configures one Pool instance.
type Config struct {
	TotalFrames int
	OldListPct  int           // percent of the LRU, from the tail, considered "old"
	OldDwell    time.Duration // re-touch dwell before old->young promotion
}

func DefaultConfig(totalFrames int) Config {
	return Config{TotalFrames: totalFrames, OldListPct: 37, OldDwell: time.Second}
}

// Pool is the page store of §4.1: N frames, a page hash, an LRU with
// scan-resistant young/old sublists, a free list, and a flush list
// ordered by oldest-modification LSN.
type Pool struct {
	cfg Config

	hashMu sync.RWMutex
	hash   map[page.ID]*Frame

	lru *lruList

	freeMu sync.Mutex
	free   []*Frame

	flushMu   sync.Mutex
	flushList *list.List // oldest-mod-LSN ascending from Front; each Value is *Frame
	flushElem map[page.ID]*list.Element

	spaces   map[uint32]SpaceSource
	spacesMu sync.RWMutex

	log LogFlusher

	hitCount, missCount uint64
	readCount, writeCount uint64
}

// New allocates a fixed pool of cfg.TotalFrames frames, all initially on
// the free list.
func New(cfg Config, log LogFlusher) *Pool {
	p := &Pool{
		cfg:       cfg,
		hash:      make(map[page.ID]*Frame),
		lru:       newLRU(cfg.OldListPct, cfg.OldDwell),
		flushList: list.New(),
		flushElem: make(map[page.ID]*list.Element),
		spaces:    make(map[uint32]SpaceSource),
		log:       log,
	}
	for i := 0; i < cfg.TotalFrames; i++ {
		p.free = append(p.free, newFrame(make([]byte, page.Size)))
	}
	return p
}

// RegisterSpace attaches a tablespace the pool may fetch pages from.
func (p *Pool) RegisterSpace(spaceID uint32, src SpaceSource) {
	p.spacesMu.Lock()
	defer p.spacesMu.Unlock()
	p.spaces[spaceID] = src
}

func (p *Pool) space(spaceID uint32) (SpaceSource, error) {
	p.spacesMu.RLock()
	defer p.spacesMu.RUnlock()
	src, ok := p.spaces[spaceID]
	if !ok {
		return nil, errors.Errorf("buffer: space %d not registered", spaceID)
	}
	return src, nil
}

// Get implements the get-page protocol of §4.1: hash lookup, pin, latch
// in the requested mode; on miss, evict/read, verify, and insert at the
// LRU midpoint.
func (p *Pool) Get(id page.ID, mode latch.Mode) (*Frame, error) {
	p.hashMu.RLock()
	f, ok := p.hash[id]
	p.hashMu.RUnlock()

	if ok {
		f.Pin()
		f.Latch.Acquire(mode)
		atomic.AddUint64(&p.hitCount, 1)
		p.lru.Touch(f)
		return f, nil
	}

	atomic.AddUint64(&p.missCount, 1)
	return p.fetch(id, mode)
}

func (p *Pool) fetch(id page.ID, mode latch.Mode) (*Frame, error) {
	f, err := p.takeFrame()
	if err != nil {
		return nil, err
	}

	p.hashMu.Lock()
	if existing, ok := p.hash[id]; ok {
		// Lost the race against a concurrent fetch; use the winner.
		p.hashMu.Unlock()
		p.returnFrame(f)
		existing.Pin()
		existing.Latch.Acquire(mode)
		p.lru.Touch(existing)
		return existing, nil
	}
	p.hash[id] = f
	f.id = id
	p.hashMu.Unlock()

	src, err := p.space(id.Space)
	if err != nil {
		p.unhash(id)
		p.returnFrame(f)
		return nil, err
	}

	buf, err := src.ReadPage(id.PageNo)
	if err != nil {
		p.unhash(id)
		p.returnFrame(f)
		return nil, errors.Annotatef(enginerr.ErrIOError, "buffer: read %v: %v", id, err)
	}
	atomic.AddUint64(&p.readCount, 1)
	copy(f.Page.Buf, buf)

	if !f.Page.Verify() {
		p.unhash(id)
		p.returnFrame(f)
		return nil, errors.Annotatef(enginerr.ErrPageCorruption, "buffer: checksum/LSN mismatch at %v", id)
	}

	p.lru.InsertAtMidpoint(f)
	f.Pin()
	f.Latch.Acquire(mode)
	return f, nil
}

// takeFrame returns a frame from the free list, or evicts one from the
// LRU tail, flushing first if the victim candidate turns out dirty.
func (p *Pool) takeFrame() (*Frame, error) {
	p.freeMu.Lock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.freeMu.Unlock()
		return f, nil
	}
	p.freeMu.Unlock()

	for i := 0; i < 64; i++ {
		f := p.lru.EvictCandidate()
		if f != nil {
			p.unhash(f.id)
			return f, nil
		}
		// Every old-sublist candidate was pinned or dirty; ask the
		// flusher to make progress and retry briefly rather than
		// blocking forever on an oversubscribed pool.
		p.flushOne()
		time.Sleep(time.Millisecond)
	}
	return nil, errors.Annotate(enginerr.ErrOutOfMemory, "buffer: no evictable frame available")
}

func (p *Pool) unhash(id page.ID) {
	p.hashMu.Lock()
	delete(p.hash, id)
	p.hashMu.Unlock()
}

func (p *Pool) returnFrame(f *Frame) {
	f.dirty = false
	f.oldestModLSN = 0
	p.freeMu.Lock()
	p.free = append(p.free, f)
	p.freeMu.Unlock()
}

// Release releases a previously-acquired latch on f and unpins it.
func (p *Pool) Release(f *Frame, mode latch.Mode) {
	f.Latch.Release(mode)
	f.Unpin()
}

// MarkDirty is called by pkg/mtr on MTR commit: it captures startLSN as
// the frame's oldest-modification LSN (if not already dirty), stamps
// endLSN into the page header, and inserts the frame into the flush
// list, per §4.2 "commit()" step 3.
func (p *Pool) MarkDirty(f *Frame, startLSN, endLSN uint64) {
	f.Page.SetLSN(endLSN)

	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if !f.dirty {
		f.dirty = true
		f.oldestModLSN = startLSN
		e := p.flushList.PushBack(f)
		p.flushElem[f.id] = e
	}
}

// OldestModifiedLSN returns the smallest oldest-modification LSN among
// all dirty pages, or 0 if none are dirty; checkpoints use this as their
// min_flush_list_lsn (§4.3).
func (p *Pool) OldestModifiedLSN() uint64 {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	e := p.flushList.Front()
	if e == nil {
		return 0
	}
	return e.Value.(*Frame).oldestModLSN
}

// flushOne writes the single oldest dirty page to disk, enforcing WAL by
// flushing the log up to that page's LSN first (§4.1 "Flush").
func (p *Pool) flushOne() error {
	p.flushMu.Lock()
	e := p.flushList.Front()
	if e == nil {
		p.flushMu.Unlock()
		return nil
	}
	f := e.Value.(*Frame)
	p.flushMu.Unlock()

	f.Latch.RLock()
	pageLSN := f.Page.LSN()
	if p.log != nil {
		if err := p.log.FlushTo(pageLSN); err != nil {
			f.Latch.RUnlock()
			return errors.Trace(err)
		}
	}
	f.Page.Stamp()
	src, err := p.space(f.id.Space)
	if err != nil {
		f.Latch.RUnlock()
		return err
	}
	buf := make([]byte, len(f.Page.Buf))
	copy(buf, f.Page.Buf)
	f.Latch.RUnlock()

	if err := src.WritePage(f.id.PageNo, buf); err != nil {
		return errors.Annotatef(enginerr.ErrIOError, "flush %v: %v", f.id, err)
	}
	atomic.AddUint64(&p.writeCount, 1)

	p.flushMu.Lock()
	if el, ok := p.flushElem[f.id]; ok {
		p.flushList.Remove(el)
		delete(p.flushElem, f.id)
	}
	f.dirty = false
	f.oldestModLSN = 0
	p.flushMu.Unlock()
	return nil
}

// FlushBatch flushes up to n of the oldest dirty pages, the unit of work
// the background flusher repeats.
func (p *Pool) FlushBatch(n int) (flushed int, err error) {
	for i := 0; i < n; i++ {
		p.flushMu.Lock()
		empty := p.flushList.Len() == 0
		p.flushMu.Unlock()
		if empty {
			break
		}
		if err = p.flushOne(); err != nil {
			xlog.Logger.Warnf("buffer: flush failed: %v", err)
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// FlushAll drains the flush list entirely, used by engine shutdown.
func (p *Pool) FlushAll() error {
	for {
		p.flushMu.Lock()
		n := p.flushList.Len()
		p.flushMu.Unlock()
		if n == 0 {
			return nil
		}
		if err := p.flushOne(); err != nil {
			return err
		}
	}
}

func (p *Pool) DirtyPageCount() int {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return p.flushList.Len()
}
