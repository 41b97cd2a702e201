package txn

import (
	"time"

	"github.com/xmysql-server/innodb-core/internal/xlog"
)

// PhysicalPurger removes a delete-marked clustered-index record once no
// read view can still need its pre-delete version. pkg/row supplies the concrete
// implementation.
type PhysicalPurger interface {
	PurgeDeleted(spaceID, pageNo uint32, heapNo uint16) error
}

// PurgeWorker is the background purge worker of §4.6: it walks the
// history list of committed transactions' undo chains in commit
// order and physically discards anything older than
// oldest_active_read_view_limit.
type PurgeWorker struct {
	tm     *Manager
	purger PhysicalPurger
	closed bool
	doneCh chan struct{}
}

// NewPurgeWorker builds a purge worker over tm. Run must be started in
// its own goroutine.
func NewPurgeWorker(tm *Manager, purger PhysicalPurger) *PurgeWorker {
	return &PurgeWorker{tm: tm, purger: purger, doneCh: make(chan struct{})}
}

// Run processes the history list until Stop is called, blocking on a
// condition variable whenever the list is empty rather than polling,
// per §5's suspension points.
func (p *PurgeWorker) Run() {
	defer close(p.doneCh)
	for {
		t := p.waitNext()
		if t == nil {
			return // stopped
		}
		if limit := p.tm.OldestActiveReadViewLimit(); t.ID >= limit {
			// an active read view may still need this chain; back off
			// briefly and retry once the limit has had a chance to advance.
			p.tm.historyMu.Lock()
			p.tm.history.PushFront(t)
			p.tm.historyMu.Unlock()
			time.Sleep(10 * time.Millisecond)
			continue
		}
		p.purgeTrx(t)
	}
}

// waitNext pops the oldest committed transaction off the history
// list, blocking on historyCond while it is empty. Returns nil once
// Stop has been called.
func (p *PurgeWorker) waitNext() *Trx {
	p.tm.historyMu.Lock()
	defer p.tm.historyMu.Unlock()
	for p.tm.history.Len() == 0 {
		if p.closed {
			return nil
		}
		p.tm.historyCond.Wait()
	}
	if p.closed {
		return nil
	}
	front := p.tm.history.Front()
	p.tm.history.Remove(front)
	return front.Value.(*Trx)
}

func (p *PurgeWorker) purgeTrx(t *Trx) {
	t.Walk(func(e UndoEntry) bool {
		if e.Op == OpDelete && p.purger != nil {
			if err := p.purger.PurgeDeleted(e.SpaceID, e.PageNo, e.HeapNo); err != nil {
				xlog.Logger.Warnf("txn: purge of trx %d record (%d,%d,%d) failed: %v",
					t.ID, e.SpaceID, e.PageNo, e.HeapNo, err)
			}
		}
		return true
	})
	t.undoHead = nil
	t.undoLen = 0
}

// Stop signals Run to exit and waits for it to return.
func (p *PurgeWorker) Stop() {
	p.tm.historyMu.Lock()
	p.closed = true
	p.tm.historyMu.Unlock()
	p.tm.historyCond.Broadcast()
	<-p.doneCh
}
