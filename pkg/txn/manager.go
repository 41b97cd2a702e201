package txn

import (
	"container/list"
	"sync"
	"time"

	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/internal/xlog"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/lock"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

// trxIDPersistInterval bounds how many ids may be handed out between
// persisted counter checkpoints; on restart the counter resumes from
// persisted+safety margin so a crash can never reassign an id already
// visible on disk, per §4.6 "persisted periodically, with a safety
// margin to survive crash without collision".
const trxIDPersistInterval = 256

// RollbackApplier re-applies an undo entry's pre-image during
// rollback; pkg/row supplies the concrete implementation once it
// exists, since only it knows a clustered-index record's on-page
// layout.
type RollbackApplier interface {
	ApplyUndo(m *mtr.Mtr, e UndoEntry) error
}

// Manager is the transaction manager of §4.6, composing the lock
// manager, WAL, buffer pool and MTR into begin/commit/rollback, and
// implementing pkg/lock.VictimNotifier so a deadlock-losing
// transaction rolls itself back.
type Manager struct {
	mu sync.Mutex

	pool *buffer.Pool
	log  *wal.Manager
	lk   *lock.Manager

	nextTrxID      uint64
	persistedUpTo  uint64
	active         map[uint64]*Trx
	recentlyCommit map[uint64]time.Time

	defaultIsolation Isolation
	applier          RollbackApplier

	historyMu   sync.Mutex
	historyCond *sync.Cond
	history     *list.List // committed *Trx awaiting purge, oldest (front) first
}

// NewManager wires a transaction manager over an already-open buffer
// pool and WAL, and builds its own lock manager, exposed through Locks.
// SetApplier must be called before any
// transaction performs a write, since rollback needs it to reverse
// undo entries.
func NewManager(pool *buffer.Pool, log *wal.Manager, startTrxID uint64) *Manager {
	tm := &Manager{
		pool: pool, log: log,
		nextTrxID:      startTrxID,
		persistedUpTo:  startTrxID,
		active:         make(map[uint64]*Trx),
		recentlyCommit: make(map[uint64]time.Time),

		defaultIsolation: RepeatableRead,
		history:          list.New(),
	}
	tm.historyCond = sync.NewCond(&tm.historyMu)
	cfg := lock.DefaultConfig()
	cfg.Weight = tm.weightOf
	cfg.Notifier = tm
	tm.lk = lock.New(cfg)
	return tm
}

// SetApplier installs the rollback applier; done once at engine
// startup after pkg/row's implementation exists.
func (tm *Manager) SetApplier(a RollbackApplier) { tm.applier = a }

// Locks exposes the lock manager so pkg/row can acquire record/table
// locks on a transaction's behalf.
func (tm *Manager) Locks() *lock.Manager { return tm.lk }

// Begin allocates a transaction object in ACTIVE state. A read view
// is created immediately for ReadCommitted and every stricter level;
// ReadUncommitted gets none. The view is not refreshed per statement:
// a ReadCommitted transaction keeps its Begin snapshot unless
// RefreshReadView is called. The transaction's id stays 0 until its
// first write, per §4.6.
func (tm *Manager) Begin(isolation Isolation, readOnly bool) *Trx {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t := &Trx{
		State: StateActive, Isolation: isolation, ReadOnly: readOnly,
		StartedAt: time.Now(), LastActiveAt: time.Now(),
	}
	if isolation >= ReadCommitted {
		t.ReadView = tm.createReadViewLocked(0)
	}
	return t
}

// AssignID lazily hands the transaction its trx-id on first write,
// acquiring a rollback segment slot (modeled here simply as the
// trx-id modulo 128; pkg/txn keeps one undo chain per transaction
// rather than per fixed segment). Safe to call more than once.
func (tm *Manager) AssignID(t *Trx) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t.ID != 0 {
		return t.ID
	}
	tm.nextTrxID++
	t.ID = tm.nextTrxID
	t.rollbackSegID = int(t.ID % 128)
	tm.active[t.ID] = t
	if t.ID-tm.persistedUpTo >= trxIDPersistInterval {
		tm.persistedUpTo = t.ID + trxIDPersistInterval
	}
	return t.ID
}

// RefreshReadView replaces t's read view with a new snapshot. Nothing
// in this module calls it.
func (tm *Manager) RefreshReadView(t *Trx) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t.ReadView = tm.createReadViewLocked(t.ID)
}

func (tm *Manager) createReadViewLocked(excludeID uint64) *ReadView {
	ids := make([]uint64, 0, len(tm.active))
	for id := range tm.active {
		if id != excludeID {
			ids = append(ids, id)
		}
	}
	return NewReadView(ids, tm.nextTrxID+1, excludeID)
}

// Commit implements §4.6's commit sequence: flush undo updates (here,
// nothing further to flush since undo lives in memory until purge),
// write a COMMIT marker through an MTR, mark COMMITTED_IN_MEMORY and
// add the trx to the recently-committed set, release all locks, wait
// for the log to reach disk, then report success.
func (tm *Manager) Commit(t *Trx) error {
	if t.ID == 0 {
		// read-only transaction, never wrote, nothing to durably commit
		t.State = StateCommitted
		return nil
	}
	if t.State != StateActive {
		return enginerr.ErrInvalidTrxState
	}

	m := mtr.Start(tm.pool, tm.log, t.ID)
	m.LogMarker(wal.RecTrxCommit, nil)
	_, endLSN, err := m.Commit()
	if err != nil {
		return err
	}

	tm.mu.Lock()
	t.State = StateCommittedInMemory
	tm.recentlyCommit[t.ID] = time.Now()
	delete(tm.active, t.ID)
	tm.mu.Unlock()

	tm.lk.ReleaseAll(t.ID)

	if err := tm.log.FlushTo(endLSN); err != nil {
		return err
	}
	t.State = StateCommitted

	if t.undoHead != nil {
		tm.historyMu.Lock()
		tm.history.PushBack(t)
		tm.historyCond.Signal()
		tm.historyMu.Unlock()
	}
	return nil
}

// Rollback implements §4.6's rollback sequence: walk the undo log
// newest-first applying inverse operations through fresh MTRs, write
// an ABORT marker, release locks.
func (tm *Manager) Rollback(t *Trx) error {
	if t.ID == 0 {
		t.State = StateRolledBack
		return nil
	}
	if t.State != StateActive {
		return enginerr.ErrInvalidTrxState
	}

	var walkErr error
	t.Walk(func(e UndoEntry) bool {
		m := mtr.Start(tm.pool, tm.log, t.ID)
		if tm.applier != nil {
			if err := tm.applier.ApplyUndo(m, e); err != nil {
				walkErr = err
				m.Discard()
				return false
			}
		}
		if _, _, err := m.Commit(); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	m := mtr.Start(tm.pool, tm.log, t.ID)
	m.LogMarker(wal.RecTrxRollback, nil)
	if _, _, err := m.Commit(); err != nil {
		return err
	}

	tm.mu.Lock()
	t.State = StateRolledBack
	delete(tm.active, t.ID)
	tm.mu.Unlock()

	tm.lk.ReleaseAll(t.ID)
	return nil
}

// NotifyVictim implements lock.VictimNotifier: a transaction chosen as
// deadlock victim is rolled back on its own goroutine so the caller
// (pkg/lock, which calls this outside its mutex from the requester's
// Acquire) is never held up by it.
func (tm *Manager) NotifyVictim(trxID uint64) {
	tm.mu.Lock()
	t, ok := tm.active[trxID]
	tm.mu.Unlock()
	if !ok {
		return
	}
	xlog.Logger.Warnf("txn: rolling back trx %d as deadlock victim", trxID)
	go func() {
		if err := tm.Rollback(t); err != nil {
			xlog.Logger.Errorf("txn: deadlock-victim rollback of trx %d failed: %v", trxID, err)
		}
	}()
}

func (tm *Manager) weightOf(trxID uint64) uint64 {
	tm.mu.Lock()
	t, ok := tm.active[trxID]
	tm.mu.Unlock()
	if !ok {
		return 0
	}
	return t.UndoSize()
}

// ByID looks up a transaction by id among those still active or
// committed-but-not-yet-purged, the lookup pkg/row's MVCC version
// resolution needs to chase a roll-ptr into a transaction other than
// the reader's own.
func (tm *Manager) ByID(trxID uint64) (*Trx, bool) {
	tm.mu.Lock()
	t, ok := tm.active[trxID]
	tm.mu.Unlock()
	if ok {
		return t, true
	}

	tm.historyMu.Lock()
	defer tm.historyMu.Unlock()
	for e := tm.history.Front(); e != nil; e = e.Next() {
		if ht := e.Value.(*Trx); ht.ID == trxID {
			return ht, true
		}
	}
	return nil, false
}

// OldestActiveReadViewLimit reports the smallest trx-id any currently
// active read view still depends on, the horizon pkg/txn's purge
// worker needs per §4.6.
func (tm *Manager) OldestActiveReadViewLimit() uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	limit := tm.nextTrxID + 1
	for id := range tm.active {
		if id != 0 && id < limit {
			limit = id
		}
	}
	return limit
}
