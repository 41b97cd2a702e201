package lock

import (
	"sync"
	"time"

	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/internal/xlog"
)

// request is one queued lock request, granted or waiting, generalizing
// the teacher's LockRequest with the variant/table-mode fields §4.5
// needs and a channel used exactly like the teacher's WaitChan.
type request struct {
	trxID     uint64
	recType   Type
	variant   Variant
	tableMode TableMode
	isTable   bool
	granted   bool
	wait      chan struct{}
	createdAt time.Time
}

type recordQueue struct {
	requests []*request
}

type tableQueue struct {
	requests []*request
}

// WeightFunc estimates a transaction's rollback cost (e.g. undo-log
// size), used to pick the cheaper victim in a detected cycle, per §4.5
// "choose the transaction with smallest weight ... as victim".
type WeightFunc func(trxID uint64) uint64

// VictimNotifier is told which transaction lost deadlock arbitration so
// its owner (pkg/txn) can roll it back; the notified transaction's
// locks are not released here; the rollback path calls ReleaseAll once
// it has unwound its own undo chain.
type VictimNotifier interface {
	NotifyVictim(trxID uint64)
}

// Config configures a Manager.
type Config struct {
	WaitTimeout   time.Duration
	DetectionDepth int // bounded DFS depth, §4.5 "default depth 200"
	Weight        WeightFunc
	Notifier      VictimNotifier
}

func DefaultConfig() Config {
	return Config{WaitTimeout: 10 * time.Second, DetectionDepth: 200}
}

// Manager is the lock manager of §4.5.
type Manager struct {
	mu sync.Mutex

	cfg Config

	records map[ResourceID]*recordQueue
	tables  map[uint64]*tableQueue // keyed by table-id

	// waitsFor[a] = set of trx ids a is blocked behind, the edges a
	// bounded DFS from the requester walks looking for a path back to
	// itself.
	waitsFor map[uint64]map[uint64]bool

	holdsRecords map[uint64][]ResourceID
	holdsTables  map[uint64][]uint64
}

func New(cfg Config) *Manager {
	if cfg.DetectionDepth == 0 {
		cfg.DetectionDepth = 200
	}
	return &Manager{
		cfg:          cfg,
		records:      make(map[ResourceID]*recordQueue),
		tables:       make(map[uint64]*tableQueue),
		waitsFor:     make(map[uint64]map[uint64]bool),
		holdsRecords: make(map[uint64][]ResourceID),
		holdsTables:  make(map[uint64][]uint64),
	}
}

// AcquireTable requests a table lock, blocking if incompatible with a
// lock held by another transaction, per §4.5's IS/IX/S/X matrix.
func (m *Manager) AcquireTable(trxID, tableID uint64, mode TableMode) error {
	m.mu.Lock()
	q, ok := m.tables[tableID]
	if !ok {
		q = &tableQueue{}
		m.tables[tableID] = q
	}

	for _, r := range q.requests {
		if r.trxID == trxID && r.granted {
			if r.tableMode >= mode {
				m.mu.Unlock()
				return nil
			}
			conflict := false
			for _, o := range q.requests {
				if o.granted && o.trxID != trxID && !TableCompatible(o.tableMode, mode) {
					conflict = true
					break
				}
			}
			if !conflict {
				r.tableMode = mode // lock conversion to the stronger mode
				m.mu.Unlock()
				return nil
			}
			break
		}
	}

	var blockers []uint64
	for _, r := range q.requests {
		if r.granted && r.trxID != trxID && !TableCompatible(r.tableMode, mode) {
			blockers = append(blockers, r.trxID)
		}
	}

	req := &request{trxID: trxID, tableMode: mode, isTable: true, granted: len(blockers) == 0,
		wait: make(chan struct{}, 1), createdAt: time.Now()}
	q.requests = append(q.requests, req)
	if req.granted {
		m.holdsTables[trxID] = append(m.holdsTables[trxID], tableID)
		m.mu.Unlock()
		return nil
	}
	return m.waitOrFail(trxID, blockers, req, func() { m.removeTableRequest(tableID, req) }, func() {
		m.holdsTables[trxID] = append(m.holdsTables[trxID], tableID)
	})
}

// AcquireRecord requests a record lock of the given type/variant on res.
func (m *Manager) AcquireRecord(trxID uint64, res ResourceID, typ Type, variant Variant) error {
	m.mu.Lock()
	q, ok := m.records[res]
	if !ok {
		q = &recordQueue{}
		m.records[res] = q
	}

	for _, r := range q.requests {
		if r.trxID == trxID && r.granted && r.recType == typ && r.variant == variant {
			m.mu.Unlock()
			return nil
		}
	}

	var blockers []uint64
	for _, r := range q.requests {
		if r.granted && r.trxID != trxID && recordConflicts(r.recType, r.variant, typ, variant) {
			blockers = append(blockers, r.trxID)
		}
	}

	req := &request{trxID: trxID, recType: typ, variant: variant, granted: len(blockers) == 0,
		wait: make(chan struct{}, 1), createdAt: time.Now()}
	q.requests = append(q.requests, req)
	if req.granted {
		m.holdsRecords[trxID] = append(m.holdsRecords[trxID], res)
		m.mu.Unlock()
		return nil
	}
	return m.waitOrFail(trxID, blockers, req, func() { m.removeRecordRequest(res, req) }, func() {
		m.holdsRecords[trxID] = append(m.holdsRecords[trxID], res)
	})
}

// waitOrFail runs deadlock detection for a newly-queued waiting
// request; on a detected cycle it picks a victim (possibly the
// requester itself) per §4.5, then blocks on req.wait up to
// cfg.WaitTimeout. Callers hold m.mu on entry; it is released here.
func (m *Manager) waitOrFail(trxID uint64, blockers []uint64, req *request, remove func(), onGrant func()) error {
	m.waitsFor[trxID] = setOf(blockers)

	if cycle := m.detectCycle(trxID); cycle {
		victim := m.chooseVictim(trxID, blockers)
		if victim == trxID {
			remove()
			delete(m.waitsFor, trxID)
			m.mu.Unlock()
			return enginerr.ErrDeadlock
		}
		xlog.Logger.Warnf("lock: deadlock detected, trx %d chosen as victim (requester %d)", victim, trxID)
		notifier := m.cfg.Notifier
		m.mu.Unlock()
		// Notified outside the lock: a notifier that rolls the victim
		// back synchronously will call back into ReleaseAll.
		if notifier != nil {
			notifier.NotifyVictim(victim)
		}
	} else {
		m.mu.Unlock()
	}

	timeout := m.cfg.WaitTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	select {
	case <-req.wait:
		m.mu.Lock()
		delete(m.waitsFor, trxID)
		onGrant()
		m.mu.Unlock()
		return nil
	case <-time.After(timeout):
		m.mu.Lock()
		remove()
		delete(m.waitsFor, trxID)
		m.mu.Unlock()
		return enginerr.ErrLockWaitTimeout
	}
}

func setOf(ids []uint64) map[uint64]bool {
	s := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// detectCycle performs a bounded-depth DFS from start along waits-for
// edges, per §4.5 "bounded-depth DFS (default depth 200) ... if a cycle
// returns to the requester". Callers hold m.mu.
func (m *Manager) detectCycle(start uint64) bool {
	visited := make(map[uint64]bool)
	var dfs func(node uint64, depth int) bool
	dfs = func(node uint64, depth int) bool {
		if depth > m.cfg.DetectionDepth {
			return false
		}
		for next := range m.waitsFor[node] {
			if next == start {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if dfs(next, depth+1) {
				return true
			}
		}
		return false
	}
	return dfs(start, 0)
}

// chooseVictim picks the transaction with the smallest weight among the
// requester and its immediate blockers, defaulting to the requester if
// none is strictly smaller, per §4.5.
func (m *Manager) chooseVictim(requester uint64, blockers []uint64) uint64 {
	victim := requester
	best := m.weight(requester)
	for _, b := range blockers {
		if w := m.weight(b); w < best {
			best = w
			victim = b
		}
	}
	return victim
}

func (m *Manager) weight(trxID uint64) uint64 {
	if m.cfg.Weight == nil {
		return 0
	}
	return m.cfg.Weight(trxID)
}

func (m *Manager) removeRecordRequest(res ResourceID, target *request) {
	q, ok := m.records[res]
	if !ok {
		return
	}
	q.requests = removeReq(q.requests, target)
	if len(q.requests) == 0 {
		delete(m.records, res)
	}
}

func (m *Manager) removeTableRequest(tableID uint64, target *request) {
	q, ok := m.tables[tableID]
	if !ok {
		return
	}
	q.requests = removeReq(q.requests, target)
	if len(q.requests) == 0 {
		delete(m.tables, tableID)
	}
}

func removeReq(reqs []*request, target *request) []*request {
	out := reqs[:0]
	for _, r := range reqs {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}

// ReleaseAll releases every lock held by trxID, granting any
// now-compatible waiters in FIFO order, per §4.5 "Release".
func (m *Manager) ReleaseAll(trxID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, res := range m.holdsRecords[trxID] {
		q, ok := m.records[res]
		if !ok {
			continue
		}
		q.requests = removeByTrx(q.requests, trxID)
		if len(q.requests) == 0 {
			delete(m.records, res)
		} else {
			m.grantWaitingRecord(q)
		}
	}
	delete(m.holdsRecords, trxID)

	for _, tableID := range m.holdsTables[trxID] {
		q, ok := m.tables[tableID]
		if !ok {
			continue
		}
		q.requests = removeByTrx(q.requests, trxID)
		if len(q.requests) == 0 {
			delete(m.tables, tableID)
		} else {
			m.grantWaitingTable(q)
		}
	}
	delete(m.holdsTables, trxID)

	delete(m.waitsFor, trxID)
	for tid, set := range m.waitsFor {
		delete(set, trxID)
		if len(set) == 0 {
			delete(m.waitsFor, tid)
		}
	}
}

func removeByTrx(reqs []*request, trxID uint64) []*request {
	out := reqs[:0]
	for _, r := range reqs {
		if r.trxID != trxID {
			out = append(out, r)
		}
	}
	return out
}

// grantWaitingRecord re-evaluates a record queue's waiters in FIFO
// order against the currently-granted set, mirroring the teacher's
// grantWaitingLocks.
func (m *Manager) grantWaitingRecord(q *recordQueue) {
	var granted []*request
	for _, r := range q.requests {
		if r.granted {
			granted = append(granted, r)
		}
	}
	for _, w := range q.requests {
		if w.granted {
			continue
		}
		conflict := false
		for _, g := range granted {
			if g.trxID != w.trxID && recordConflicts(g.recType, g.variant, w.recType, w.variant) {
				conflict = true
				break
			}
		}
		if !conflict {
			w.granted = true
			granted = append(granted, w)
			signal(w.wait)
		}
	}
}

func (m *Manager) grantWaitingTable(q *tableQueue) {
	var granted []*request
	for _, r := range q.requests {
		if r.granted {
			granted = append(granted, r)
		}
	}
	for _, w := range q.requests {
		if w.granted {
			continue
		}
		conflict := false
		for _, g := range granted {
			if g.trxID != w.trxID && !TableCompatible(g.tableMode, w.tableMode) {
				conflict = true
				break
			}
		}
		if !conflict {
			w.granted = true
			granted = append(granted, w)
			signal(w.wait)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// HeldRecordLocks reports the resources trxID currently holds a granted
// lock on. Nothing in this module calls it.
func (m *Manager) HeldRecordLocks(trxID uint64) []ResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResourceID, len(m.holdsRecords[trxID]))
	copy(out, m.holdsRecords[trxID])
	return out
}
