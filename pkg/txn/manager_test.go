package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/lock"
	"github.com/xmysql-server/innodb-core/pkg/page"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

type memSpace struct{ pages map[uint32][]byte }

func newMemSpace() *memSpace { return &memSpace{pages: make(map[uint32][]byte)} }

func (m *memSpace) ReadPage(pageNo uint32) ([]byte, error) {
	buf, ok := m.pages[pageNo]
	if !ok {
		buf = make([]byte, page.Size)
		p := page.New(buf)
		p.Init(7, pageNo, page.TypeIndex)
		p.Stamp()
		m.pages[pageNo] = buf
	}
	out := make([]byte, page.Size)
	copy(out, buf)
	return out, nil
}

func (m *memSpace) WritePage(pageNo uint32, buf []byte) error {
	cp := make([]byte, page.Size)
	copy(cp, buf)
	m.pages[pageNo] = cp
	return nil
}

func (m *memSpace) Sync() error { return nil }

func newTestManager(t *testing.T) *Manager {
	logMgr, err := wal.Open(wal.Config{Dir: t.TempDir(), BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { logMgr.Close() })
	pool := buffer.New(buffer.DefaultConfig(16), logMgr)
	pool.RegisterSpace(7, newMemSpace())
	return NewManager(pool, logMgr, 0)
}

func TestBeginAssignsNoIDUntilFirstWrite(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(RepeatableRead, false)
	require.Equal(t, uint64(0), trx.ID)
	require.NotNil(t, trx.ReadView, "RepeatableRead gets a read view at begin")
}

func TestAssignIDIsIdempotent(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(RepeatableRead, false)
	id1 := tm.AssignID(trx)
	id2 := tm.AssignID(trx)
	require.Equal(t, id1, id2)
	require.NotZero(t, id1)
}

func TestCommitReadOnlyTransactionNeedsNoID(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(ReadCommitted, true)
	require.NoError(t, tm.Commit(trx))
	require.Equal(t, StateCommitted, trx.State)
}

func TestCommitWritingTransactionReleasesLocks(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(RepeatableRead, false)
	tm.AssignID(trx)

	res := lock.ResourceID{Space: 7, Page: 1, HeapNo: 1}
	require.NoError(t, tm.Locks().AcquireRecord(trx.ID, res, lock.TypeX, lock.RecNotGap))
	require.NoError(t, tm.Commit(trx))
	require.Equal(t, StateCommitted, trx.State)

	other := tm.Begin(RepeatableRead, false)
	tm.AssignID(other)
	require.NoError(t, tm.Locks().AcquireRecord(other.ID, res, lock.TypeX, lock.RecNotGap))
}

func TestRollbackOnUnwrittenTransaction(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(RepeatableRead, false)
	require.NoError(t, tm.Rollback(trx))
	require.Equal(t, StateRolledBack, trx.State)
}

func TestCommitTwiceFails(t *testing.T) {
	tm := newTestManager(t)
	trx := tm.Begin(RepeatableRead, false)
	tm.AssignID(trx)
	require.NoError(t, tm.Commit(trx))
	err := tm.Commit(trx)
	require.ErrorIs(t, err, enginerr.ErrInvalidTrxState)
}

func TestOldestActiveReadViewLimitExcludesReadOnly(t *testing.T) {
	tm := newTestManager(t)
	a := tm.Begin(RepeatableRead, false)
	tm.AssignID(a)
	b := tm.Begin(RepeatableRead, false)
	tm.AssignID(b)

	limit := tm.OldestActiveReadViewLimit()
	require.Equal(t, a.ID, limit)

	require.NoError(t, tm.Commit(a))
	require.Equal(t, b.ID, tm.OldestActiveReadViewLimit())
}

// NotifyVictim is exercised directly here rather than through an
// actual timing-dependent deadlock, which pkg/lock's own tests already
// cover; this asserts the half that lives in pkg/txn: a notified
// transaction gets rolled back and its locks released without the
// caller having to drive that itself.
func TestNotifyVictimRollsBackTransaction(t *testing.T) {
	tm := newTestManager(t)
	victim := tm.Begin(RepeatableRead, false)
	tm.AssignID(victim)

	res := lock.ResourceID{Space: 7, Page: 1, HeapNo: 1}
	require.NoError(t, tm.Locks().AcquireRecord(victim.ID, res, lock.TypeX, lock.RecNotGap))

	tm.NotifyVictim(victim.ID)

	require.Eventually(t, func() bool {
		return victim.State == StateRolledBack
	}, time.Second, 5*time.Millisecond)

	other := tm.Begin(RepeatableRead, false)
	tm.AssignID(other)
	require.NoError(t, tm.Locks().AcquireRecord(other.ID, res, lock.TypeX, lock.RecNotGap),
		"victim's lock must be released once rollback completes")
}
