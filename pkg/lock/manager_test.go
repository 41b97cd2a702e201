package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
)

func TestRecordLockSharedCompatible(t *testing.T) {
	m := New(DefaultConfig())
	res := ResourceID{Space: 1, Page: 1, HeapNo: 1}
	require.NoError(t, m.AcquireRecord(1, res, TypeS, RecNotGap))
	require.NoError(t, m.AcquireRecord(2, res, TypeS, RecNotGap))
}

func TestRecordLockExclusiveBlocksThenTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTimeout = 30 * time.Millisecond
	m := New(cfg)
	res := ResourceID{Space: 1, Page: 1, HeapNo: 1}
	require.NoError(t, m.AcquireRecord(1, res, TypeX, RecNotGap))

	err := m.AcquireRecord(2, res, TypeS, RecNotGap)
	require.ErrorIs(t, err, enginerr.ErrLockWaitTimeout)
}

func TestRecordLockGrantedAfterRelease(t *testing.T) {
	m := New(DefaultConfig())
	res := ResourceID{Space: 1, Page: 1, HeapNo: 1}
	require.NoError(t, m.AcquireRecord(1, res, TypeX, RecNotGap))

	done := make(chan error, 1)
	go func() { done <- m.AcquireRecord(2, res, TypeX, RecNotGap) }()

	time.Sleep(20 * time.Millisecond)
	m.ReleaseAll(1)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never granted after release")
	}
}

func TestInsertIntentionConflictsOnlyWithOrdinaryGap(t *testing.T) {
	m := New(DefaultConfig())
	res := ResourceID{Space: 1, Page: 1, HeapNo: 5}
	require.NoError(t, m.AcquireRecord(1, res, TypeX, InsertIntention))
	// Another insert-intention lock on the same gap never conflicts.
	require.NoError(t, m.AcquireRecord(2, res, TypeX, InsertIntention))
}

func TestOrdinaryGapConflictsWithInsertIntention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTimeout = 20 * time.Millisecond
	m := New(cfg)
	res := ResourceID{Space: 1, Page: 1, HeapNo: 5}
	require.NoError(t, m.AcquireRecord(1, res, TypeX, Gap))
	err := m.AcquireRecord(2, res, TypeX, InsertIntention)
	require.ErrorIs(t, err, enginerr.ErrLockWaitTimeout)
}

func TestTableLockMatrix(t *testing.T) {
	require.True(t, TableCompatible(IS, IS))
	require.True(t, TableCompatible(IS, IX))
	require.True(t, TableCompatible(IX, IS))
	require.False(t, TableCompatible(IX, TableS))
	require.False(t, TableCompatible(TableX, IS))
	require.True(t, TableCompatible(TableS, TableS))
}

type recordingNotifier struct{ victims []uint64 }

func (n *recordingNotifier) NotifyVictim(trxID uint64) { n.victims = append(n.victims, trxID) }

func TestDeadlockDetectedBetweenTwoTransactions(t *testing.T) {
	notifier := &recordingNotifier{}
	cfg := DefaultConfig()
	cfg.WaitTimeout = 200 * time.Millisecond
	cfg.Notifier = notifier
	m := New(cfg)

	resA := ResourceID{Space: 1, Page: 1, HeapNo: 1}
	resB := ResourceID{Space: 1, Page: 1, HeapNo: 2}

	require.NoError(t, m.AcquireRecord(1, resA, TypeX, RecNotGap))
	require.NoError(t, m.AcquireRecord(2, resB, TypeX, RecNotGap))

	errCh := make(chan error, 2)
	go func() { errCh <- m.AcquireRecord(1, resB, TypeX, RecNotGap) }()
	time.Sleep(20 * time.Millisecond)
	go func() { errCh <- m.AcquireRecord(2, resA, TypeX, RecNotGap) }()

	var gotDeadlock bool
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err == enginerr.ErrDeadlock {
				gotDeadlock = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock never resolved")
		}
	}
	require.True(t, gotDeadlock, "expected one of the two waiters to be chosen as deadlock victim")
}
