package txn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPurger struct {
	mu     sync.Mutex
	purged []UndoEntry
}

func (p *recordingPurger) PurgeDeleted(spaceID, pageNo uint32, heapNo uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, UndoEntry{SpaceID: spaceID, PageNo: pageNo, HeapNo: heapNo})
	return nil
}

func (p *recordingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.purged)
}

func TestPurgeWorkerDiscardsCommittedDeleteMarks(t *testing.T) {
	tm := newTestManager(t)

	trx := tm.Begin(RepeatableRead, false)
	tm.AssignID(trx)
	trx.AppendUndo(OpDelete, 7, 1, 3, []byte("old-row"), RollPtr{})
	require.NoError(t, tm.Commit(trx))

	// No other transaction is active, so the commit itself becomes the
	// oldest visible horizon and is immediately purgeable.
	purger := &recordingPurger{}
	worker := NewPurgeWorker(tm, purger)
	go worker.Run()
	defer worker.Stop()

	require.Eventually(t, func() bool { return purger.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPurgeWorkerWaitsForActiveReadView(t *testing.T) {
	tm := newTestManager(t)

	blocker := tm.Begin(RepeatableRead, false)
	tm.AssignID(blocker)

	trx := tm.Begin(RepeatableRead, false)
	tm.AssignID(trx)
	trx.AppendUndo(OpDelete, 7, 1, 4, []byte("old-row"), RollPtr{})
	require.NoError(t, tm.Commit(trx))

	purger := &recordingPurger{}
	worker := NewPurgeWorker(tm, purger)
	go worker.Run()
	defer worker.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, purger.count(), "blocker's still-active read view must hold the horizon back")

	require.NoError(t, tm.Commit(blocker))
	require.Eventually(t, func() bool { return purger.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPurgeWorkerStopReturnsPromptly(t *testing.T) {
	tm := newTestManager(t)
	worker := NewPurgeWorker(tm, nil)
	go worker.Run()

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
