package mtr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/page"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

type memSpace struct {
	pages map[uint32][]byte
}

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

func newTestPool(t *testing.T) (*buffer.Pool, *wal.Manager, *memSpace) {
	logMgr, err := wal.Open(wal.Config{Dir: t.TempDir(), BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	pool := buffer.New(buffer.DefaultConfig(16), logMgr)
	sp := newMemSpace()
	pool.RegisterSpace(7, sp)
	return pool, logMgr, sp
}

func TestMtrCommitStampsLSNAndMarksDirty(t *testing.T) {
	pool, logMgr, _ := newTestPool(t)
	defer logMgr.Close()

	m := Start(pool, logMgr, 1)
	f, err := m.GetPage(page.ID{Space: 7, PageNo: 1}, latch.XLatch)
	require.NoError(t, err)

	m.WriteUint(f, 0, 4, 0xDEADBEEF)

	start, end, err := m.Commit()
	require.NoError(t, err)
	require.Greater(t, end, start)
	require.True(t, f.IsDirty())
	require.Equal(t, end, f.Page.LSN())
}

func TestMtrDiscardReleasesWithoutLogging(t *testing.T) {
	pool, logMgr, _ := newTestPool(t)
	defer logMgr.Close()

	m := Start(pool, logMgr, 1)
	f, err := m.GetPage(page.ID{Space: 7, PageNo: 2}, latch.SLatch)
	require.NoError(t, err)
	m.Discard()

	require.False(t, f.IsDirty())
	// latch was released: another MTR can take it exclusively without blocking.
	m2 := Start(pool, logMgr, 2)
	_, err = m2.GetPage(page.ID{Space: 7, PageNo: 2}, latch.XLatch)
	require.NoError(t, err)
	m2.Discard()
}

func TestMtrNoModificationsReturnsZeroLSN(t *testing.T) {
	pool, logMgr, _ := newTestPool(t)
	defer logMgr.Close()

	m := Start(pool, logMgr, 1)
	_, err := m.GetPage(page.ID{Space: 7, PageNo: 3}, latch.SLatch)
	require.NoError(t, err)
	start, end, err := m.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(0), end)
}
