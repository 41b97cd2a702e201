package wal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

type fakePageSource struct {
	pages map[[2]uint32][]byte
}

func newFakePageSource() *fakePageSource {
	return &fakePageSource{pages: make(map[[2]uint32][]byte)}
}

func (f *fakePageSource) put(spaceID, pageNo uint32) {
	buf := make([]byte, page.Size)
	p := page.New(buf)
	p.Init(spaceID, pageNo, page.TypeIndex)
	f.pages[[2]uint32{spaceID, pageNo}] = buf
}

func (f *fakePageSource) ReadPage(spaceID, pageNo uint32) ([]byte, error) {
	return f.pages[[2]uint32{spaceID, pageNo}], nil
}

func (f *fakePageSource) WritePage(spaceID, pageNo uint32, buf []byte) error {
	f.pages[[2]uint32{spaceID, pageNo}] = buf
	return nil
}

func TestRecoverAppliesUnflushedRecords(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)

	_, err = m.Append(&Record{TrxID: 1, SpaceID: 3, PageNo: 5, Type: RecTrxBegin})
	require.NoError(t, err)
	_, err = m.Append(&Record{TrxID: 1, SpaceID: 3, PageNo: 5, Type: RecInsert, Data: []byte("row")})
	require.NoError(t, err)
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())

	src := newFakePageSource()
	src.put(3, 5)

	var applied []string
	res, err := Recover(dir, src, func(rec *Record, buf []byte) error {
		applied = append(applied, rec.Type.String())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.RecordsRedone)
	require.Contains(t, applied, "INSERT")
	require.Contains(t, res.ActiveTrx, uint64(1)) // never committed: reported as still active
}

func TestRecoverSkipsAlreadyDurablePages(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	lsn, err := m.Append(&Record{TrxID: 1, SpaceID: 1, PageNo: 1, Type: RecInsert, Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	src := newFakePageSource()
	src.put(1, 1)
	buf := src.pages[[2]uint32{1, 1}]
	p := page.New(buf)
	p.SetLSN(lsn) // already applied before crash
	p.Stamp()

	res, err := Recover(dir, src, func(rec *Record, buf []byte) error {
		t.Fatal("should not redo an already-durable page")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.RecordsRedone)
}
