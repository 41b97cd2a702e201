package wal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerAppendAndFlush(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	defer m.Close()

	lsn1, err := m.Append(&Record{TrxID: 1, SpaceID: 0, PageNo: 1, Type: RecInsert, Data: []byte("a")})
	require.NoError(t, err)
	lsn2, err := m.Append(&Record{TrxID: 1, SpaceID: 0, PageNo: 1, Type: RecUpdate, Data: []byte("b")})
	require.NoError(t, err)
	require.Less(t, lsn1, lsn2)

	require.NoError(t, m.FlushTo(lsn2))
	require.GreaterOrEqual(t, m.FlushedLSN(), lsn2)
}

func TestManagerCheckpointPersists(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)

	lsn, err := m.Append(&Record{TrxID: 1, SpaceID: 0, PageNo: 1, Type: RecInsert, Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, m.Checkpoint(lsn))
	require.NoError(t, m.Close())

	m2, err := Open(Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, lsn, m2.LastCheckpointLSN())
}

func TestManagerBufferFillTriggersFlush(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(Config{Dir: dir, BufferRecords: 2, FlushInterval: time.Hour})
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 3; i++ {
		_, err := m.Append(&Record{TrxID: 1, SpaceID: 0, PageNo: 1, Type: RecInsert, Data: []byte("z")})
		require.NoError(t, err)
	}
	require.Greater(t, m.FlushedLSN(), uint64(0))
}
