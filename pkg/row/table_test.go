package row

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/btree"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/dict"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/txn"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

func ordersSchema() dict.Schema {
	return dict.Schema{
		TableName: "orders",
		Columns: []dict.ColumnDef{
			{Name: "id", Type: dict.TypeInt64},
			{Name: "note", Type: dict.TypeVarChar},
			{Name: "total", Type: dict.TypeDecimal},
		},
		PrimaryKey: 0,
	}
}

type testFixture struct {
	tbl    *Table
	tm     *txn.Manager
	pool   *buffer.Pool
	logMgr *wal.Manager
}

func (f *testFixture) startMtr() *mtr.Mtr { return mtr.Start(f.pool, f.logMgr, 0) }

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()
	space, err := fsp.Create(filepath.Join(dir, "test.ibd"), 9)
	require.NoError(t, err)
	t.Cleanup(func() { space.Close() })

	logMgr, err := wal.Open(wal.Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { logMgr.Close() })

	pool := buffer.New(buffer.DefaultConfig(64), logMgr)
	pool.RegisterSpace(space.ID, space)

	tree, err := btree.Create(pool, space, logMgr, 1, btree.BytesComparator)
	require.NoError(t, err)

	overflowSeg, err := space.CreateSegment(fsp.SegTypeLeaf)
	require.NoError(t, err)

	tm := txn.NewManager(pool, logMgr, 0)
	tbl := NewTable(tree, ordersSchema(), 1, tm.Locks(), tm, space, overflowSeg)
	tm.SetApplier(tbl)

	return &testFixture{tbl: tbl, tm: tm, pool: pool, logMgr: logMgr}
}

func (f *testFixture) insert(t *testing.T, trx *txn.Trx, values []interface{}) {
	t.Helper()
	m := f.startMtr()
	require.NoError(t, f.tbl.Insert(trx, m, values))
	_, _, err := m.Commit()
	require.NoError(t, err)
}

func (f *testFixture) read(t *testing.T, rv *txn.ReadView, pk interface{}) ([]interface{}, bool) {
	t.Helper()
	m := f.startMtr()
	defer m.Discard()
	values, found, err := f.tbl.Read(rv, m, pk)
	require.NoError(t, err)
	return values, found
}

func TestInsertAndRead(t *testing.T) {
	f := newTestFixture(t)

	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "first order", decimal.NewFromFloat(9.99)})
	require.NoError(t, f.tm.Commit(trx))

	values, found := f.read(t, nil, int64(1))
	require.True(t, found)
	require.Equal(t, int64(1), values[0])
	require.Equal(t, "first order", values[1])
	require.True(t, decimal.NewFromFloat(9.99).Equal(values[2].(decimal.Decimal)))
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "a", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	defer m.Discard()
	err := f.tbl.Insert(trx2, m, []interface{}{int64(1), "b", decimal.NewFromInt(2)})
	require.ErrorIs(t, err, enginerr.ErrDuplicateKey)
}

func TestUpdateThenRead(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "original", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	require.NoError(t, f.tbl.Update(trx2, m, int64(1), []interface{}{int64(1), "updated", decimal.NewFromInt(2)}))
	_, _, err := m.Commit()
	require.NoError(t, err)
	require.NoError(t, f.tm.Commit(trx2))

	values, found := f.read(t, nil, int64(1))
	require.True(t, found)
	require.Equal(t, "updated", values[1])
}

func TestUpdateChangingPrimaryKeyFails(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "a", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	defer m.Discard()
	err := f.tbl.Update(trx2, m, int64(1), []interface{}{int64(2), "a", decimal.NewFromInt(1)})
	require.ErrorIs(t, err, enginerr.ErrInvalidInput)
}

func TestDeleteThenReadNotFound(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "a", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	require.NoError(t, f.tbl.Delete(trx2, m, int64(1)))
	_, _, err := m.Commit()
	require.NoError(t, err)
	require.NoError(t, f.tm.Commit(trx2))

	_, found := f.read(t, nil, int64(1))
	require.False(t, found)
}

func TestRollbackUndoesInsert(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "a", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Rollback(trx))

	_, found := f.read(t, nil, int64(1))
	require.False(t, found)
}

func TestRollbackUndoesUpdate(t *testing.T) {
	f := newTestFixture(t)
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), "original", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	require.NoError(t, f.tbl.Update(trx2, m, int64(1), []interface{}{int64(1), "changed", decimal.NewFromInt(2)}))
	_, _, err := m.Commit()
	require.NoError(t, err)
	require.NoError(t, f.tm.Rollback(trx2))

	values, found := f.read(t, nil, int64(1))
	require.True(t, found)
	require.Equal(t, "original", values[1])
}

func TestMVCCReadSeesSnapshotNotLaterCommit(t *testing.T) {
	f := newTestFixture(t)
	trx1 := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx1, []interface{}{int64(1), "v1", decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx1))

	reader := f.tm.Begin(txn.RepeatableRead, true)

	trx2 := f.tm.Begin(txn.RepeatableRead, false)
	m := f.startMtr()
	require.NoError(t, f.tbl.Update(trx2, m, int64(1), []interface{}{int64(1), "v2", decimal.NewFromInt(2)}))
	_, _, err := m.Commit()
	require.NoError(t, err)
	require.NoError(t, f.tm.Commit(trx2))

	values, found := f.read(t, reader.ReadView, int64(1))
	require.True(t, found)
	require.Equal(t, "v1", values[1])

	values, found = f.read(t, nil, int64(1))
	require.True(t, found)
	require.Equal(t, "v2", values[1])
}

func TestOverflowRoundTrip(t *testing.T) {
	f := newTestFixture(t)
	big := make([]byte, inlineThreshold+500)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	trx := f.tm.Begin(txn.RepeatableRead, false)
	f.insert(t, trx, []interface{}{int64(1), string(big), decimal.NewFromInt(1)})
	require.NoError(t, f.tm.Commit(trx))

	values, found := f.read(t, nil, int64(1))
	require.True(t, found)
	require.Equal(t, string(big), values[1])
}
