package engine

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/config"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/dict"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.LogDir = filepath.Join(dir, "log")
	cfg.BufferPoolSizeBytes = 64 * uint64(cfg.PageSize)
	return cfg
}

func ordersSchema() dict.Schema {
	return dict.Schema{
		TableName: "orders",
		Columns: []dict.ColumnDef{
			{Name: "id", Type: dict.TypeInt64},
			{Name: "note", Type: dict.TypeVarChar, MaxLen: 255},
			{Name: "total", Type: dict.TypeDecimal},
		},
		PrimaryKey: 0,
	}
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close(NoFlush) })
	return e
}

func TestCreateTableInsertAndRead(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	require.NoError(t, csr.CursorInsert([]interface{}{int64(1), "first", decimal.NewFromInt(10)}))
	require.NoError(t, e.Commit(tx))

	reader := e.BeginReadOnly(RepeatableRead)
	rc, err := e.CursorOpen(indexID, reader)
	require.NoError(t, err)
	values, found, err := rc.CursorSearch(int64(1), MatchEQ)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), values[0])
	require.Equal(t, "first", values[1])
	require.True(t, decimal.NewFromInt(10).Equal(values[2].(decimal.Decimal)))
	require.NoError(t, e.Commit(reader))
}

func TestCursorFirstNextScansInOrder(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, csr.CursorInsert([]interface{}{i, "n", decimal.NewFromInt(i)}))
	}
	require.NoError(t, e.Commit(tx))

	reader := e.BeginReadOnly(RepeatableRead)
	scan, err := e.CursorOpen(indexID, reader)
	require.NoError(t, err)

	values, found, err := scan.CursorFirst()
	require.NoError(t, err)
	require.True(t, found)

	var ids []int64
	ids = append(ids, values[0].(int64))
	for {
		values, found, err = scan.CursorNext()
		require.NoError(t, err)
		if !found {
			break
		}
		ids = append(ids, values[0].(int64))
	}
	require.Equal(t, []int64{1, 2, 3}, ids)
	require.NoError(t, e.Commit(reader))
}

func TestCursorLastPrevScansDescending(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, csr.CursorInsert([]interface{}{i, "n", decimal.NewFromInt(i)}))
	}
	require.NoError(t, e.Commit(tx))

	reader := e.BeginReadOnly(RepeatableRead)
	scan, err := e.CursorOpen(indexID, reader)
	require.NoError(t, err)

	values, found, err := scan.CursorLast()
	require.NoError(t, err)
	require.True(t, found)

	var ids []int64
	ids = append(ids, values[0].(int64))
	for {
		values, found, err = scan.CursorPrev()
		require.NoError(t, err)
		if !found {
			break
		}
		ids = append(ids, values[0].(int64))
	}
	require.Equal(t, []int64{3, 2, 1}, ids)
}

func TestCursorUpdateAndDelete(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	require.NoError(t, csr.CursorInsert([]interface{}{int64(1), "a", decimal.NewFromInt(1)}))
	require.NoError(t, e.Commit(tx))

	tx2 := e.Begin(RepeatableRead)
	csr2, err := e.CursorOpen(indexID, tx2)
	require.NoError(t, err)
	_, found, err := csr2.CursorSearch(int64(1), MatchEQ)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, csr2.CursorUpdate(
		[]interface{}{int64(1), "a", decimal.NewFromInt(1)},
		[]interface{}{int64(1), "b", decimal.NewFromInt(2)},
	))
	require.NoError(t, e.Commit(tx2))

	tx3 := e.Begin(RepeatableRead)
	csr3, err := e.CursorOpen(indexID, tx3)
	require.NoError(t, err)
	values, found, err := csr3.CursorSearch(int64(1), MatchEQ)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", values[1])
	require.NoError(t, csr3.CursorDelete())
	require.NoError(t, e.Commit(tx3))

	tx4 := e.BeginReadOnly(RepeatableRead)
	csr4, err := e.CursorOpen(indexID, tx4)
	require.NoError(t, err)
	_, found, err = csr4.CursorSearch(int64(1), MatchEQ)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTransactionRollbackUndoesInsert(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	require.NoError(t, csr.CursorInsert([]interface{}{int64(1), "a", decimal.NewFromInt(1)}))
	require.NoError(t, e.Rollback(tx))

	reader := e.BeginReadOnly(RepeatableRead)
	rc, err := e.CursorOpen(indexID, reader)
	require.NoError(t, err)
	_, found, err := rc.CursorSearch(int64(1), MatchEQ)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCursorOpenUnknownIndexFails(t *testing.T) {
	e := openTestEngine(t)
	tx := e.Begin(RepeatableRead)
	_, err := e.CursorOpen(999, tx)
	require.ErrorIs(t, err, enginerr.ErrSchemaError)
}

func TestCursorSearchGEFindsNextKey(t *testing.T) {
	e := openTestEngine(t)
	indexID, err := e.CreateTable(ordersSchema())
	require.NoError(t, err)

	tx := e.Begin(RepeatableRead)
	csr, err := e.CursorOpen(indexID, tx)
	require.NoError(t, err)
	require.NoError(t, csr.CursorInsert([]interface{}{int64(10), "ten", decimal.NewFromInt(10)}))
	require.NoError(t, csr.CursorInsert([]interface{}{int64(20), "twenty", decimal.NewFromInt(20)}))
	require.NoError(t, e.Commit(tx))

	reader := e.BeginReadOnly(RepeatableRead)
	rc, err := e.CursorOpen(indexID, reader)
	require.NoError(t, err)
	values, found, err := rc.CursorSearch(int64(15), MatchGE)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(20), values[0])
}
