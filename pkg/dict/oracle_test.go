package dict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMeta(id uint64) IndexMeta {
	return IndexMeta{
		IndexID: id, SpaceID: 7, RootPageNo: 4, LeafSegID: 1, NonLeafSegID: 2,
		Schema: Schema{
			TableName: "orders",
			Columns: []ColumnDef{
				{Name: "id", Type: TypeInt64},
				{Name: "note", Type: TypeVarChar, MaxLen: 255},
				{Name: "total", Type: TypeDecimal},
			},
			PrimaryKey: 0,
		},
	}
}

func testOracle(t *testing.T, o Oracle) {
	t.Helper()
	_, found, err := o.Get(1)
	require.NoError(t, err)
	require.False(t, found)

	meta := sampleMeta(1)
	require.NoError(t, o.Put(meta))

	got, found, err := o.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, meta, got)

	require.NoError(t, o.Put(sampleMeta(2)))
	all, err := o.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, o.Delete(1))
	_, found, err = o.Get(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemOracle(t *testing.T) {
	testOracle(t, NewMemOracle())
}

func TestBoltOracle(t *testing.T) {
	dir := t.TempDir()
	o, err := OpenBolt(filepath.Join(dir, "dict.bolt"))
	require.NoError(t, err)
	defer o.Close()
	testOracle(t, o)
}

func TestBoltOraclePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.bolt")

	o1, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, o1.Put(sampleMeta(9)))
	require.NoError(t, o1.Close())

	o2, err := OpenBolt(path)
	require.NoError(t, err)
	defer o2.Close()
	got, found, err := o2.Get(9)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(7), got.SpaceID)
}
