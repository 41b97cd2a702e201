package btree

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	dir := t.TempDir()
	space, err := fsp.Create(filepath.Join(dir, "test.ibd"), 7)
	require.NoError(t, err)
	t.Cleanup(func() { space.Close() })

	logMgr, err := wal.Open(wal.Config{Dir: dir, BufferRecords: 1000, FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { logMgr.Close() })

	pool := buffer.New(buffer.DefaultConfig(64), logMgr)
	pool.RegisterSpace(space.ID, space)

	tr, err := Create(pool, space, logMgr, 1, BytesComparator)
	require.NoError(t, err)
	return tr
}

func insert(t *testing.T, tr *Tree, key, value string) {
	t.Helper()
	m := mtr.Start(tr.pool, tr.log, 0)
	err := tr.Insert(m, []byte(key), []byte(value))
	require.NoError(t, err)
	_, _, err = m.Commit()
	require.NoError(t, err)
}

func lookup(t *testing.T, tr *Tree, key string) (string, bool) {
	t.Helper()
	m := mtr.Start(tr.pool, tr.log, 0)
	defer m.Discard()
	value, _, _, found, err := tr.Search(m, []byte(key))
	require.NoError(t, err)
	if !found {
		return "", false
	}
	return string(value), true
}

func TestInsertAndSearch(t *testing.T) {
	tr := newTestTree(t)
	insert(t, tr, "b", "2")
	insert(t, tr, "a", "1")
	insert(t, tr, "c", "3")

	v, ok := lookup(t, tr, "a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	v, ok = lookup(t, tr, "b")
	require.True(t, ok)
	require.Equal(t, "2", v)

	_, ok = lookup(t, tr, "missing")
	require.False(t, ok)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tr := newTestTree(t)
	insert(t, tr, "a", "1")

	m := mtr.Start(tr.pool, tr.log, 0)
	defer m.Discard()
	err := tr.Insert(m, []byte("a"), []byte("2"))
	require.ErrorIs(t, err, enginerr.ErrDuplicateKey)
}

func TestInsertEmptyKeyFails(t *testing.T) {
	tr := newTestTree(t)
	m := mtr.Start(tr.pool, tr.log, 0)
	defer m.Discard()
	err := tr.Insert(m, nil, []byte("x"))
	require.ErrorIs(t, err, enginerr.ErrInvalidInput)
}

// TestSplitAcrossManyInserts forces enough inserts that the root page
// must split at least once (a 16 KiB page fits a few hundred of these
// small records), exercising splitPage/growRoot and the leaf-sibling
// chain range scan together.
func TestSplitAcrossManyInserts(t *testing.T) {
	tr := newTestTree(t)
	const n = 800
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		val := fmt.Sprintf("val-%05d", i)
		insert(t, tr, key, val)
	}

	for i := 0; i < n; i += 37 {
		key := fmt.Sprintf("key-%05d", i)
		want := fmt.Sprintf("val-%05d", i)
		got, ok := lookup(t, tr, key)
		require.True(t, ok, "missing %s", key)
		require.Equal(t, want, got)
	}

	m := mtr.Start(tr.pool, tr.log, 0)
	defer m.Discard()
	cur, err := tr.SeekFirst(m)
	require.NoError(t, err)

	count := 0
	var prevKey []byte
	for {
		k, _, ok, err := cur.Next(m)
		require.NoError(t, err)
		if !ok {
			break
		}
		if prevKey != nil {
			require.Less(t, string(prevKey), string(k))
		}
		prevKey = k
		count++
	}
	require.Equal(t, n, count, "range scan must visit every inserted key exactly once")
}

func TestDeleteMarksThenPurgeRemoves(t *testing.T) {
	tr := newTestTree(t)
	insert(t, tr, "a", "1")
	insert(t, tr, "b", "2")

	m := mtr.Start(tr.pool, tr.log, 0)
	pageNo, heapNo, found, err := tr.Delete(m, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	_, _, err = m.Commit()
	require.NoError(t, err)

	_, ok := lookup(t, tr, "a")
	require.False(t, ok, "delete-marked record must not be visible to Search")

	require.NoError(t, tr.PurgeDeleted(tr.spaceID, pageNo, heapNo))

	_, ok = lookup(t, tr, "a")
	require.False(t, ok)
	v, ok := lookup(t, tr, "b")
	require.True(t, ok)
	require.Equal(t, "2", v)
}

func TestDeleteMissingKeyReportsNotFound(t *testing.T) {
	tr := newTestTree(t)
	insert(t, tr, "a", "1")

	m := mtr.Start(tr.pool, tr.log, 0)
	defer m.Discard()
	_, _, found, err := tr.Delete(m, []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestHeapNumbersStayStableAcrossRebuilds(t *testing.T) {
	tr := newTestTree(t)
	insert(t, tr, "a", "1")

	m := mtr.Start(tr.pool, tr.log, 0)
	_, _, _, found, err := tr.Search(m, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	_, pageNoBefore, heapNoBefore, _, _ := tr.Search(m, []byte("a"))
	m.Discard()

	insert(t, tr, "b", "2")
	insert(t, tr, "c", "3")

	m2 := mtr.Start(tr.pool, tr.log, 0)
	defer m2.Discard()
	_, pageNoAfter, heapNoAfter, found, err := tr.Search(m2, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pageNoBefore, pageNoAfter)
	require.Equal(t, heapNoBefore, heapNoAfter)
}
