package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadViewVisibility(t *testing.T) {
	// trx 10 snapshots while 5 and 7 are active and 11 is the next id.
	rv := NewReadView([]uint64{5, 7}, 11, 10)

	require.True(t, rv.IsVisible(10), "creator always sees its own writes")
	require.True(t, rv.IsVisible(3), "below up-limit: predates every active trx")
	require.False(t, rv.IsVisible(5), "active at snapshot time")
	require.False(t, rv.IsVisible(7), "active at snapshot time")
	require.True(t, rv.IsVisible(6), "not active, below low-limit, not the min active id")
	require.False(t, rv.IsVisible(11), "did not exist yet at snapshot time")
	require.False(t, rv.IsVisible(20), "did not exist yet at snapshot time")
}

func TestReadViewNoActiveTransactions(t *testing.T) {
	rv := NewReadView(nil, 5, 1)
	require.True(t, rv.IsVisible(1))
	require.True(t, rv.IsVisible(4))
	require.False(t, rv.IsVisible(5))
}

type fakeResolver struct {
	owners map[RollPtr]uint64
	images map[RollPtr][]byte
	prev   map[RollPtr]RollPtr
}

func (f *fakeResolver) VersionTrxID(r RollPtr) (uint64, bool) {
	trxID, ok := f.owners[r]
	return trxID, ok
}

func (f *fakeResolver) VersionPreImage(r RollPtr) ([]byte, RollPtr, bool) {
	img, ok := f.images[r]
	return img, f.prev[r], ok
}

func TestResolveReturnsCurrentWhenVisible(t *testing.T) {
	rv := NewReadView(nil, 5, 4)
	img, ok := Resolve(rv, 3, RollPtr{}, &fakeResolver{})
	require.True(t, ok)
	require.Nil(t, img, "nil preImage signals caller should use the record's current image")
}

func TestResolveWalksChainToVisibleVersion(t *testing.T) {
	r1 := RollPtr{TrxID: 9, Seq: 1}
	r2 := RollPtr{TrxID: 9, Seq: 2}
	resolver := &fakeResolver{
		owners: map[RollPtr]uint64{r1: 9, r2: 9},
		images: map[RollPtr][]byte{r1: []byte("v1"), r2: []byte("v2")},
		prev:   map[RollPtr]RollPtr{r1: {}, r2: r1},
	}
	// trx 9 is active at snapshot time: its current row (trx-id 9) isn't
	// visible, so the reader must walk roll-ptr r2 -> r1, and r1's own
	// owner (9) is still active too, so it isn't visible either, and the
	// chain bottoms out.
	rv := NewReadView([]uint64{9}, 10, 1)
	_, ok := Resolve(rv, 9, r2, resolver)
	require.False(t, ok)
}

func TestResolveFindsOlderVisibleVersion(t *testing.T) {
	r1 := RollPtr{TrxID: 2, Seq: 1}
	resolver := &fakeResolver{
		owners: map[RollPtr]uint64{r1: 2},
		images: map[RollPtr][]byte{r1: []byte("old")},
		prev:   map[RollPtr]RollPtr{r1: {}},
	}
	// the current row was written by trx 9 (active, not visible); its
	// roll-ptr points to a version written by trx 2, which committed
	// before the snapshot.
	rv := NewReadView([]uint64{9}, 10, 1)
	img, ok := Resolve(rv, 9, r1, resolver)
	require.True(t, ok)
	require.Equal(t, []byte("old"), img)
}
