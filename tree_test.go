package ssbtree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkv/ssbtree"
)

func open(t *testing.T) *ssbtree.Tree {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tree.pm")
	tree, err := ssbtree.Open(ssbtree.Options{Path: path, PoolSize: 8 << 20})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tree.Close() })

	return tree
}

func TestPutThenGetRoundTrips(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.NoError(t, tree.Put(ti, 42, 4200))

	value, ok, err := tree.Lookup(ti, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4200, value)
}

func TestLookupMissingKeyIsNotFoundNotError(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	_, ok, err := tree.Lookup(ti, 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutOverwritesExistingValue(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.NoError(t, tree.Put(ti, 7, 1))
	require.NoError(t, tree.Put(ti, 7, 2))

	value, ok, err := tree.Lookup(ti, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, value)
}

func TestRemoveThenLookupMisses(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.NoError(t, tree.Put(ti, 5, 50))
	require.NoError(t, tree.Remove(ti, 5))

	_, ok, err := tree.Lookup(ti, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveAbsentKeyIsSilentSuccess(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.NoError(t, tree.Remove(ti, 123))
}

func TestUpdateOnlyChangesExistingKey(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.NoError(t, tree.Put(ti, 1, 10))

	ok, err := tree.Update(ti, 1, 11)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Update(ti, 2, 22)
	require.NoError(t, err)
	require.False(t, ok)

	value, found, err := tree.Lookup(ti, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 11, value)
}

func TestSentinelKeysRejected(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	require.ErrorIs(t, tree.Put(ti, 0, 1), ssbtree.ErrInvalidKey)
	require.ErrorIs(t, tree.Put(ti, ^uint64(0), 1), ssbtree.ErrInvalidKey)
}

func TestManyInsertsForceSplitsAndGrowth(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	const n = 5000
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tree.Put(ti, i, i*10))
	}

	for i := uint64(1); i <= n; i += 97 {
		value, ok, err := tree.Lookup(ti, i)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, i*10, value)
	}

	stats := tree.Stats()
	require.Greater(t, stats.Height, 1)
	require.Greater(t, stats.Splits, uint64(0))
}

func TestInsertThenDeleteAllForcesMerges(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	const n = 3000
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tree.RemoveRebalance(ti, i))
	}

	for i := uint64(1); i <= n; i += 131 {
		_, ok, err := tree.Lookup(ti, i)
		require.NoError(t, err)
		require.False(t, ok)
	}

	stats := tree.Stats()
	require.EqualValues(t, 0, stats.Keys)
	require.Greater(t, stats.Merges, uint64(0))
}

// TestRemoveWithoutRebalanceLeavesUnderfullNodesInPlace documents the
// normalRemove/balanceRemove split: plain Remove deletes the key but
// never merges an underfull node into its sibling, so Merges stays at
// zero even after emptying the tree.
func TestRemoveWithoutRebalanceLeavesUnderfullNodesInPlace(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	const n = 3000
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}
	for i := uint64(1); i <= n; i++ {
		require.NoError(t, tree.Remove(ti, i))
	}

	for i := uint64(1); i <= n; i += 131 {
		_, ok, err := tree.Lookup(ti, i)
		require.NoError(t, err)
		require.False(t, ok)
	}

	stats := tree.Stats()
	require.EqualValues(t, 0, stats.Keys)
	require.EqualValues(t, 0, stats.Merges)
}

func TestScanReturnsAscendingInclusiveRange(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	for i := uint64(1); i <= 200; i++ {
		require.NoError(t, tree.Put(ti, i*2, i))
	}

	var keys []uint64
	n, err := tree.Scan(ti, 50, 150, 0, func(k, v uint64) bool {
		keys = append(keys, k)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, len(keys), n)

	require.NotEmpty(t, keys)
	require.Equal(t, uint64(50), keys[0])
	require.Equal(t, uint64(150), keys[len(keys)-1])
	for i, k := range keys {
		require.GreaterOrEqual(t, k, uint64(50))
		require.LessOrEqual(t, k, uint64(150))
		if i > 0 {
			require.Greater(t, k, keys[i-1])
		}
	}
}

// TestScanBoundedInclusiveRange is mandatory scenario E4: after a
// sequential insert of 1..1000, scan(250, 260, 100) must return exactly
// [250..260], 11 values, since the inclusive upper bound includes 260
// and the limit of 100 is well above the 11 matches actually present.
func TestScanBoundedInclusiveRange(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	for i := uint64(1); i <= 1000; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}

	var keys []uint64
	n, err := tree.Scan(ti, 250, 260, 100, func(k, v uint64) bool {
		keys = append(keys, k)
		require.Equal(t, k, v)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 11, n)

	want := make([]uint64, 0, 11)
	for i := uint64(250); i <= 260; i++ {
		want = append(want, i)
	}
	require.Equal(t, want, keys)
}

func TestScanRespectsLimit(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	for i := uint64(1); i <= 1000; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}

	var keys []uint64
	n, err := tree.Scan(ti, 1, 1000, 1000, func(k, v uint64) bool {
		keys = append(keys, k)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.Equal(t, uint64(1), keys[0])
	require.Equal(t, uint64(1000), keys[len(keys)-1])
}

func TestScanStopsEarlyWhenCallbackReturnsFalse(t *testing.T) {
	tree := open(t)
	ti := tree.RegisterThread()

	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}

	count := 0
	n, err := tree.Scan(ti, 1, 100, 0, func(k, v uint64) bool {
		count++
		return count < 5
	})
	require.NoError(t, err)
	require.Equal(t, 5, count)
	require.Equal(t, 5, n)
}

func TestReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")

	tree, err := ssbtree.Open(ssbtree.Options{Path: path, PoolSize: 8 << 20})
	require.NoError(t, err)
	ti := tree.RegisterThread()

	for i := uint64(1); i <= 500; i++ {
		require.NoError(t, tree.Put(ti, i, i*3))
	}
	require.NoError(t, tree.Close())

	reopened, err := ssbtree.Open(ssbtree.Options{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	ti2 := reopened.RegisterThread()
	for i := uint64(1); i <= 500; i += 17 {
		value, ok, err := reopened.Lookup(ti2, i)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, i*3, value)
	}
}
