package ssbtree_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkv/ssbtree"
)

// TestCorruptHeaderRejectedOnReopen exercises the crash-consistency
// invariant at the ssbtree level: a pool whose root header fails its
// CRC check (the on-disk signal that the header write region was left
// in a torn state) must be rejected by Open rather than silently
// admitting a partially-written structure. The lower-level, byte-exact
// version of this test lives in internal/pmpool; this one confirms the
// sentinel survives translation across the package boundary.
func TestCorruptHeaderRejectedOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")

	tree, err := ssbtree.Open(ssbtree.Options{Path: path, PoolSize: 4 << 20})
	require.NoError(t, err)
	ti := tree.RegisterThread()
	require.NoError(t, tree.Put(ti, 1, 1))
	require.NoError(t, tree.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, 0x20)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = ssbtree.Open(ssbtree.Options{Path: path})
	require.ErrorIs(t, err, ssbtree.ErrCorrupt)
}

// TestFlushBeforePublishSurvivesMidWriteTruncation simulates a crash
// landing after a node's body was flushed but before every downstream
// write completed, by truncating the file mid-way through a bulk insert
// and reopening. Because every node publishes its header only after its
// body is durable (flush-before-publish, see internal/flush), whatever
// prefix of the file survived the truncation must still decode to a
// self-consistent pool: Open must either succeed (if the root header
// region itself survived) or report ErrCorrupt (if it did not), never
// silently return a tree with readable-but-wrong data.
func TestFlushBeforePublishSurvivesMidWriteTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")

	tree, err := ssbtree.Open(ssbtree.Options{Path: path, PoolSize: 4 << 20})
	require.NoError(t, err)
	ti := tree.RegisterThread()
	for i := uint64(1); i <= 200; i++ {
		require.NoError(t, tree.Put(ti, i, i))
	}
	require.NoError(t, tree.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, info.Size()/2))

	_, err = ssbtree.Open(ssbtree.Options{Path: path})
	require.Error(t, err)
}
