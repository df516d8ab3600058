package pmpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmkv/ssbtree/internal/pnode"
)

func TestCreateThenOpenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")

	p, err := Create(path, 1<<20, 14, 27)
	require.NoError(t, err)

	head, tail, root := p.Head(), p.Tail(), p.Root()
	require.NotZero(t, head)
	require.NotZero(t, tail)
	require.NotZero(t, root)
	require.NoError(t, p.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, head, reopened.Head())
	require.Equal(t, tail, reopened.Tail())
	require.Equal(t, root, reopened.Root())
	require.EqualValues(t, 14, reopened.Lnum())
	require.EqualValues(t, 27, reopened.Rnum())
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")

	p, err := Create(path, 1<<20, 14, 27)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	// Flip a byte inside the header region, outside the CRC field itself.
	reopened.data[0x20] ^= 0xFF
	require.NoError(t, reopened.SyncRange(0, headerSize))
	require.NoError(t, reopened.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestAllocNodeReusesFreedSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")
	p, err := Create(path, 1<<20, 14, 27)
	require.NoError(t, err)
	defer p.Close()

	n1, err := p.AllocNode()
	require.NoError(t, err)
	off := uint64(n1.Offset())

	p.FreeNode(off)

	n2, err := p.AllocNode()
	require.NoError(t, err)
	require.EqualValues(t, off, n2.Offset())
}

func TestAllocNodeReturnsErrFullAtCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.pm")
	// Small pool: headerSize + a handful of node slots.
	size := int64(headerSize) + 5*int64(pnode.Size)
	p, err := Create(path, size, 14, 27)
	require.NoError(t, err)
	defer p.Close()

	// Create() already consumed 3 slots (head, tail, root leaf); 2 remain.
	_, err = p.AllocNode()
	require.NoError(t, err)
	_, err = p.AllocNode()
	require.NoError(t, err)

	_, err = p.AllocNode()
	require.ErrorIs(t, err, ErrFull)
}
