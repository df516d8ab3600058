package pnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopSyncer struct{}

func (noopSyncer) SyncRange(offset, length int) error { return nil }

type arena struct {
	buf    []byte
	next   int
	syncer noopSyncer
}

func newArena(nodes int) *arena {
	return &arena{buf: make([]byte, nodes*Size)}
}

func (a *arena) AllocNode() (*Node, error) {
	off := a.next
	a.next += Size
	return View(a.buf[off:off+Size], off, a.syncer), nil
}

func (a *arena) at(off int) *Node {
	return View(a.buf[off:off+Size], off, a.syncer)
}

func TestHeaderPackRoundTrip(t *testing.T) {
	h := NewHeader(1234, 56, LazyPendingInsert, true, false, 2)
	require.EqualValues(t, 1234, h.Version())
	require.EqualValues(t, 56, h.Number())
	require.Equal(t, LazyPendingInsert, h.LazyFlag())
	require.True(t, h.Bottom())
	require.False(t, h.Obsolete())
	require.EqualValues(t, 2, h.RightGen())

	h2 := h.WithObsolete(true).BumpVersion(3)
	require.True(t, h2.Obsolete())
	require.EqualValues(t, 1237, h2.Version())
}

func TestLazyPayloadRoundTrip(t *testing.T) {
	payload := EncodeLazyPayload(12345, 0x0000123456789ABC)
	pos, val := DecodeLazyPayload(payload)
	require.EqualValues(t, 12345, pos)
	require.EqualValues(t, 0x0000123456789ABC, val)
}

func TestLazyPayloadSignExtendsNegative(t *testing.T) {
	// low 48 bits all set => value should sign-extend to -1 (all bits set).
	payload := EncodeLazyPayload(1, 0xFFFFFFFFFFFFFFFF)
	_, val := DecodeLazyPayload(payload)
	require.EqualValues(t, ^uint64(0), val)
}

func TestUpKeyAppendCase(t *testing.T) {
	a := newArena(1)
	n, _ := a.AllocNode()
	require.NoError(t, n.Init(true, 0, MaxKey))

	h := n.LoadHeader()
	newH, err := n.UpKey(h, 10, 100)
	require.NoError(t, err)
	n.StoreHeader(newH)

	val, found := n.Lookup(n.LoadHeader(), 10)
	require.True(t, found)
	require.EqualValues(t, 100, val)
}

func TestUpKeyInteriorThenMaterialize(t *testing.T) {
	a := newArena(1)
	n, _ := a.AllocNode()
	require.NoError(t, n.Init(true, 0, MaxKey))

	h := n.LoadHeader()
	for _, k := range []uint64{10, 20, 30} {
		h, _ = n.UpKey(h, k, k*10)
		n.StoreHeader(h)
		h = n.LoadHeader()
	}

	// interior insert: defers into the lazy-box (case 2).
	h, err := n.UpKey(h, 15, 150)
	require.NoError(t, err)
	n.StoreHeader(h)
	h = n.LoadHeader()
	require.Equal(t, LazyPendingInsert, h.LazyFlag())

	val, found := n.Lookup(h, 15)
	require.True(t, found)
	require.EqualValues(t, 150, val)

	// another interior insert while one is pending: shadow-slot COW.
	h, err = n.UpKey(h, 25, 250)
	require.NoError(t, err)
	n.StoreHeader(h)
	h = n.LoadHeader()
	require.Equal(t, LazyEmpty, h.LazyFlag())

	for _, tc := range []struct {
		key uint64
		val uint64
	}{{10, 100}, {15, 150}, {20, 200}, {25, 250}, {30, 300}} {
		v, found := n.Lookup(h, tc.key)
		require.True(t, found, "key %d", tc.key)
		require.Equal(t, tc.val, v, "key %d", tc.key)
	}
	require.EqualValues(t, 5, h.Number())
}

func TestDownKeyDeleteThenReinsert(t *testing.T) {
	a := newArena(1)
	n, _ := a.AllocNode()
	require.NoError(t, n.Init(true, 0, MaxKey))

	h := n.LoadHeader()
	for _, k := range []uint64{10, 20, 30, 40} {
		h, _ = n.UpKey(h, k, k)
		n.StoreHeader(h)
		h = n.LoadHeader()
	}

	h, found, err := n.DownKey(h, 20)
	require.NoError(t, err)
	require.True(t, found)
	n.StoreHeader(h)
	h = n.LoadHeader()

	_, found = n.Lookup(h, 20)
	require.False(t, found)

	h, err = n.UpKey(h, 20, 999)
	require.NoError(t, err)
	n.StoreHeader(h)
	h = n.LoadHeader()

	v, found := n.Lookup(h, 20)
	require.True(t, found)
	require.EqualValues(t, 999, v)
}

func TestDownKeyAbsentKeyIsNoop(t *testing.T) {
	a := newArena(1)
	n, _ := a.AllocNode()
	require.NoError(t, n.Init(true, 0, MaxKey))

	h := n.LoadHeader()
	h, _ = n.UpKey(h, 10, 10)
	n.StoreHeader(h)
	h = n.LoadHeader()

	before := h
	_, found, err := n.DownKey(h, 99)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, before, n.LoadHeader()) // no mutation observed
}

func TestSplitDistributesKeys(t *testing.T) {
	a := newArena(2)
	n, _ := a.AllocNode()
	require.NoError(t, n.Init(true, 0, MaxKey))

	h := n.LoadHeader()
	for i := uint64(0); i < uint64(F); i++ {
		h, _ = n.UpKey(h, i*2, i*2*10)
		n.StoreHeader(h)
		h = n.LoadHeader()
	}
	require.True(t, n.NeedsSplit(h))

	newH, sib, err := n.Split(h, a)
	require.NoError(t, err)
	n.StoreHeader(newH)
	newH = n.LoadHeader()

	total := int(newH.Number()) + int(sib.LoadHeader().Number())
	require.EqualValues(t, F, total)

	for i := uint64(0); i < uint64(F); i++ {
		key := i * 2
		if v, ok := n.Lookup(n.LoadHeader(), key); ok {
			require.EqualValues(t, key*10, v)
			continue
		}
		v, ok := sib.Lookup(sib.LoadHeader(), key)
		require.True(t, ok, "key %d missing from both halves", key)
		require.EqualValues(t, key*10, v)
	}

	require.EqualValues(t, uint64(sib.Offset()), n.Right(newH.RightGen()))
}

func TestMergeRecombinesSiblings(t *testing.T) {
	a := newArena(2)
	left, _ := a.AllocNode()
	require.NoError(t, left.Init(true, 0, MaxKey))
	right, _ := a.AllocNode()
	require.NoError(t, right.Init(true, 0, MaxKey))

	lh := left.LoadHeader()
	for _, k := range []uint64{10, 20} {
		lh, _ = left.UpKey(lh, k, k)
		left.StoreHeader(lh)
		lh = left.LoadHeader()
	}
	left.SetRight(lh.RightGen(), uint64(right.Offset()))
	left.SetMaxKey(lh.RightGen(), MaxKey)

	rh := right.LoadHeader()
	for _, k := range []uint64{30, 40} {
		rh, _ = right.UpKey(rh, k, k)
		right.StoreHeader(rh)
		rh = right.LoadHeader()
	}

	merged, ok, err := left.Merge(lh, right, 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, merged, left.LoadHeader())

	require.EqualValues(t, 4, merged.Number())
	for _, k := range []uint64{10, 20, 30, 40} {
		v, found := left.Lookup(merged, k)
		require.True(t, found, "key %d", k)
		require.Equal(t, k, v)
	}
	require.True(t, right.LoadHeader().Obsolete())
}
