// Package ssbtree implements a concurrent, persistent, ordered 64-bit
// key/value index: a B+-tree-like structure whose nodes are laid out for
// byte-addressable persistent memory, supporting point lookup, insert,
// update, delete and bounded range scan under high contention, with crash
// consistency after unclean shutdown.
package ssbtree

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/pmkv/ssbtree/internal/epoch"
	"github.com/pmkv/ssbtree/internal/pmpool"
	"github.com/pmkv/ssbtree/internal/pnode"
)

// Tree is a handle to an open index. The zero value is not usable; obtain
// one via Open.
type Tree struct {
	pool   *pmpool.Pool
	epoche *epoch.Epoche
	logger *slog.Logger

	lnum int
	rnum int

	closed atomic.Bool

	keys    atomic.Int64
	nodes   atomic.Int64
	height  atomic.Int64
	splits  atomic.Uint64
	merges  atomic.Uint64
	retires atomic.Uint64
}

// Open creates a new pool at opts.Path if it does not exist, or reopens an
// existing one, revalidating its root header.
func Open(opts Options) (*Tree, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("ssbtree: Options.Path is required")
	}

	lnum, rnum := opts.Lnum, opts.Rnum
	if lnum == 0 && rnum == 0 {
		lnum, rnum = DefaultLnum, DefaultRnum
	}
	if !validateThresholds(lnum, rnum) {
		return nil, fmt.Errorf("ssbtree: invalid thresholds Lnum=%d Rnum=%d", lnum, rnum)
	}

	poolSize := opts.PoolSize
	if poolSize == 0 {
		poolSize = DefaultPoolSize
	}

	var (
		pool *pmpool.Pool
		err  error
	)

	if _, statErr := os.Stat(opts.Path); os.IsNotExist(statErr) {
		pool, err = pmpool.Create(opts.Path, poolSize, lnum, rnum)
	} else {
		pool, err = pmpool.Open(opts.Path)
		if err != nil {
			switch err {
			case pmpool.ErrCorrupt:
				err = ErrCorrupt
			case pmpool.ErrIncompatible:
				err = ErrIncompatible
			}
		}
	}
	if err != nil {
		return nil, err
	}

	t := &Tree{
		pool:   pool,
		epoche: epoch.New(),
		logger: opts.Logger,
		lnum:   int(pool.Lnum()),
		rnum:   int(pool.Rnum()),
	}
	t.height.Store(1)

	if t.logger != nil {
		t.logger.Info("ssbtree opened", "path", opts.Path, "lnum", t.lnum, "rnum", t.rnum)
	}

	return t, nil
}

// Close releases the pool. Outstanding ThreadInfo handles must not be used
// afterward.
func (t *Tree) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.epoche.Quiesce()
	return t.pool.Close()
}

// RegisterThread binds a new ThreadInfo to this tree's epoch registry. Each
// calling goroutine should register once and reuse the handle, per the
// epoch reclamation component's design.
func (t *Tree) RegisterThread() *epoch.ThreadInfo {
	return t.epoche.Register()
}

// Stats returns a point-in-time snapshot of tree-wide counters.
func (t *Tree) Stats() Stats {
	return Stats{
		Keys:       t.keys.Load(),
		Nodes:      t.nodes.Load(),
		Height:     int(t.height.Load()),
		Splits:     t.splits.Load(),
		Merges:     t.merges.Load(),
		Retires:    t.retires.Load(),
		Generation: t.pool.Generation(),
	}
}

// Generation exposes the pool's root-publish counter.
func (t *Tree) Generation() uint64 { return t.pool.Generation() }

// needsSplit reports whether a node has reached the split high-watermark
// Rnum and should be preemptively split before the traversal ever
// descends into it. Rnum (default 27), capped at the hard per-slot
// capacity F (35), is the threshold that drives this decision: the cap
// keeps the threshold at or below F, so the upcoming insert on a node
// that was not split can never overflow it, matching the "if that walk
// traversed more than Rnum total live pairs" promote-up rule.
func (t *Tree) needsSplit(h pnode.Header) bool {
	return int(h.Number()) >= min(t.rnum, pnode.F)
}

// head returns a view of the pool's fixed top sentinel node. Its pool
// offset never changes across the tree's lifetime; only its content does,
// via growRoot/shrinkRoot and ordinary upKey/downKey calls.
func (t *Tree) head() *pnode.Node { return t.pool.View(t.pool.Head()) }

// cloneInto resolves src's virtual sequence (under srcHeader) into dst,
// which must already be a freshly Init'd, empty node, one insert at a
// time. It is used by growRoot and shrinkRoot to relocate a node's entire
// content, reusing the already-proven UpKey append path rather than a
// separate bulk-copy primitive. Every pair is appended in ascending order,
// so each UpKey call always takes the fast tail-append case and the
// version parity of dst never flips mid-loop.
func cloneInto(dst, src *pnode.Node, srcHeader pnode.Header) (pnode.Header, error) {
	dh := dst.LoadHeader()
	n := src.VirtualLen(srcHeader)

	for i := 0; i < n; i++ {
		p := src.VirtualAt(srcHeader, i)
		var err error
		dh, err = dst.UpKey(dh, p.Key, p.Value)
		if err != nil {
			return dh, err
		}
	}

	return dh, nil
}

// growRoot is called when head itself has accumulated enough separators
// that it would need to split, but head has no parent to receive the new
// separator (it is the traversal's fixed entry point). Its content is
// relocated into a freshly allocated node, and head is reset to a single
// separator pointing at that node, adding one level of height. The
// caller must hold head's Mutex locked on entry and leaves it locked on
// return.
func (t *Tree) growRoot(h pnode.Header) error {
	head := t.head()

	newTop, err := t.pool.AllocNode()
	if err != nil {
		return ErrPoolFull
	}
	rightOff := head.Right(h.RightGen())
	maxKey := head.MaxKey(h.RightGen())
	if err := newTop.Init(h.Bottom(), rightOff, maxKey); err != nil {
		return err
	}

	nh, err := cloneInto(newTop, head, h)
	if err != nil {
		return err
	}
	newTop.StoreHeader(nh)
	if err := newTop.FlushHeader(true); err != nil {
		return err
	}

	if err := head.Init(false, uint64(t.pool.Tail()), pnode.MaxKey); err != nil {
		return err
	}
	hh := head.LoadHeader()
	hh, err = head.UpKey(hh, pnode.MinKey, uint64(newTop.Offset()))
	if err != nil {
		return err
	}
	head.StoreHeader(hh)
	if err := head.FlushHeader(true); err != nil {
		return err
	}

	if err := t.pool.PublishRoot(t.pool.Head(), uint64(newTop.Offset())); err != nil {
		return err
	}

	t.nodes.Add(1)
	t.height.Add(1)
	t.splits.Add(1)

	if t.logger != nil {
		t.logger.Debug("ssbtree root grew", "height", t.height.Load())
	}

	return nil
}

// shrinkRoot is called when head has collapsed down to a single
// separator whose child is itself an internal node: that child's content
// is folded back into head in place, freeing the child and removing one
// level of height. It never collapses head below wrapping a leaf. The
// caller must hold head's Mutex locked on entry and leaves it locked on
// return; ti is used to retire the freed child node.
func (t *Tree) shrinkRoot(h pnode.Header, ti *epoch.ThreadInfo) error {
	head := t.head()
	if head.VirtualLen(h) != 1 {
		return nil
	}

	child := t.pool.View(head.VirtualAt(h, 0).Value)
	ch := child.LoadHeader()
	if ch.Bottom() {
		return nil
	}

	rightOff := child.Right(ch.RightGen())
	maxKey := child.MaxKey(ch.RightGen())
	if err := head.Init(ch.Bottom(), rightOff, maxKey); err != nil {
		return err
	}

	hh := head.LoadHeader()
	hh, err := cloneInto(head, child, ch)
	if err != nil {
		return err
	}
	head.StoreHeader(hh)
	if err := head.FlushHeader(true); err != nil {
		return err
	}

	if err := t.pool.PublishRoot(t.pool.Head(), t.pool.Head()); err != nil {
		return err
	}

	childOff := uint64(child.Offset())
	t.retires.Add(1)
	t.height.Add(-1)
	ti.Retire(func() {
		t.pool.FreeNode(childOff)
		t.nodes.Add(-1)
	})

	if t.logger != nil {
		t.logger.Debug("ssbtree root shrank", "height", t.height.Load())
	}

	return nil
}
