package ssbtree

import (
	"errors"

	"github.com/pmkv/ssbtree/internal/epoch"
	"github.com/pmkv/ssbtree/internal/pmpool"
	"github.com/pmkv/ssbtree/internal/pnode"
)

// promoteUp implements the split half of horizontal rebalancing. parent
// must already be locked by the caller and childOff must be the offset of
// the child about to be visited. If the child's live
// count has reached the split high-watermark Rnum (see Tree.needsSplit),
// it is split under its own lock and a new separator for the freshly
// allocated sibling is inserted into parent in the same pass, keeping
// the tree's shape correct before the traversal ever descends into the
// (now safely sized) child.
//
// It returns the possibly-updated parent header and the offset the
// traversal should now descend into (unchanged unless key fell into the
// new sibling).
func (t *Tree) promoteUp(parent *pnode.Node, ph pnode.Header, childOff uint64, key uint64) (pnode.Header, uint64, error) {
	child := t.pool.View(childOff)
	child.Mutex().Lock()
	defer child.Mutex().Unlock()

	ch := child.LoadHeader()
	if !t.needsSplit(ch) {
		return ph, childOff, nil
	}

	newCH, sib, err := child.Split(ch, poolAllocator{t.pool})
	if err != nil {
		if errors.Is(err, pmpool.ErrFull) {
			err = ErrPoolFull
		}
		return ph, childOff, err
	}
	child.StoreHeader(newCH)
	if err := child.FlushHeader(true); err != nil {
		return ph, childOff, err
	}

	sibHeader := sib.LoadHeader()
	sepKey := sib.VirtualAt(sibHeader, 0).Key

	ph, err = parent.UpKey(ph, sepKey, uint64(sib.Offset()))
	if err != nil {
		return ph, childOff, err
	}
	parent.StoreHeader(ph)
	if err := parent.FlushHeader(true); err != nil {
		return ph, childOff, err
	}

	t.nodes.Add(1)
	t.splits.Add(1)

	if key >= sepKey {
		return ph, uint64(sib.Offset()), nil
	}
	return ph, childOff, nil
}

// demoteDown implements the merge half of horizontal rebalancing. parent
// must already be locked by the caller. If the child named by the
// separator at childIdx has fallen under the merge threshold, its
// immediate right sibling (also named in parent) is folded into it under
// both nodes' locks, and the right sibling's now-redundant separator is
// removed from parent. The child that survives is always the left-hand
// one, per Merge's same-slot append direction; the right one is retired.
func (t *Tree) demoteDown(parent *pnode.Node, ph pnode.Header, childIdx int, ti *epoch.ThreadInfo) (pnode.Header, error) {
	n := parent.VirtualLen(ph)
	if childIdx+1 >= n {
		// no right sibling known to parent; nothing to merge with here.
		return ph, nil
	}

	leftOff := parent.VirtualAt(ph, childIdx).Value
	rightOff := parent.VirtualAt(ph, childIdx+1).Value

	left := t.pool.View(leftOff)
	left.Mutex().Lock()
	defer left.Mutex().Unlock()

	lh := left.LoadHeader()
	if int(lh.Number()) >= t.lnum {
		return ph, nil
	}

	right := t.pool.View(rightOff)

	_, merged, err := left.Merge(lh, right, t.lnum)
	if err != nil || !merged {
		return ph, err
	}
	// left's new header and right's obsolete mark are both already stored
	// and flushed inside Merge, in that order.

	sepKey := parent.VirtualAt(ph, childIdx+1).Key
	ph, _, err = parent.DownKey(ph, sepKey)
	if err != nil {
		return ph, err
	}
	parent.StoreHeader(ph)
	if err := parent.FlushHeader(true); err != nil {
		return ph, err
	}

	t.merges.Add(1)
	t.retires.Add(1)

	ti.Retire(func() {
		t.pool.FreeNode(rightOff)
		t.nodes.Add(-1)
	})

	return ph, nil
}

// poolAllocator adapts *pmpool.Pool to pnode.Allocator.
type poolAllocator struct{ pool *pmpool.Pool }

func (a poolAllocator) AllocNode() (*pnode.Node, error) { return a.pool.AllocNode() }
