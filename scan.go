package ssbtree

import (
	"github.com/pmkv/ssbtree/internal/epoch"
	"github.com/pmkv/ssbtree/internal/pnode"
)

// Scan invokes fn for every key in the inclusive range [lo, hi] in
// ascending order, stopping once limit results have been delivered (a
// non-positive limit means unlimited) or as soon as fn returns false. It
// returns the number of pairs delivered to fn. Like Lookup it is
// lock-free: each leaf is read under a version stamp captured before and
// re-checked after, and the whole scan restarts from the leaf containing
// lo if a concurrent structural change is detected mid-leaf (the
// seqlock-style retry mentioned for bounded range scans).
func (t *Tree) Scan(ti *epoch.ThreadInfo, lo, hi uint64, limit int, fn func(key, value uint64) bool) (int, error) {
	if lo > hi {
		return 0, nil
	}
	if t.closed.Load() {
		return 0, ErrClosed
	}

	g := ti.Enter()
	defer g.Exit()

	count := 0

restart:
	leaf, h := t.leafContaining(lo)

	for {
		n := leaf.VirtualLen(h)
		start := 0
		if lo != pnode.MinKey {
			start = leaf.VirtualUpperBound(h, lo-1)
		}

		for i := start; i < n; i++ {
			p := leaf.VirtualAt(h, i)
			if p.Key > hi {
				h2 := leaf.LoadHeader()
				if !pnode.ReadCheckVersion(h, h2) {
					goto restart
				}
				return count, nil
			}
			if limit > 0 && count >= limit {
				h2 := leaf.LoadHeader()
				if !pnode.ReadCheckVersion(h, h2) {
					goto restart
				}
				return count, nil
			}

			cont := fn(p.Key, p.Value)
			count++
			if !cont {
				h2 := leaf.LoadHeader()
				if !pnode.ReadCheckVersion(h, h2) {
					goto restart
				}
				return count, nil
			}
		}

		h2 := leaf.LoadHeader()
		if !pnode.ReadCheckVersion(h, h2) {
			goto restart
		}

		rightOff := leaf.Right(h.RightGen())
		if rightOff == 0 {
			return count, nil
		}
		nextLeaf := t.pool.View(rightOff)
		nh := nextLeaf.LoadHeader()
		if !pnode.RightCheck(h, h2) {
			goto restart
		}

		leaf, h = nextLeaf, nh
	}
}

// leafContaining performs a lock-free descent to the leaf that would
// contain key, used as Scan's starting point.
func (t *Tree) leafContaining(key uint64) (*pnode.Node, pnode.Header) {
	cur := t.head()
	h := cur.LoadHeader()

	for !h.Bottom() {
		_, childOff := route(cur, h, key)
		cur = t.pool.View(childOff)
		h = cur.LoadHeader()
	}

	return cur, h
}
