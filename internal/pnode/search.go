package pnode

// StoredCount returns the number of physical pairs present in the live
// shadow slot, which differs from the logical count (h.Number()) by the
// lazy-box's pending effect: one fewer for a pending insert (not yet
// materialized), one more for a pending delete (not yet removed).
func StoredCount(h Header) int {
	switch h.LazyFlag() {
	case LazyPendingInsert:
		return int(h.Number()) - 1
	case LazyPendingDelete:
		return int(h.Number()) + 1
	default:
		return int(h.Number())
	}
}

// SearchSlot returns the number of physical pairs in slot[0:storedCount)
// whose key is <= key (the upper-bound insertion index). It starts at the
// slot's midpoint when the stored pair just before it is <= key; the
// cached MidKey is not consulted.
func (n *Node) SearchSlot(slot, storedCount int, key uint64) int {
	start := 0

	if storedCount > 1 {
		mid := storedCount / 2
		if n.Pair(slot, mid-1).Key <= key {
			start = mid
		}
	}

	idx := start
	for idx < storedCount && n.Pair(slot, idx).Key <= key {
		idx++
	}

	return idx
}

// VirtualUpperBound returns the logical upper-bound index (count of logical
// pairs with Key <= key) without touching the array beyond one SearchSlot
// call: the lazy-box contributes at most one pair to the virtual sequence,
// so the stored-array answer only ever needs a +/-1 correction.
func (n *Node) VirtualUpperBound(h Header, key uint64) int {
	slot := h.LiveSlot()
	stored := StoredCount(h)
	physIdx := n.SearchSlot(slot, stored, key)

	switch h.LazyFlag() {
	case LazyPendingInsert:
		lb := n.LazyBox()
		if lb.Key <= key {
			return physIdx + 1
		}
		return physIdx
	case LazyPendingDelete:
		lb := n.LazyBox()
		if lb.Key <= key {
			return physIdx - 1
		}
		return physIdx
	default:
		return physIdx
	}
}

// VirtualLen returns the logical pair count, equal to the header's live
// count field by construction.
func (n *Node) VirtualLen(h Header) int {
	return int(h.Number())
}

// VirtualAt returns the i-th (0-indexed) pair of the logical sequence,
// resolving the lazy-box position if one is pending.
func (n *Node) VirtualAt(h Header, i int) Pair {
	slot := h.LiveSlot()

	switch h.LazyFlag() {
	case LazyPendingInsert:
		lb := n.LazyBox()
		pos, val := DecodeLazyPayload(lb.Value)
		p := int(pos)
		switch {
		case i < p:
			return n.Pair(slot, i)
		case i == p:
			return Pair{Key: lb.Key, Value: val}
		default:
			return n.Pair(slot, i-1)
		}
	case LazyPendingDelete:
		lb := n.LazyBox()
		pos, _ := DecodeLazyPayload(lb.Value)
		p := int(pos)
		if i < p {
			return n.Pair(slot, i)
		}
		return n.Pair(slot, i+1)
	default:
		return n.Pair(slot, i)
	}
}

// Lookup performs a point lookup against the logical sequence described by
// h, returning (value, true) if key is present.
func (n *Node) Lookup(h Header, key uint64) (uint64, bool) {
	lb := n.LazyBox()

	switch h.LazyFlag() {
	case LazyPendingInsert:
		if key == lb.Key {
			_, val := DecodeLazyPayload(lb.Value)
			return val, true
		}
	case LazyPendingDelete:
		if key == lb.Key {
			return 0, false
		}
	}

	slot := h.LiveSlot()
	stored := StoredCount(h)
	idx := n.SearchSlot(slot, stored, key)

	if idx > 0 {
		if p := n.Pair(slot, idx-1); p.Key == key {
			return p.Value, true
		}
	}

	return 0, false
}
