package pnode

// Allocator supplies fresh node storage, backed by the persistent pool.
type Allocator interface {
	AllocNode() (*Node, error)
}

// NeedsSplit reports whether a node's logical count has reached the
// hard per-slot capacity F and must be split before any further insert
// can possibly succeed. This is the absolute ceiling; the tree package's
// preemptive rebalancing splits at the caller-supplied Rnum high-watermark
// capped at F, so a node on that write path is split before an insert
// could take it past F.
func (n *Node) NeedsSplit(h Header) bool {
	return int(h.Number()) >= F
}

// Split divides n's logical sequence across n (lower half) and a freshly
// allocated right sibling (upper half), links the sibling in under the
// currently-inactive right generation, and returns the header to publish on
// n. The tree calls it from promoteUp, before descending into a node that
// has reached the split threshold; Split itself checks no threshold.
//
// Any lazy-box pending on n at the time of the call is resolved (via
// VirtualAt) into whichever half its key belongs to — simpler and just as
// correct as relocating the still-pending edit, since split already
// performs a full logical-sequence rebuild into untouched storage no reader
// can see yet.
func (n *Node) Split(h Header, alloc Allocator) (Header, *Node, error) {
	total := n.VirtualLen(h)
	half := total / 2
	upper := total - half

	sib, err := alloc.AllocNode()
	if err != nil {
		return h, nil, err
	}

	// Split never locks the new sibling: nothing can reach it until this
	// function links it in below.
	if err := sib.Init(h.Bottom(), 0, 0); err != nil {
		return h, nil, err
	}

	for i := 0; i < upper; i++ {
		sib.SetPair(0, i, n.VirtualAt(h, half+i))
	}
	if upper > 0 {
		sib.SetMidKey(0, sib.Pair(0, upper/2).Key)
	}

	oldGen := h.RightGen()
	sib.SetRight(0, n.Right(oldGen))
	sib.SetMaxKey(0, n.MaxKey(oldGen))

	if err := sib.FlushPairRange(0, 0, upper, false); err != nil {
		return h, nil, err
	}
	if err := sib.FlushMidKey(0, false); err != nil {
		return h, nil, err
	}
	if err := sib.FlushRight(0, false); err != nil {
		return h, nil, err
	}
	if err := sib.FlushMaxKey(0, false); err != nil {
		return h, nil, err
	}

	sibHeader := NewHeader(0, uint16(upper), LazyEmpty, h.Bottom(), false, 0)
	sib.StoreHeader(sibHeader)
	if err := sib.FlushHeader(true); err != nil {
		return h, nil, err
	}

	// Rebuild n's lower half into the off-duty slot.
	newSlot := h.OtherSlot()
	for i := 0; i < half; i++ {
		n.SetPair(newSlot, i, n.VirtualAt(h, i))
	}
	if half > 0 {
		n.SetMidKey(newSlot, n.Pair(newSlot, half/2).Key)
	}
	if err := n.FlushPairRange(newSlot, 0, half, false); err != nil {
		return h, nil, err
	}
	if err := n.FlushMidKey(newSlot, false); err != nil {
		return h, nil, err
	}

	var newMax uint64
	if half > 0 {
		newMax = n.Pair(newSlot, half-1).Key
	}

	newGen := oldGen ^ 1
	n.SetRight(newGen, uint64(sib.Offset()))
	n.SetMaxKey(newGen, newMax)
	if err := n.FlushRight(newGen, false); err != nil {
		return h, nil, err
	}
	if err := n.FlushMaxKey(newGen, true); err != nil {
		return h, nil, err
	}

	newHeader := h.BumpVersion(1).
		WithNumber(uint16(half)).
		WithLazyFlag(LazyEmpty).
		WithRightGen(newGen)

	return newHeader, sib, nil
}
