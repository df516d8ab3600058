package pnode

// Merge attempts to absorb sib (n's right sibling) into n. n must already be
// locked by the caller; Merge acquires sib's lock itself, in strict
// left-to-right order, and releases it before returning. On success it
// stores and flushes n's new header itself, then marks sib obsolete and
// flushes that too, in that order: sib must not be marked obsolete until
// n's new header (the one that no longer needs sib) is durable and
// published, since an earlier obsolete mark would leave a node a
// concurrent reader can still reach, briefly, with a flag claiming it is
// not. It reports (newHeader, true, nil) on success; the caller retires
// sib through the epoch registry once this returns. It reports
// (h, false, nil) when the merge is not eligible (sibling busy, either side
// obsolete, or combined count too large), which is not an error: the caller
// simply proceeds without merging.
func (n *Node) Merge(h Header, sib *Node, lnum int) (Header, bool, error) {
	if h.Obsolete() {
		return h, false, nil
	}

	if !sib.Mutex().TryLock() {
		return h, false, nil
	}
	defer sib.Mutex().Unlock()

	sh := sib.LoadHeader()
	if sh.Obsolete() {
		return h, false, nil
	}
	if int(h.Number())+int(sh.Number()) >= lnum {
		return h, false, nil
	}

	slot := h.LiveSlot()
	physBase := StoredCount(h)
	sibLen := sib.VirtualLen(sh)

	for i := 0; i < sibLen; i++ {
		n.SetPair(slot, physBase+i, sib.VirtualAt(sh, i))
	}

	// The appended region sits past n's current logical tail: no reader
	// holding the old header can see it, so this extends the live slot
	// in place without a shadow flip.
	if err := n.FlushPairRange(slot, physBase, physBase+sibLen, false); err != nil {
		return h, false, err
	}

	newGen := h.RightGen() ^ 1
	n.SetRight(newGen, sib.Right(sh.RightGen()))
	n.SetMaxKey(newGen, sib.MaxKey(sh.RightGen()))
	if err := n.FlushRight(newGen, false); err != nil {
		return h, false, err
	}
	if err := n.FlushMaxKey(newGen, true); err != nil {
		return h, false, err
	}

	newHeader := h.BumpVersion(2).
		WithNumber(h.Number() + uint16(sibLen)).
		WithRightGen(newGen)

	n.StoreHeader(newHeader)
	if err := n.FlushHeader(true); err != nil {
		return newHeader, false, err
	}

	// Only now, with n's new header published and no longer pointing at
	// sib, is it safe to mark sib obsolete.
	sib.StoreHeader(sh.WithObsolete(true))
	if err := sib.FlushHeader(true); err != nil {
		return newHeader, true, err
	}

	return newHeader, true, nil
}
