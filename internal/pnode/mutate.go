package pnode

// UpKey performs an in-node insert of {key, value} under the caller-held
// node Mutex. h must be the header observed immediately before locking. It
// returns the header to publish (the caller still owns flushing that header
// and storing it); the returned header is never itself stored by UpKey.
func (n *Node) UpKey(h Header, key, value uint64) (Header, error) {
	w2 := n.VirtualUpperBound(h, key)

	switch h.LazyFlag() {
	case LazyEmpty, lazyReserved:
		slot := h.LiveSlot()
		stored := StoredCount(h)

		if w2 >= stored {
			// case 1: append past the tail of the live slot.
			n.SetPair(slot, stored, Pair{Key: key, Value: value})
			if err := n.FlushPairRange(slot, stored, stored+1, false); err != nil {
				return h, err
			}
			return h.BumpVersion(2).WithNumber(h.Number() + 1), nil
		}

		// case 2: interior insert, deferred via the lazy-box.
		n.SetLazyBox(Pair{Key: key, Value: EncodeLazyPayload(uint16(w2), value)})
		if err := n.FlushLazyBox(false); err != nil {
			return h, err
		}
		return h.BumpVersion(2).WithNumber(h.Number() + 1).WithLazyFlag(LazyPendingInsert), nil

	default:
		// case 3: a lazy-box edit is already pending; shadow-slot COW merges
		// it with this insert into the other slot.
		return n.materializeWithInsert(h, key, value, w2)
	}
}

// materializeWithInsert resolves the node's current pending edit (whatever
// it is) into the off-duty shadow slot, inserting key/value at its logical
// position in the same pass, then clears the lazy-box.
func (n *Node) materializeWithInsert(h Header, key, value uint64, w2 int) (Header, error) {
	newSlot := h.OtherSlot()
	oldLen := n.VirtualLen(h)

	for i := 0; i < w2; i++ {
		n.SetPair(newSlot, i, n.VirtualAt(h, i))
	}
	n.SetPair(newSlot, w2, Pair{Key: key, Value: value})
	for i := w2; i < oldLen; i++ {
		n.SetPair(newSlot, i+1, n.VirtualAt(h, i))
	}

	if err := n.FlushPairRange(newSlot, 0, oldLen+1, false); err != nil {
		return h, err
	}

	return h.BumpVersion(1).WithNumber(h.Number() + 1).WithLazyFlag(LazyEmpty), nil
}

// DownKey performs an in-node delete of key under the caller-held node
// Mutex. It returns (header, found, err); if found is false the key was
// absent and the caller must not publish the returned header (it is the
// unmodified input header).
func (n *Node) DownKey(h Header, key uint64) (Header, bool, error) {
	w2 := n.VirtualUpperBound(h, key)
	if w2 == 0 {
		return h, false, nil
	}

	pos := w2 - 1
	if n.VirtualAt(h, pos).Key != key {
		return h, false, nil
	}

	switch h.LazyFlag() {
	case LazyEmpty, lazyReserved:
		n.SetLazyBox(Pair{Key: key, Value: EncodeLazyPayload(uint16(pos), 0)})
		if err := n.FlushLazyBox(false); err != nil {
			return h, false, err
		}
		return h.BumpVersion(2).WithNumber(h.Number() - 1).WithLazyFlag(LazyPendingDelete), true, nil

	case LazyPendingDelete:
		lb := n.LazyBox()
		if lb.Key == key {
			// identical pending delete repeated: no-op for the array.
			return h, true, nil
		}
		newH, err := n.materializeWithDelete(h, pos)
		return newH, true, err

	case LazyPendingInsert:
		lb := n.LazyBox()
		if lb.Key == key {
			// deleting the key that is itself still only pending as an
			// insert collapses cleanly, no shadow flip needed.
			return h.BumpVersion(2).WithNumber(h.Number() - 1).WithLazyFlag(LazyEmpty), true, nil
		}
		newH, err := n.materializeWithDelete(h, pos)
		return newH, true, err

	default:
		return h, false, nil
	}
}

// materializeWithDelete resolves the node's current pending edit into the
// off-duty shadow slot, additionally excluding the logical pair at pos, then
// clears the lazy-box. pos indexes the *old* virtual sequence (length
// VirtualLen(h)), which already reflects whatever edit was pending.
func (n *Node) materializeWithDelete(h Header, pos int) (Header, error) {
	newSlot := h.OtherSlot()
	oldLen := n.VirtualLen(h)

	j := 0
	for i := 0; i < oldLen; i++ {
		if i == pos {
			continue
		}
		n.SetPair(newSlot, j, n.VirtualAt(h, i))
		j++
	}

	if err := n.FlushPairRange(newSlot, 0, j, false); err != nil {
		return h, err
	}

	return h.BumpVersion(1).WithNumber(h.Number() - 1).WithLazyFlag(LazyEmpty), nil
}

// UpdateValue overwrites the payload of an existing key in place. It is not
// a structural change (the key set and every position are unchanged), so it
// does not bump the header version; the single 8-byte value word is written
// atomically so concurrent lock-free readers see either the old or the new
// payload, never a torn one. Returns false if key is absent.
func (n *Node) UpdateValue(h Header, key, newValue uint64) (bool, error) {
	lb := n.LazyBox()

	switch h.LazyFlag() {
	case LazyPendingInsert:
		if lb.Key == key {
			pos, _ := DecodeLazyPayload(lb.Value)
			n.SetLazyBox(Pair{Key: key, Value: EncodeLazyPayload(pos, newValue)})
			return true, n.FlushLazyBox(true)
		}
	case LazyPendingDelete:
		if lb.Key == key {
			return false, nil
		}
	}

	slot := h.LiveSlot()
	stored := StoredCount(h)
	idx := n.SearchSlot(slot, stored, key)

	if idx > 0 {
		if p := n.Pair(slot, idx-1); p.Key == key {
			n.SetPair(slot, idx-1, Pair{Key: key, Value: newValue})
			return true, n.FlushPairRange(slot, idx-1, idx, true)
		}
	}

	return false, nil
}
