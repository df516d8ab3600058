package ssbtree

import (
	"github.com/pmkv/ssbtree/internal/epoch"
	"github.com/pmkv/ssbtree/internal/pnode"
)

func validOperandKey(key uint64) error {
	if key == pnode.MinKey || key == pnode.MaxKey {
		return ErrInvalidKey
	}
	return nil
}

// route returns the offset of the child a search for key would descend
// into from an internal node, plus its separator index.
func route(n *pnode.Node, h pnode.Header, key uint64) (idx int, childOff uint64) {
	idx = n.VirtualUpperBound(h, key) - 1
	return idx, n.VirtualAt(h, idx).Value
}

// Lookup performs a point read. It is lock-free: it never blocks behind a
// concurrent writer, instead validating the leaf's header version
// unchanged across the read and restarting the whole descent on a
// mismatch (an optimistic retry, per the packed header's version word).
func (t *Tree) Lookup(ti *epoch.ThreadInfo, key uint64) (uint64, bool, error) {
	if err := validOperandKey(key); err != nil {
		return 0, false, err
	}
	if t.closed.Load() {
		return 0, false, ErrClosed
	}

	g := ti.Enter()
	defer g.Exit()

	for {
		cur := t.head()
		h := cur.LoadHeader()

		for !h.Bottom() {
			_, childOff := route(cur, h, key)
			cur = t.pool.View(childOff)
			h = cur.LoadHeader()
		}

		val, ok := cur.Lookup(h, key)
		h2 := cur.LoadHeader()
		if pnode.ReadCheckVersion(h, h2) {
			return val, ok, nil
		}
		// a structural change raced the read; restart from head.
	}
}

// Put inserts key with value, overwriting any existing value for key. Only
// the low 48 bits of value are kept; they are stored sign-extended to 64
// bits.
func (t *Tree) Put(ti *epoch.ThreadInfo, key, value uint64) error {
	if err := validOperandKey(key); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}

	g := ti.Enter()
	defer g.Exit()

restart:
	head := t.head()
	head.Mutex().Lock()

	h := head.LoadHeader()
	if t.needsSplit(h) {
		if err := t.growRoot(h); err != nil {
			head.Mutex().Unlock()
			return err
		}
		h = head.LoadHeader()
	}

	parent := head
	ph := h

	for {
		_, preOff := route(parent, ph, key)

		var err error
		ph, _, err = t.promoteUp(parent, ph, preOff, key)
		if err != nil {
			parent.Mutex().Unlock()
			return err
		}

		// The separator edit above is the only reason parent needs to stay
		// locked; release it before taking child's lock so parent and child
		// are not held together while descending (no hand-over-hand
		// coupling; promoteUp alone briefly locks child under parent).
		_, childOff := route(parent, ph, key)
		child := t.pool.View(childOff)
		parent.Mutex().Unlock()
		child.Mutex().Lock()

		ch := child.LoadHeader()
		if ch.Obsolete() {
			// child was merged away by a concurrent writer between our
			// unlock of parent and lock of child; the whole path below
			// parent may have changed shape, so restart from head.
			child.Mutex().Unlock()
			goto restart
		}
		if ch.Bottom() {
			if _, existed := child.Lookup(ch, key); existed {
				_, err := child.UpdateValue(ch, key, value)
				child.Mutex().Unlock()
				return err
			}

			newCH, err := child.UpKey(ch, key, value)
			if err != nil {
				child.Mutex().Unlock()
				return err
			}
			child.StoreHeader(newCH)
			err = child.FlushHeader(true)
			child.Mutex().Unlock()
			if err == nil {
				t.keys.Add(1)
			}
			return err
		}

		parent = child
		ph = ch
	}
}

// Remove deletes key if present without performing any horizontal
// rebalancing along the descent: underfull nodes are left as-is, mirroring
// the original's cheap normalRemove entry point. Absence is a silent
// success, not an error, matching the rest of the library's
// error-handling stance.
func (t *Tree) Remove(ti *epoch.ThreadInfo, key uint64) error {
	return t.remove(ti, key, false)
}

// RemoveRebalance deletes key if present, additionally performing
// preemptive merge-before-descend rebalancing at every level along the
// path (demoteDown, plus a root shrink check), mirroring the original's
// balanceRemove entry point (gated there by the REBALANCE build flag,
// exposed here as a distinct method instead).
func (t *Tree) RemoveRebalance(ti *epoch.ThreadInfo, key uint64) error {
	return t.remove(ti, key, true)
}

func (t *Tree) remove(ti *epoch.ThreadInfo, key uint64, rebalance bool) error {
	if err := validOperandKey(key); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}

	g := ti.Enter()
	defer g.Exit()

restart:
	head := t.head()
	head.Mutex().Lock()

	h := head.LoadHeader()
	if rebalance {
		if err := t.shrinkRoot(h, ti); err != nil {
			head.Mutex().Unlock()
			return err
		}
		h = head.LoadHeader()
	}

	parent := head
	ph := h

	for {
		if rebalance {
			idx, _ := route(parent, ph, key)
			var err error
			ph, err = t.demoteDown(parent, ph, idx, ti)
			if err != nil {
				parent.Mutex().Unlock()
				return err
			}
		}

		// Release parent's lock before taking child's: the two locks are
		// never held together past this point (no hand-over-hand coupling).
		_, childOff := route(parent, ph, key)
		child := t.pool.View(childOff)
		parent.Mutex().Unlock()
		child.Mutex().Lock()

		ch := child.LoadHeader()
		if ch.Obsolete() {
			child.Mutex().Unlock()
			goto restart
		}
		if ch.Bottom() {
			newCH, found, err := child.DownKey(ch, key)
			if err != nil {
				child.Mutex().Unlock()
				return err
			}
			if !found {
				child.Mutex().Unlock()
				return nil
			}
			child.StoreHeader(newCH)
			err = child.FlushHeader(true)
			child.Mutex().Unlock()
			if err == nil {
				t.keys.Add(-1)
			}
			return err
		}

		parent = child
		ph = ch
	}
}

// Update overwrites the value stored for an existing key without changing
// its position. It reports whether key was present; a missing key is not
// an error.
func (t *Tree) Update(ti *epoch.ThreadInfo, key, newValue uint64) (bool, error) {
	if err := validOperandKey(key); err != nil {
		return false, err
	}
	if t.closed.Load() {
		return false, ErrClosed
	}

	g := ti.Enter()
	defer g.Exit()

	cur := t.head()
	for {
		h := cur.LoadHeader()
		if h.Bottom() {
			cur.Mutex().Lock()
			h = cur.LoadHeader()
			ok, err := cur.UpdateValue(h, key, newValue)
			cur.Mutex().Unlock()
			return ok, err
		}
		_, childOff := route(cur, h, key)
		cur = t.pool.View(childOff)
	}
}
