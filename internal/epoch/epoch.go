// Package epoch implements epoch-based safe memory reclamation for the
// tree's persistent nodes: a process-wide Epoche registry, per-thread
// ThreadInfo handles, and a deferred-free bag drained once every registered
// thread has advanced past the retirement epoch.
//
// The design follows the classic three-bag scheme (each retired item is
// filed under the global epoch active at retire time; a bag is only drained
// once the global epoch has advanced twice past it, guaranteeing every
// thread that could have observed the retired node has exited its guard).
package epoch

import (
	"sync"
	"sync/atomic"
)

// MaxThreads bounds the number of concurrently registered threads.
const MaxThreads = 256

const numBags = 3

// Epoche is the process-wide epoch registry. The zero value is not usable;
// construct with New.
type Epoche struct {
	global atomic.Uint64

	slots [MaxThreads]slot

	bagMu sync.Mutex
	bags  [numBags][]func()
}

type slot struct {
	used   atomic.Bool
	active atomic.Bool
	local  atomic.Uint64
}

// New constructs an empty Epoche registry.
func New() *Epoche {
	return &Epoche{}
}

// ThreadInfo is a per-thread handle bound to a slot in an Epoche registry.
// Obtain one via Epoche.Register; release it with Deregister when the
// thread is done with the tree.
type ThreadInfo struct {
	e    *Epoche
	slot int
}

// Register claims a free slot in the registry. It returns an error-free
// ThreadInfo; if every slot is in use it panics at once, without waiting
// for a slot, since MaxThreads threads registered against one tree indicates a
// caller bug (threads are meant to be registered once and reused, not
// per-operation).
func (e *Epoche) Register() *ThreadInfo {
	for i := range e.slots {
		if e.slots[i].used.CompareAndSwap(false, true) {
			return &ThreadInfo{e: e, slot: i}
		}
	}

	panic("epoch: no free thread slots (increase MaxThreads or deregister idle threads)")
}

// Deregister releases the thread's slot. The caller must not hold an open
// Guard.
func (t *ThreadInfo) Deregister() {
	t.e.slots[t.slot].used.Store(false)
}

// Guard brackets one operator call. While a Guard is open, no node the
// thread may observe is freed. Exit must be called exactly once.
type Guard struct {
	info *ThreadInfo
}

// Enter opens a guard, pinning the thread at the current global epoch.
func (t *ThreadInfo) Enter() *Guard {
	g := t.e.global.Load()
	t.e.slots[t.slot].local.Store(g)
	t.e.slots[t.slot].active.Store(true)

	return &Guard{info: t}
}

// Exit closes the guard and opportunistically tries to advance the global
// epoch, draining any bag that is now provably unobserved.
func (g *Guard) Exit() {
	g.info.e.slots[g.info.slot].active.Store(false)
	g.info.e.tryAdvance()
}

// Retire files fn to run once no thread that was active at the moment of
// this call could still be observing whatever fn frees. fn is typically a
// closure over a pmpool offset that returns the node to the free list.
func (t *ThreadInfo) Retire(fn func()) {
	bagIdx := t.e.global.Load() % numBags

	t.e.bagMu.Lock()
	t.e.bags[bagIdx] = append(t.e.bags[bagIdx], fn)
	t.e.bagMu.Unlock()
}

// tryAdvance bumps the global epoch if every active thread has observed the
// current one, then drains the bag that is now two epochs stale.
func (e *Epoche) tryAdvance() {
	cur := e.global.Load()

	for i := range e.slots {
		if !e.slots[i].used.Load() {
			continue
		}
		if e.slots[i].active.Load() && e.slots[i].local.Load() != cur {
			return
		}
	}

	if !e.global.CompareAndSwap(cur, cur+1) {
		return
	}

	// The bag two epochs behind the one we just entered can no longer be
	// observed by any thread: every active thread was pinned at >= cur-1
	// throughout, and cur just became cur+1.
	staleIdx := (cur + 2) % numBags

	e.bagMu.Lock()
	garbage := e.bags[staleIdx]
	e.bags[staleIdx] = nil
	e.bagMu.Unlock()

	for _, fn := range garbage {
		fn()
	}
}

// Quiesce forces every outstanding bag to drain, regardless of thread
// activity. Intended for Close, after all operator calls have returned and
// no ThreadInfo holds an open Guard.
func (e *Epoche) Quiesce() {
	e.bagMu.Lock()
	defer e.bagMu.Unlock()

	for i := range e.bags {
		for _, fn := range e.bags[i] {
			fn()
		}
		e.bags[i] = nil
	}
}
