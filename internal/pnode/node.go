package pnode

import (
	"sync/atomic"
	"unsafe"

	"github.com/pmkv/ssbtree/internal/flush"
)

// F is the per-shadow-slot pair capacity.
const F = 35

// Size is the fixed, 256-byte-aligned node footprint.
const Size = 1280

// Align is the PM device's flush/allocation granularity nodes are aligned to.
const Align = 256

// Byte offsets of each field within a node, matching the data model exactly:
// an 8-byte atomic header, a 16-byte lazy-box, two 8-byte midkeys, two
// 8-byte maxKeys, two 8-byte right pointers, two F-pair shadow slots, and a
// trailing 64-byte persistent-mutex field.
const (
	offHeader  = 0
	offDummy   = 8
	offLazyBox = 16
	offMidKey  = 32
	offMaxKey  = 48
	offRight   = 64
	offPairs   = 80
	pairsBytes = 2 * F * 16
	offDummy2  = offPairs + pairsBytes // 1200
	offMutex   = offDummy2 + 16        // 1216
)

func init() {
	if offMutex+mutexFieldSize != Size {
		panic("pnode: node layout does not sum to Size")
	}
}

// Node is a live view over exactly Size bytes of backing storage (a slice
// into the pool's mmap'd region). All multi-word field accesses go through
// atomic loads/stores so that the optimistic concurrent-read discipline the
// design calls for is well-defined under the Go memory model: a reader may
// freely race a writer, provided it revalidates the header afterward via
// ReadCheckVersion/WriteCheckVersion/RightCheck.
type Node struct {
	buf    []byte
	syncer flush.Syncer
	base   int // absolute offset of buf[0] in the backing medium
	mu     *Mutex
}

// View wraps buf (which must be exactly Size bytes, aliasing storage at
// absolute offset base in syncer's address space) as a Node.
func View(buf []byte, base int, syncer flush.Syncer) *Node {
	if len(buf) != Size {
		panic("pnode: node view must be exactly Size bytes")
	}

	return &Node{
		buf:    buf,
		syncer: syncer,
		base:   base,
		mu:     newMutex(buf[offMutex : offMutex+mutexFieldSize]),
	}
}

// Offset returns the node's absolute offset in the backing medium (its
// persistent object handle).
func (n *Node) Offset() int { return n.base }

// Mutex returns the node-local persistent-mutex view.
func (n *Node) Mutex() *Mutex { return n.mu }

func ptr64(buf []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&buf[off]))
}

func (n *Node) load(off int) uint64        { return atomic.LoadUint64(ptr64(n.buf, off)) }
func (n *Node) store(off int, v uint64)    { atomic.StoreUint64(ptr64(n.buf, off), v) }
func (n *Node) cas(off int, old, new_ uint64) bool {
	return atomic.CompareAndSwapUint64(ptr64(n.buf, off), old, new_)
}

// --- header ---

func (n *Node) LoadHeader() Header     { return Header(n.load(offHeader)) }
func (n *Node) StoreHeader(h Header)   { n.store(offHeader, uint64(h)) }
func (n *Node) CASHeader(old, new_ Header) bool {
	return n.cas(offHeader, uint64(old), uint64(new_))
}

// FlushHeader is the single publishing act for a structural change: it must
// be called after every body byte the new header references has already
// been flushed.
func (n *Node) FlushHeader(fenceAfter bool) error {
	return flush.Range(n.syncer, n.base+offHeader, 8, false, fenceAfter)
}

// --- lazy-box ---

func (n *Node) LazyBox() Pair {
	return Pair{Key: n.load(offLazyBox), Value: n.load(offLazyBox + 8)}
}

func (n *Node) SetLazyBox(p Pair) {
	n.store(offLazyBox, p.Key)
	n.store(offLazyBox+8, p.Value)
}

func (n *Node) FlushLazyBox(fenceAfter bool) error {
	return flush.Range(n.syncer, n.base+offLazyBox, 16, false, fenceAfter)
}

// --- midkey (one cached pivot per shadow slot) ---

func (n *Node) MidKey(slot int) uint64      { return n.load(offMidKey + slot*8) }
func (n *Node) SetMidKey(slot int, v uint64) { n.store(offMidKey+slot*8, v) }

func (n *Node) FlushMidKey(slot int, fenceAfter bool) error {
	return flush.Range(n.syncer, n.base+offMidKey+slot*8, 8, false, fenceAfter)
}

// --- maxKey / right (two generations each) ---

func (n *Node) MaxKey(gen uint8) uint64      { return n.load(offMaxKey + int(gen)*8) }
func (n *Node) SetMaxKey(gen uint8, v uint64) { n.store(offMaxKey+int(gen)*8, v) }

func (n *Node) FlushMaxKey(gen uint8, fenceAfter bool) error {
	return flush.Range(n.syncer, n.base+offMaxKey+int(gen)*8, 8, false, fenceAfter)
}

func (n *Node) Right(gen uint8) uint64      { return n.load(offRight + int(gen)*8) }
func (n *Node) SetRight(gen uint8, v uint64) { n.store(offRight+int(gen)*8, v) }

func (n *Node) FlushRight(gen uint8, fenceAfter bool) error {
	return flush.Range(n.syncer, n.base+offRight+int(gen)*8, 8, false, fenceAfter)
}

// --- pairs (2 shadow slots of F pairs each) ---

func pairOffset(slot, idx int) int {
	return offPairs + slot*F*16 + idx*16
}

func (n *Node) Pair(slot, idx int) Pair {
	off := pairOffset(slot, idx)
	return Pair{Key: n.load(off), Value: n.load(off + 8)}
}

func (n *Node) SetPair(slot, idx int, p Pair) {
	off := pairOffset(slot, idx)
	n.store(off, p.Key)
	n.store(off+8, signExtend48(p.Value))
}

// FlushPairRange flushes pairs [from, to) of the given shadow slot.
func (n *Node) FlushPairRange(slot, from, to int, fenceAfter bool) error {
	if to <= from {
		return nil
	}
	off := pairOffset(slot, from)
	length := (to - from) * 16
	return flush.Range(n.syncer, n.base+off, length, false, fenceAfter)
}

// CopyPairs copies count pairs from srcSlot starting at srcIdx into dstSlot
// starting at dstIdx. Ranges within the same node may overlap; copying
// proceeds in the safe direction automatically.
func (n *Node) CopyPairs(dstSlot, dstIdx, srcSlot, srcIdx, count int) {
	if dstSlot == srcSlot && dstIdx > srcIdx {
		for i := count - 1; i >= 0; i-- {
			n.SetPair(dstSlot, dstIdx+i, n.Pair(srcSlot, srcIdx+i))
		}
		return
	}

	for i := 0; i < count; i++ {
		n.SetPair(dstSlot, dstIdx+i, n.Pair(srcSlot, srcIdx+i))
	}
}

// Init writes a brand-new node's initial state: empty lazy-box, a single
// shadow slot (0) live, right[0]/maxKey[0] set from the arguments, and
// flushes the whole record. The persistent-mutex field is left untouched,
// so a caller holding the node's lock still holds it afterwards. Used by
// pmpool bootstrap, by Split for its new sibling, and by the root grow and
// shrink paths.
func (n *Node) Init(bottom bool, rightOffset uint64, maxKey uint64) error {
	for i := range n.buf[:offMutex] {
		n.buf[i] = 0
	}

	n.SetRight(0, rightOffset)
	n.SetMaxKey(0, maxKey)

	h := NewHeader(0, 0, LazyEmpty, bottom, false, 0)
	n.StoreHeader(h)

	if err := flush.Range(n.syncer, n.base, Size, false, false); err != nil {
		return err
	}

	return n.FlushHeader(true)
}
