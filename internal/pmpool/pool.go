// Package pmpool stands in for the out-of-scope persistent-memory
// allocator/pool: an mmap'd file with a single allocation class sized for
// exactly one node, a free list threaded through freed nodes' own bytes,
// and offset<->view translation (internal/pnode.Node's persistent handle is
// just its byte offset in this file).
package pmpool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/pmkv/ssbtree/internal/pnode"
)

// ErrFull is returned by AllocNode when the pool has exhausted both its free
// list and its unused tail capacity.
var ErrFull = errors.New("pmpool: pool exhausted")

// NoOffset marks the end of the free list / an absent pointer.
const NoOffset = ^uint64(0)

// Pool is a memory-mapped, fixed-capacity arena of pnode.Size-byte node
// slots following a fixed-size root header.
type Pool struct {
	data []byte
	file *os.File

	dataOffset uint64
	capacity   uint64
	lnum       uint32
	rnum       uint32

	nextAlloc  atomic.Uint64
	freeHead   atomic.Uint64
	headOff    atomic.Uint64
	tailOff    atomic.Uint64
	rootOff    atomic.Uint64
	generation atomic.Uint64
}

func newPool(data []byte, dataOffset, capacity uint64) *Pool {
	return &Pool{data: data, dataOffset: dataOffset, capacity: capacity}
}

// Head, Tail and Root return the persisted sentinel/root offsets.
func (p *Pool) Head() uint64 { return p.headOff.Load() }
func (p *Pool) Tail() uint64 { return p.tailOff.Load() }
func (p *Pool) Root() uint64 { return p.rootOff.Load() }

// Lnum and Rnum are the constructor-supplied merge/split thresholds.
func (p *Pool) Lnum() uint32 { return p.lnum }
func (p *Pool) Rnum() uint32 { return p.rnum }

// PublishRoot durably stores a new {headOff, rootOff} pair: the single
// publishing act for a root grow or root shrink. tailOff never changes
// after creation.
func (p *Pool) PublishRoot(headOff, rootOff uint64) error {
	p.headOff.Store(headOff)
	p.rootOff.Store(rootOff)
	gen := p.generation.Add(1)

	h := rootHeader{
		Version:    fileVersion,
		Lnum:       p.lnum,
		Rnum:       p.rnum,
		Capacity:   p.capacity,
		HeadOff:    headOff,
		TailOff:    p.tailOff.Load(),
		RootOff:    rootOff,
		NextAlloc:  p.nextAlloc.Load(),
		FreeHead:   p.freeHead.Load(),
		Generation: gen,
	}

	buf := encodeRootHeader(&h)
	copy(p.data[:headerSize], buf)

	return p.SyncRange(0, headerSize)
}

// Generation returns the root header's current publish counter, exposed to
// callers (Tree.Generation) as a coarse-grained modification counter.
func (p *Pool) Generation() uint64 { return p.generation.Load() }

// SyncRange implements internal/flush.Syncer by issuing a synchronous msync
// over the given byte range of the mapping, with its start moved down to
// the enclosing page boundary as msync requires. A zero-length call is used by
// flush.Range as a standalone store-fence; msync-ing a single byte is a
// cheap, always-safe way to realize that without a special no-op path.
func (p *Pool) SyncRange(offset, length int) error {
	if length <= 0 {
		length = 1
	}

	end := offset + length
	if end > len(p.data) {
		end = len(p.data)
	}
	if offset >= end {
		return nil
	}

	start := offset - offset%os.Getpagesize()
	return unix.Msync(p.data[start:end], unix.MS_SYNC)
}

// AllocNode returns a fresh node slot, preferring the free list (LIFO) over
// never-used tail capacity. The returned node's bytes are whatever a prior
// occupant (or FreeNode) left behind; callers must call Node.Init before
// publishing it.
func (p *Pool) AllocNode() (*pnode.Node, error) {
	for {
		head := p.freeHead.Load()
		if head != NoOffset {
			next := binary.LittleEndian.Uint64(p.data[head : head+8])
			if p.freeHead.CompareAndSwap(head, next) {
				return p.View(head), nil
			}
			continue
		}

		off := p.nextAlloc.Load()
		limit := p.dataOffset + p.capacity*uint64(pnode.Size)
		if off >= limit {
			return nil, fmt.Errorf("%w: capacity %d nodes", ErrFull, p.capacity)
		}

		if p.nextAlloc.CompareAndSwap(off, off+uint64(pnode.Size)) {
			return p.View(off), nil
		}
	}
}

// FreeNode returns a node to the free list. The caller must be certain no
// thread can still reach it (it should already have been retired through
// the epoch registry).
func (p *Pool) FreeNode(offset uint64) {
	for {
		head := p.freeHead.Load()
		binary.LittleEndian.PutUint64(p.data[offset:offset+8], head)
		if p.freeHead.CompareAndSwap(head, offset) {
			return
		}
	}
}

// View wraps the node slot at offset as a pnode.Node.
func (p *Pool) View(offset uint64) *pnode.Node {
	return pnode.View(p.data[offset:offset+uint64(pnode.Size)], int(offset), p)
}

// Capacity returns the number of node slots the pool was created with.
func (p *Pool) Capacity() uint64 { return p.capacity }
