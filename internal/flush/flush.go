// Package flush implements the persistent-memory flush primitive: cache-line
// writeback over a byte range, optionally bracketed by store-fences.
//
// There is no real PM device under this implementation, so "writeback" is
// realized as a durable sync of the touched range in the backing mmap'd
// file (see Syncer). The cache-line rounding and fence-ordering contract are
// real and exercised by callers in internal/pnode and internal/pmpool: the
// contract is that bytes are durable before the trailing fence call returns.
package flush

// LineSize is the assumed cache-line / PM flush granularity.
const LineSize = 64

// Syncer durably persists a byte range of the backing medium. internal/pmpool
// implements this over an mmap'd file via msync.
type Syncer interface {
	SyncRange(offset, length int) error
}

// Range flushes data[offset:offset+length) to the durable medium, rounding
// out to the smallest span of whole cache lines covering that range, in
// ascending address order. fenceBefore/fenceAfter request an additional
// store-drain immediately before/after the writeback; since the only Syncer
// implementation (pmpool's msync wrapper) is itself synchronous, these serve
// as an explicit ordering point for callers and as hooks for a future
// non-synchronous backend.
func Range(s Syncer, offset, length int, fenceBefore, fenceAfter bool) error {
	if length <= 0 {
		return nil
	}

	start := alignDown(offset, LineSize)
	end := alignUp(offset+length, LineSize)

	if fenceBefore {
		if err := s.SyncRange(start, 0); err != nil {
			return err
		}
	}

	if err := s.SyncRange(start, end-start); err != nil {
		return err
	}

	if fenceAfter {
		if err := s.SyncRange(start, 0); err != nil {
			return err
		}
	}

	return nil
}

func alignDown(v, align int) int {
	return v - (v % align)
}

func alignUp(v, align int) int {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}
