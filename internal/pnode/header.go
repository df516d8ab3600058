// Package pnode implements the fixed-size persistent node record: the packed
// header word, its two pair-array shadow slots, the one-slot lazy-box, the
// two-generation right-sibling link, and the node-local persistent mutex.
//
// Per the design notes, the header is modeled as an opaque 64-bit word with
// pure accessor/mutator helpers rather than bitmask macros scattered through
// callers; callers load/store it atomically via Node.LoadHeader/StoreHeader.
package pnode

// Header is the packed 64-bit control word of a node.
//
// Bit layout, matching the on-media format exactly:
//
//	48..63  version   (16 bits, monotonic, advances on any structural change)
//	32..47  number    (16 bits, live key count including lazy-box effect)
//	30..31  lazyFlag  (2 bits: 0 empty, 1 pending insert, 2 pending delete, 3 reserved)
//	29      bottom    (1 bit: 1 iff leaf level)
//	28      obsolete  (1 bit: 1 iff replaced, awaiting epoch reclamation)
//	26..27  rightGen  (2 bits: selects live right[]/maxKey[] slot)
//	24..25  mutexBits (2 bits, reserved — real locking uses the persistent mutex)
//	0..23   reserved
type Header uint64

const (
	shiftVersion  = 48
	shiftNumber   = 32
	shiftLazyFlag = 30
	shiftBottom   = 29
	shiftObsolete = 28
	shiftRightGen = 26
	shiftMutex    = 24

	maskVersion  = 0xFFFF
	maskNumber   = 0xFFFF
	maskLazyFlag = 0x3
	maskRightGen = 0x3
	maskMutex    = 0x3
)

// Lazy-box flag values.
const (
	LazyEmpty        uint8 = 0
	LazyPendingInsert uint8 = 1
	LazyPendingDelete uint8 = 2
	lazyReserved      uint8 = 3
)

// NewHeader packs the given fields into a Header word.
func NewHeader(version, number uint16, lazyFlag uint8, bottom, obsolete bool, rightGen uint8) Header {
	var h Header

	h |= Header(version&maskVersion) << shiftVersion
	h |= Header(number&maskNumber) << shiftNumber
	h |= Header(lazyFlag&maskLazyFlag) << shiftLazyFlag

	if bottom {
		h |= 1 << shiftBottom
	}
	if obsolete {
		h |= 1 << shiftObsolete
	}

	h |= Header(rightGen&maskRightGen) << shiftRightGen

	return h
}

func (h Header) Version() uint16 { return uint16((h >> shiftVersion) & maskVersion) }
func (h Header) Number() uint16  { return uint16((h >> shiftNumber) & maskNumber) }
func (h Header) LazyFlag() uint8 { return uint8((h >> shiftLazyFlag) & maskLazyFlag) }
func (h Header) Bottom() bool    { return h&(1<<shiftBottom) != 0 }
func (h Header) Obsolete() bool  { return h&(1<<shiftObsolete) != 0 }
func (h Header) RightGen() uint8 { return uint8((h >> shiftRightGen) & maskRightGen) }

// WithVersion returns a copy of h with version replaced.
func (h Header) WithVersion(v uint16) Header {
	return (h &^ (maskVersion << shiftVersion)) | Header(v&maskVersion)<<shiftVersion
}

// BumpVersion returns a copy of h with version advanced by delta (mod 2^16).
func (h Header) BumpVersion(delta uint16) Header {
	return h.WithVersion(h.Version() + delta)
}

func (h Header) WithNumber(n uint16) Header {
	return (h &^ (maskNumber << shiftNumber)) | Header(n&maskNumber)<<shiftNumber
}

func (h Header) AddNumber(delta int16) Header {
	return h.WithNumber(uint16(int16(h.Number()) + delta))
}

func (h Header) WithLazyFlag(f uint8) Header {
	return (h &^ (maskLazyFlag << shiftLazyFlag)) | Header(f&maskLazyFlag)<<shiftLazyFlag
}

func (h Header) WithBottom(b bool) Header {
	if b {
		return h | (1 << shiftBottom)
	}
	return h &^ (1 << shiftBottom)
}

func (h Header) WithObsolete(o bool) Header {
	if o {
		return h | (1 << shiftObsolete)
	}
	return h &^ (1 << shiftObsolete)
}

func (h Header) WithRightGen(g uint8) Header {
	return (h &^ (maskRightGen << shiftRightGen)) | Header(g&maskRightGen)<<shiftRightGen
}

// OtherRightGen returns the generation slot not currently live.
func (h Header) OtherRightGen() uint8 {
	return h.RightGen() ^ 1
}

// LiveSlot returns which of the two pair-array shadow slots is live, per
// spec: selected by version mod 2.
func (h Header) LiveSlot() int {
	return int(h.Version() % 2)
}

// OtherSlot returns the shadow slot not currently live.
func (h Header) OtherSlot() int {
	return 1 - h.LiveSlot()
}

// ReadCheckVersion reports whether a reader who observed "old" and has since
// observed "new" may trust intervening reads: either nothing structural
// changed, or exactly one lazy-box transition happened and it has since
// resolved (new lazyFlag is empty).
func ReadCheckVersion(old, new_ Header) bool {
	if old.Version() == new_.Version() {
		return true
	}

	return new_.Version() == old.Version()+1 && new_.LazyFlag() == LazyEmpty
}

// WriteCheckVersion reports whether the logical count is unchanged between
// two header snapshots (tolerates pure shadow-slot/version churn that did
// not touch the logical key set).
func WriteCheckVersion(old, new_ Header) bool {
	return old.Number() == new_.Number()
}

// RightCheck reports whether the right-sibling generation is still the one
// the caller last observed.
func RightCheck(old, new_ Header) bool {
	return old.RightGen() == new_.RightGen()
}
