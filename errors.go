package ssbtree

import "errors"

// Sentinel errors. Not-found conditions (absent key on Update/Remove,
// Lookup of a missing key) are deliberately not represented here: per the
// design, they are silent successes, not errors.
var (
	// ErrCorrupt is returned by Open when the pool's root header fails its
	// CRC check.
	ErrCorrupt = errors.New("ssbtree: pool header corrupt")

	// ErrIncompatible is returned by Open when the file is not a
	// recognized pool file (bad magic/version).
	ErrIncompatible = errors.New("ssbtree: incompatible pool file")

	// ErrClosed is returned by any operation called after Close.
	ErrClosed = errors.New("ssbtree: tree is closed")

	// ErrInvalidKey is returned when a caller passes a reserved sentinel
	// key (0 or MaxUint64) to an operator that disallows it.
	ErrInvalidKey = errors.New("ssbtree: sentinel key not allowed")

	// ErrPoolFull is returned when the pool has no free node slots left
	// for an operation that needed to allocate one.
	ErrPoolFull = errors.New("ssbtree: pool exhausted")
)
