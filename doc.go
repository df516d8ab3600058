// Package ssbtree implements a concurrent, persistent, ordered 64-bit
// key/value index built directly on byte-addressable persistent memory
// (emulated here via mmap'd files, see internal/pmpool). Its nodes use
// shadow-slot copy-on-write bodies published by a single atomic header
// store, a one-slot lazy-box to defer small structural edits without a
// shadow flip, and a version-stamped header word that lets readers
// proceed lock-free with optimistic retry. Writers traverse top-down,
// rebalancing horizontally (splitting an overflowing child, folding an
// underflowing one's right sibling into it) before ever descending into
// it, so no second upward pass is required. Freed nodes are reclaimed
// through epoch-based safe memory reclamation (internal/epoch) rather
// than immediately, since a concurrent lock-free reader may still hold a
// reference.
//
// See DESIGN.md in the module root for the grounding ledger tying each
// package back to its reference implementation and third-party
// dependencies.
package ssbtree
