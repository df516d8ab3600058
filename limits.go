package ssbtree

import "github.com/pmkv/ssbtree/internal/pnode"

// DefaultLnum and DefaultRnum are the merge-low-watermark and
// split-high-watermark used when Options leaves them zero, sensible for the
// fixed F=35 per-slot capacity (Lnum <= Rnum <= 2F).
const (
	DefaultLnum = 14
	DefaultRnum = 27
)

// DefaultPoolSize is used when Options.PoolSize is zero.
const DefaultPoolSize = 64 << 20

func validateThresholds(lnum, rnum uint32) bool {
	return lnum <= rnum && rnum <= uint32(2*pnode.F)
}
