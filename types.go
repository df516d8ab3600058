package ssbtree

import "log/slog"

// Options configures Open. Only Path is required; the rest have sensible
// defaults mirroring the pool's own constructor-supplied parameters.
type Options struct {
	// Path is the backing file. It is created if absent, reopened
	// (and CRC-revalidated) if present.
	Path string

	// PoolSize bounds the backing file's size when creating a new pool. It
	// is ignored when reopening an existing one. Defaults to
	// DefaultPoolSize.
	PoolSize int64

	// Lnum and Rnum are the merge/split thresholds, ignored when reopening
	// an existing pool (its own persisted values are used instead).
	// Default to DefaultLnum/DefaultRnum.
	Lnum uint32
	Rnum uint32

	// Logger, if set, receives recovery and rebalance diagnostics. The
	// tree is otherwise silent: errors are the only signal, matching the
	// rest of the library's error-handling stance.
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of tree-wide counters.
type Stats struct {
	Keys       int64
	Nodes      int64
	Height     int
	Splits     uint64
	Merges     uint64
	Retires    uint64
	Generation uint64
}
