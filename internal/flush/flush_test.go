package flush

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	calls [][2]int
}

func (r *recordingSyncer) SyncRange(offset, length int) error {
	r.calls = append(r.calls, [2]int{offset, length})
	return nil
}

func TestRangeAlignsToCacheLines(t *testing.T) {
	s := &recordingSyncer{}

	require.NoError(t, Range(s, 70, 10, false, false))
	require.Len(t, s.calls, 1)
	require.Equal(t, 64, s.calls[0][0])
	require.Equal(t, 64, s.calls[0][1]) // [64,128) covers [70,80)
}

func TestRangeFencesBracketWriteback(t *testing.T) {
	s := &recordingSyncer{}

	require.NoError(t, Range(s, 0, 8, true, true))
	require.Len(t, s.calls, 3)
	require.Equal(t, 0, s.calls[0][1]) // leading fence: zero-length sync
	require.Equal(t, 64, s.calls[1][1])
	require.Equal(t, 0, s.calls[2][1]) // trailing fence
}

func TestRangeNoopOnEmpty(t *testing.T) {
	s := &recordingSyncer{}

	require.NoError(t, Range(s, 5, 0, true, true))
	require.Empty(t, s.calls)
}
