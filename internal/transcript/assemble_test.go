package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/livesub/internal/domain"
)

func TestSplitPartitionsAndDropsStale(t *testing.T) {
	t.Parallel()

	batch := Split([]domain.Fragment{
		{Text: "old", IsFinal: true, Sequence: 2},
		{Text: "late interim", Sequence: 3},
		{Text: "second", IsFinal: true, Sequence: 5},
		{Text: "first", IsFinal: true, Sequence: 4},
		{Text: "draft", Sequence: 6},
	}, 3)

	require.Equal(t, 2, batch.Stale)
	require.Equal(t, "first second", Join(batch.Finals))
	require.Equal(t, "draft", Join(batch.Interims))
}

func TestSplitDropsInterimsBehindBatchFinal(t *testing.T) {
	t.Parallel()

	batch := Split([]domain.Fragment{
		{Text: "late", IsFinal: true, Sequence: 5},
		{Text: "older", Sequence: 3},
		{Text: "same", Sequence: 5},
		{Text: "next", Sequence: 6},
	}, -1)

	require.Equal(t, 2, batch.Stale)
	require.Equal(t, "late", Join(batch.Finals))
	require.Equal(t, "next", Join(batch.Interims))
}

func TestJoinNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	got := Join([]domain.Fragment{{Text: " 안녕 "}, {Text: "\n하세요\t"}, {Text: "  "}})
	require.Equal(t, "안녕 하세요", got)
}

func TestJoinEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Join(nil))
	require.Empty(t, Join([]domain.Fragment{{Text: "   "}}))
}

func TestMaxSequence(t *testing.T) {
	t.Parallel()

	require.Equal(t, -1, MaxSequence(nil))
	require.Equal(t, 7, MaxSequence([]domain.Fragment{{Sequence: 3}, {Sequence: 7}, {Sequence: 5}}))
}
