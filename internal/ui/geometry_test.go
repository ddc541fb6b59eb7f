package ui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateShorterThanWidthIsUnchanged(t *testing.T) {
	require.Equal(t, "switch-1", truncate("switch-1", 20))
}

func TestTruncateLongerThanWidthEllipsizes(t *testing.T) {
	got := truncate("switch-with-a-very-long-name", 10)
	require.LessOrEqual(t, len([]rune(got)), 10)
	require.Contains(t, got, "…")
}

func TestTruncateWidthOneReturnsEllipsisOnly(t *testing.T) {
	require.Equal(t, "…", truncate("abcdef", 1))
}

func TestTruncateZeroWidthReturnsEmpty(t *testing.T) {
	require.Equal(t, "", truncate("abcdef", 0))
}

func TestPadColumnPadsShortStrings(t *testing.T) {
	got := padColumn("lid", 6)
	require.Equal(t, "lid   ", got)
}

func TestPadColumnTruncatesLongStrings(t *testing.T) {
	got := padColumn("switch-with-a-very-long-name", 10)
	require.Len(t, []rune(got), 10)
}

func TestCenteredRectCentersWithinScreen(t *testing.T) {
	x, y := centeredRect(20, 10, 80, 24)
	require.Equal(t, 30, x)
	require.Equal(t, 7, y)
}

func TestCenteredRectClampsOnTinyScreen(t *testing.T) {
	x, y := centeredRect(40, 20, 10, 5)
	require.Equal(t, 0, x)
	require.Equal(t, 0, y)
}

func TestSortIndicator(t *testing.T) {
	require.Equal(t, "", sortIndicator(false, true))
	require.Equal(t, "▲", sortIndicator(true, true))
	require.Equal(t, "▼", sortIndicator(true, false))
}
