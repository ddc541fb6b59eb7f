// Package ui renders AppState through termbox-go: the node table, the
// Search and Details popups, and the key-decode that turns termbox
// input into coordinator.KeyEvent values. The cell-buffer/tbprint
// idiom is grounded on linkerd-linkerd2 cli/cmd/top.go's
// tbprint/tbprintBold/renderHeaders.
package ui

import runewidth "github.com/mattn/go-runewidth"

// truncate shortens s to fit within width printable columns,
// rune-width aware, appending an ellipsis when it had to cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return runewidth.Truncate(s, width-1, "") + "…"
}

// padColumn truncates s to width then pads it with spaces to exactly
// width printable columns, matching top.go's fixed-width column
// layout (there done with fmt.Sprintf("%-Ns ", …); here rune-width
// aware so wide runes don't desync the grid).
func padColumn(s string, width int) string {
	s = truncate(s, width)
	pad := width - runewidth.StringWidth(s)
	if pad <= 0 {
		return s
	}
	out := make([]byte, 0, len(s)+pad)
	out = append(out, s...)
	for i := 0; i < pad; i++ {
		out = append(out, ' ')
	}
	return string(out)
}

// centeredRect computes the top-left corner of a w×h box centred
// within a maxW×maxH screen, clamped so the box never starts off the
// negative edge (the popup simply gets clipped against the far edge
// on very small terminals rather than crashing).
func centeredRect(w, h, maxW, maxH int) (x, y int) {
	x = (maxW - w) / 2
	y = (maxH - h) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

// sortIndicator returns the §6 "▲"/"▼" glyph for an active sort
// column, or "" when the column isn't the active one.
func sortIndicator(active bool, ascending bool) string {
	if !active {
		return ""
	}
	if ascending {
		return "▲"
	}
	return "▼"
}
