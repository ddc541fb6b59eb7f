package ui

import (
	"github.com/fatih/color"
	termbox "github.com/nsf/termbox-go"
)

// Severity classifies a row or status line for coloring, shared
// between the termbox cell buffer and the plain-stdout messages
// cmd/ibtop prints before Init()/after Close() (§10's "no writes to
// the terminal while termbox owns the screen"). Anchoring both ends on
// the same color.Attribute vocabulary that linkerd2's root.go uses for
// okStatus/warnStatus/failStatus keeps the two rendering paths
// consistent without duplicating a color table.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityOK
	SeverityWarn
	SeverityError
)

// ansiAttribute is the fatih/color attribute linkerd2's root.go would
// use for the same severity (okStatus is FgGreen, warnStatus FgYellow,
// failStatus FgRed).
func ansiAttribute(s Severity) color.Attribute {
	switch s {
	case SeverityOK:
		return color.FgGreen
	case SeverityWarn:
		return color.FgYellow
	case SeverityError:
		return color.FgRed
	default:
		return color.Reset
	}
}

// termboxAttribute maps the same severity onto the termbox.Attribute
// the cell-buffer renderer sets as a row or status line's foreground.
func termboxAttribute(s Severity) termbox.Attribute {
	switch s {
	case SeverityOK:
		return termbox.ColorGreen
	case SeverityWarn:
		return termbox.ColorYellow
	case SeverityError:
		return termbox.ColorRed
	default:
		return termbox.ColorDefault
	}
}

// Sprint renders msg in s's color for a plain stdout/stderr write,
// using the same color.Attribute table as the termbox side.
func Sprint(s Severity, msg string) string {
	return color.New(ansiAttribute(s)).Sprint(msg)
}
