package ui

import (
	termbox "github.com/nsf/termbox-go"

	"github.com/newellz2/ibtop/internal/coordinator"
)

// decodeKey turns a termbox key event into the coordinator's
// transport-independent KeyEvent, per §5's input producer: termbox is
// the only package that knows about termbox.Event.
func decodeKey(ev termbox.Event) (coordinator.KeyEvent, bool) {
	if ev.Type != termbox.EventKey {
		return coordinator.KeyEvent{}, false
	}

	if special, ok := specialKeys[ev.Key]; ok {
		return coordinator.KeyEvent{Special: special}, true
	}

	if ev.Ch != 0 {
		return coordinator.KeyEvent{Special: coordinator.KeyRuneKey, Rune: ev.Ch}, true
	}

	return coordinator.KeyEvent{}, false
}

var specialKeys = map[termbox.Key]coordinator.SpecialKey{
	termbox.KeyEsc:        coordinator.KeyEsc,
	termbox.KeyCtrlC:      coordinator.KeyCtrlC,
	termbox.KeyEnter:      coordinator.KeyEnter,
	termbox.KeyBackspace:  coordinator.KeyBackspace,
	termbox.KeyBackspace2: coordinator.KeyBackspace,
	termbox.KeyArrowUp:    coordinator.KeyArrowUp,
	termbox.KeyArrowDown:  coordinator.KeyArrowDown,
	termbox.KeyPgup:       coordinator.KeyPageUp,
	termbox.KeyPgdn:       coordinator.KeyPageDown,
	termbox.KeyHome:       coordinator.KeyHome,
	termbox.KeyEnd:        coordinator.KeyEnd,
}
