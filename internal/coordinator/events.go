package coordinator

// SpecialKey names the non-printable keys the coordinator dispatches
// on. KeyRuneKey means "look at KeyEvent.Rune instead".
type SpecialKey int

const (
	KeyRuneKey SpecialKey = iota
	KeyEsc
	KeyCtrlC
	KeyEnter
	KeyBackspace
	KeyArrowUp
	KeyArrowDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
)

// KeyEvent is the coordinator's transport-independent key input: the
// ui package translates termbox.Event into this before dispatch, per
// §4.4's "KeyPress" event kind.
type KeyEvent struct {
	Special SpecialKey
	Rune    rune
}

// Tick is the ~30Hz clock event of §5's "input/tick producer".
type Tick struct{}
