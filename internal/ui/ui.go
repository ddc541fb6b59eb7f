package ui

import (
	"context"
	"fmt"
	"time"

	runewidth "github.com/mattn/go-runewidth"
	termbox "github.com/nsf/termbox-go"
	"github.com/sirupsen/logrus"

	"github.com/newellz2/ibtop/internal/coordinator"
	"github.com/newellz2/ibtop/internal/view"
)

const (
	headerRow  = 0
	columnsRow = 2
	tableTop   = 3
	statusGap  = 1 // status line reserved at the bottom
)

var (
	columnNames  = []string{"LID", "Description", "Ports", "Recv Gbps", "Xmit Gbps", "BW Loss", "Errors", "Error Detail"}
	columnWidths = []int{6, 28, 6, 11, 11, 9, 8, 24}
)

// Model is the termbox-backed coordinator.Renderer and §5 input
// producer. tbprint/tbprintBold/renderHeaders below are the same
// shape as linkerd2 cli/cmd/top.go's of the same name, generalised
// from top's two fixed columns to the §4.5 eight-column node table
// plus its two popups.
type Model struct {
	log *logrus.Entry
}

// New constructs a ui Model. Call Init before Render/RunInput.
func New(log *logrus.Entry) *Model {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Model{log: log.WithField("component", "ui")}
}

// Init starts termbox. Callers must defer Close.
func (m *Model) Init() error {
	return termbox.Init()
}

// Close restores the terminal.
func (m *Model) Close() {
	termbox.Close()
}

// RunInput is the §5 "input/tick producer": it emits Tick at ~30Hz
// and decodes termbox key events into the coordinator's KeyPress
// mailbox. termbox-go's PollEvent has no timeout form, so a background
// goroutine blocks in PollEvent and this loop selects between its
// events and a 30Hz ticker.
func (m *Model) RunInput(ctx context.Context, coord *coordinator.Coordinator) {
	const tickInterval = time.Second / 30

	events := make(chan termbox.Event, 8)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case coord.Ticks() <- coordinator.Tick{}:
			default:
			}
		case ev := <-events:
			key, ok := decodeKey(ev)
			if !ok {
				continue
			}
			select {
			case coord.Keys() <- key:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Render draws the current state. It is idempotent and the only state
// it writes back is the visible-row capacity of the table and of the
// details popup (through SetVisibleRows and SetPopupVisibleRows, which
// also re-clamp the matching selection and offset), per §4.4(1)/§4.5's
// "Visible-rows feedback".
func (m *Model) Render(state *coordinator.AppState) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	w, h := termbox.Size()

	tbprint(0, headerRow, fmt.Sprintf("ibtop — %s  (d)iscover (u)pdate (U)auto (W/D/B)mode (s)ort (S)dir (/)filter (q)uit", autoUpdateLabel(state)))
	renderColumnHeaders(state, w)

	rows := state.FilteredRows()
	visible := h - tableTop - statusGap
	if visible < 0 {
		visible = 0
	}
	state.SetVisibleRows(visible)

	renderRows(rows, state, visible, w)
	renderStatusLine(state, h-1, w)

	switch state.ActivePopup {
	case coordinator.PopupSearch:
		renderSearchPopup(state, w, h)
	case coordinator.PopupDetails:
		renderDetailsPopup(state, w, h)
	}

	termbox.Flush()
}

func autoUpdateLabel(state *coordinator.AppState) string {
	if state.AutoUpdate {
		return "auto:on"
	}
	return "auto:off"
}

func renderColumnHeaders(state *coordinator.AppState, screenW int) {
	x := 0
	for i, name := range columnNames {
		label := name + sortIndicator(int(state.SortColumn) == i+1, state.SortAscending)
		tbprintBold(x, columnsRow, padColumn(label, columnWidths[i]))
		x += columnWidths[i] + 1
		if x >= screenW {
			break
		}
	}
}

func renderRows(rows []view.Row, state *coordinator.AppState, visible, screenW int) {
	end := state.TableOffset + visible
	if end > len(rows) {
		end = len(rows)
	}
	for i := state.TableOffset; i < end; i++ {
		y := tableTop + (i - state.TableOffset)
		row := rows[i]
		sev := SeverityNormal
		if row.Metrics.ErrorCount > 0 {
			sev = SeverityError
		}
		attr := termboxAttribute(sev)
		if attr == termbox.ColorDefault && i == state.SelectedRow {
			attr = termbox.ColorCyan
		}

		cells := []string{
			fmt.Sprintf("%d", row.Node.LID),
			row.Node.Description,
			fmt.Sprintf("%d", len(row.Node.Ports)),
			fmt.Sprintf("%.3f", row.Metrics.RecvBW),
			fmt.Sprintf("%.3f", row.Metrics.XmitBW),
			fmt.Sprintf("%.3f", row.Metrics.BWLoss),
			fmt.Sprintf("%d", row.Metrics.ErrorCount),
			row.Metrics.ErrorStrings,
		}
		x := 0
		for col, cell := range cells {
			tbprintAttr(x, y, padColumn(cell, columnWidths[col]), attr)
			x += columnWidths[col] + 1
			if x >= screenW {
				break
			}
		}
	}
}

func renderStatusLine(state *coordinator.AppState, y, screenW int) {
	tbprint(0, y, padColumn(state.Status, screenW))
}

func renderSearchPopup(state *coordinator.AppState, screenW, screenH int) {
	w, h := 50, 3
	x, y := centeredRect(w, h, screenW, screenH)
	drawBox(x, y, w, h)
	tbprintBold(x+2, y+1, "filter: "+state.SearchFilter)
}

func renderDetailsPopup(state *coordinator.AppState, screenW, screenH int) {
	w, h := 70, 16
	x, y := centeredRect(w, h, screenW, screenH)
	drawBox(x, y, w, h)

	node, ok := state.SelectedNode()
	title := "details"
	if ok {
		title = fmt.Sprintf("details — %s (lid %d)", node.Description, node.LID)
	}
	tbprintBold(x+2, y, truncate(title, w-4))

	visible := h - 3
	state.SetPopupVisibleRows(visible)
	rows := state.PopupRows()
	end := state.PopupTableOffset + visible
	if end > len(rows) {
		end = len(rows)
	}
	for i := state.PopupTableOffset; i < end; i++ {
		r := rows[i]
		line := fmt.Sprintf("port %-4d recv %.3f xmit %.3f loss %.3f errs %d %s remote=%s",
			r.Port.Number, r.Metrics.RecvBW, r.Metrics.XmitBW, r.Metrics.BWLoss, r.Metrics.ErrorCount, r.Metrics.ErrorStrings, r.Port.RemoteNodeDescription)
		attr := termbox.ColorDefault
		if i == state.PopupSelected {
			attr = termbox.ColorCyan
		}
		tbprintAttr(x+2, y+2+(i-state.PopupTableOffset), truncate(line, w-4), attr)
	}
}

func drawBox(x, y, w, h int) {
	for i := 0; i < w; i++ {
		termbox.SetCell(x+i, y, '─', termbox.ColorDefault, termbox.ColorDefault)
		termbox.SetCell(x+i, y+h-1, '─', termbox.ColorDefault, termbox.ColorDefault)
	}
	for i := 0; i < h; i++ {
		termbox.SetCell(x, y+i, '│', termbox.ColorDefault, termbox.ColorDefault)
		termbox.SetCell(x+w-1, y+i, '│', termbox.ColorDefault, termbox.ColorDefault)
	}
}

func tbprint(x, y int, msg string) {
	tbprintAttr(x, y, msg, termbox.ColorDefault)
}

func tbprintBold(x, y int, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, termbox.AttrBold, termbox.ColorDefault)
		x += runewidth.RuneWidth(c)
	}
}

func tbprintAttr(x, y int, msg string, fg termbox.Attribute) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, termbox.ColorDefault)
		x += runewidth.RuneWidth(c)
	}
}
