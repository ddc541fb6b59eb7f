package coordinator

import (
	"time"

	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/view"
)

// Popup enumerates the mutually exclusive popup states of §4.4.
type Popup int

const (
	PopupNone Popup = iota
	PopupSearch
	PopupDetails
)

// AppState is all state the coordinator owns, per §9's "the
// coordinator owns all app state". The ui/view packages only read it
// through the exported accessor methods below, except that the ui
// reports its observed row capacity through SetVisibleRows and
// SetPopupVisibleRows.
type AppState struct {
	Nodes []fabric.Node

	Current  fabric.CounterStore
	Previous fabric.CounterStore
	Baseline fabric.CounterStore
	Display  fabric.CounterStore

	CounterMode   view.CounterMode
	SortColumn    view.SortColumn
	SortAscending bool

	Tick               int
	AutoUpdateCounter  int
	AutoUpdateInterval int
	AutoUpdate         bool

	PendingCounterUpdate bool
	LastCounterUpdate    time.Time

	Status string

	SelectedRow int
	TableOffset int
	VisibleRows int

	SearchFilter string

	ActivePopup      Popup
	SelectedNodeLID  uint16
	HasSelectedNode  bool
	PopupSelected    int
	PopupTableOffset int
	PopupVisibleRows int

	Quit bool
}

// NewAppState returns the zero-value-safe initial state, per §9's "no
// global mutable state" note: all of it is constructed here and
// injected, nothing is package-level.
func NewAppState(autoUpdateInterval int) *AppState {
	if autoUpdateInterval < 1 {
		autoUpdateInterval = 1
	}
	return &AppState{
		Current:            fabric.CounterStore{},
		Previous:           fabric.CounterStore{},
		Baseline:           fabric.CounterStore{},
		Display:            fabric.CounterStore{},
		AutoUpdateInterval: autoUpdateInterval,
		SortAscending:      true,
		Status:             "ready",
	}
}

// FilteredRows projects the current node set through the active
// filter and sort, per §4.5.
func (s *AppState) FilteredRows() []view.Row {
	filter := view.CompileFilter(s.SearchFilter)
	rows := view.ProjectRows(s.Nodes, s.Display, filter, s.CounterMode)
	view.SortRows(rows, s.SortColumn, s.SortAscending)
	return rows
}

// SelectedNode returns the node backing SelectedNodeLID, if any.
func (s *AppState) SelectedNode() (fabric.Node, bool) {
	if !s.HasSelectedNode {
		return fabric.Node{}, false
	}
	for _, n := range s.Nodes {
		if n.LID == s.SelectedNodeLID {
			return n, true
		}
	}
	return fabric.Node{}, false
}

// PopupRows projects the selected node's per-port rows, per §4.5's
// "Details popup rows".
func (s *AppState) PopupRows() []view.PortRow {
	node, ok := s.SelectedNode()
	if !ok {
		return nil
	}
	return view.ProjectPortRows(node, s.Display, s.CounterMode)
}

// SetVisibleRows records the view model's observed table capacity and
// re-clamps the viewport, per §4.5's "Visible-rows feedback".
func (s *AppState) SetVisibleRows(n int) {
	s.VisibleRows = n
	s.clampViewport(len(s.FilteredRows()))
}

func (s *AppState) clampViewport(filteredLen int) {
	s.SelectedRow, s.TableOffset = clampScroll(s.SelectedRow, s.TableOffset, s.VisibleRows, filteredLen)
}

// SetPopupVisibleRows records the details popup's observed row capacity
// and re-clamps its viewport, mirroring SetVisibleRows for the main
// table.
func (s *AppState) SetPopupVisibleRows(n int) {
	s.PopupVisibleRows = n
	s.clampPopupViewport(len(s.PopupRows()))
}

func (s *AppState) clampPopupViewport(rowLen int) {
	s.PopupSelected, s.PopupTableOffset = clampScroll(s.PopupSelected, s.PopupTableOffset, s.PopupVisibleRows, rowLen)
}

// clampScroll keeps a selected index and a scroll offset consistent
// with a row count and the viewport's visible-row capacity, per §4.5's
// "Visible-rows feedback": selection is bounded inside the row set, and
// the offset is pulled to keep selection on-screen.
func clampScroll(selected, offset, visible, rowLen int) (int, int) {
	if rowLen == 0 {
		return 0, 0
	}
	if selected >= rowLen {
		selected = rowLen - 1
	}
	if selected < 0 {
		selected = 0
	}

	maxOffset := rowLen - visible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	if visible > 0 {
		if selected < offset {
			offset = selected
		}
		if selected >= offset+visible {
			offset = selected - visible + 1
		}
	}
	return selected, offset
}
