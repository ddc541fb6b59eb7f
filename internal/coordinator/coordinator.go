// Package coordinator implements the single-threaded state machine of
// SPEC_FULL.md §4.4: it fans in Tick, KeyPress and the two service
// reply mailboxes, mutates AppState accordingly, and asks the ui
// package to render on every iteration. The fan-in/select shape is
// grounded on linkerd-linkerd2 cli/cmd/top.go's renderTable loop,
// generalised from its two channels to four.
package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newellz2/ibtop/internal/counters"
	"github.com/newellz2/ibtop/internal/discovery"
	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/view"
)

// Renderer draws the current state; implemented by the ui package.
// Render must be idempotent and side-effect free on AppState, per
// §4.4(1) — it may only call State.SetVisibleRows and
// State.SetPopupVisibleRows to report back the main table's and the
// details popup's observed capacity.
type Renderer interface {
	Render(state *AppState)
}

// Coordinator owns AppState and drives the event loop.
type Coordinator struct {
	state *AppState

	discoverySvc *discovery.Service
	counterSvc   *counters.Service
	renderer     Renderer
	log          *logrus.Entry

	keys  chan KeyEvent
	ticks chan Tick

	// staticNodes, when non-nil, replaces the discovery service as the
	// node-set source (§6's --scope-file): 'd' and the startup request
	// re-read this slice instead of round-tripping through discoverySvc.
	// Counter collection still goes through the real transport.
	staticNodes []fabric.Node
}

// SetStaticNodes switches discovery requests from the discovery
// service to a static node set, per §6's scope-file option.
func (c *Coordinator) SetStaticNodes(nodes []fabric.Node) {
	c.staticNodes = nodes
}

// New constructs a coordinator. discoverySvc and counterSvc must
// already be running (Run called in their own goroutines).
func New(state *AppState, discoverySvc *discovery.Service, counterSvc *counters.Service, renderer Renderer, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		state:        state,
		discoverySvc: discoverySvc,
		counterSvc:   counterSvc,
		renderer:     renderer,
		log:          log.WithField("component", "coordinator"),
		keys:         make(chan KeyEvent, 16),
		ticks:        make(chan Tick, 1),
	}
}

// State exposes the coordinator's AppState for read-only inspection
// (e.g. by the ui package between Run iterations).
func (c *Coordinator) State() *AppState { return c.state }

// Keys is the input producer's KeyPress mailbox.
func (c *Coordinator) Keys() chan<- KeyEvent { return c.keys }

// Ticks is the input producer's Tick mailbox.
func (c *Coordinator) Ticks() chan<- Tick { return c.ticks }

// Run is the §4.4 event loop: render, then block on the four-way
// fan-in, then dispatch. It returns once state.Quit is set.
func (c *Coordinator) Run(ctx context.Context) {
	// Issue the initial discovery request the session starts with.
	c.requestDiscovery()

	for !c.state.Quit {
		if c.renderer != nil {
			c.renderer.Render(c.state)
		}

		select {
		case <-ctx.Done():
			return
		case t := <-c.ticks:
			c.Dispatch(t)
		case k := <-c.keys:
			c.Dispatch(k)
		case reply := <-c.discoverySvc.Out():
			c.Dispatch(reply)
		case reply := <-c.counterSvc.Out():
			c.Dispatch(reply)
		}
	}
}

// Dispatch is the coordinator's single public entry point for tests
// and the Run loop alike: it type-switches on event and applies the
// matching §4.4 transition.
func (c *Coordinator) Dispatch(event any) {
	switch e := event.(type) {
	case Tick:
		c.handleTick()
	case KeyEvent:
		c.handleKey(e)
	case discovery.Reply:
		c.handleDiscoveryReply(e)
	case counters.Reply:
		c.handleCounterReply(e)
	}
}

func (c *Coordinator) handleTick() {
	s := c.state
	s.Tick = (s.Tick + 1) % 30
	if s.Tick != 0 {
		return
	}
	s.AutoUpdateCounter++
	if s.AutoUpdate && !s.PendingCounterUpdate && s.AutoUpdateCounter >= s.AutoUpdateInterval {
		c.requestCounters()
		s.AutoUpdateCounter = 0
	}
}

func (c *Coordinator) handleKey(e KeyEvent) {
	s := c.state
	switch s.ActivePopup {
	case PopupSearch:
		c.handleSearchKey(e)
	case PopupDetails:
		c.handleDetailsKey(e)
	default:
		c.handleTableKey(e)
	}
}

func (c *Coordinator) handleTableKey(e KeyEvent) {
	s := c.state

	if e.Special == KeyRuneKey {
		switch e.Rune {
		case 'q':
			s.Quit = true
			return
		case 'd':
			c.requestDiscovery()
			return
		case 'u':
			c.requestCounters()
			return
		case 'U':
			s.AutoUpdate = !s.AutoUpdate
			return
		case 'W':
			s.CounterMode = view.ModeWhole
			c.recomputeDisplay()
			return
		case 'D':
			s.CounterMode = view.ModeDelta
			c.recomputeDisplay()
			return
		case 'B':
			s.CounterMode = view.ModeBaseline
			s.Baseline = s.Current.Clone()
			c.recomputeDisplay()
			return
		case 's':
			s.SortColumn = (s.SortColumn + 1) % view.NumSortColumns
			return
		case 'S':
			s.SortAscending = !s.SortAscending
			return
		case '/':
			s.ActivePopup = PopupSearch
			return
		}
		return
	}

	switch e.Special {
	case KeyEsc, KeyCtrlC:
		s.Quit = true
	case KeyArrowUp:
		c.moveSelection(-1)
	case KeyArrowDown:
		c.moveSelection(1)
	case KeyPageUp:
		c.moveSelection(-pageSize(s.VisibleRows))
	case KeyPageDown:
		c.moveSelection(pageSize(s.VisibleRows))
	case KeyHome:
		c.setSelection(0)
	case KeyEnd:
		c.setSelection(len(s.FilteredRows()) - 1)
	case KeyEnter:
		c.openDetails()
	}
}

func pageSize(visibleRows int) int {
	if visibleRows < 1 {
		return 1
	}
	return visibleRows
}

func (c *Coordinator) moveSelection(delta int) {
	s := c.state
	c.setSelection(s.SelectedRow + delta)
}

func (c *Coordinator) setSelection(row int) {
	s := c.state
	n := len(s.FilteredRows())
	if n == 0 {
		s.SelectedRow = 0
		s.TableOffset = 0
		return
	}
	if row < 0 {
		row = 0
	}
	if row > n-1 {
		row = n - 1
	}
	s.SelectedRow = row
	s.clampViewport(n)
}

func (c *Coordinator) openDetails() {
	s := c.state
	rows := s.FilteredRows()
	if s.SelectedRow < 0 || s.SelectedRow >= len(rows) {
		return
	}
	s.SelectedNodeLID = rows[s.SelectedRow].Node.LID
	s.HasSelectedNode = true
	s.Display = fabric.CounterStore{}
	s.Current = fabric.CounterStore{}
	s.Previous = fabric.CounterStore{}
	s.PopupSelected = 0
	s.PopupTableOffset = 0
	s.ActivePopup = PopupDetails
}

func (c *Coordinator) handleSearchKey(e KeyEvent) {
	s := c.state
	if e.Special == KeyEsc || e.Special == KeyEnter {
		s.ActivePopup = PopupNone
		return
	}
	if e.Special == KeyBackspace {
		if len(s.SearchFilter) > 0 {
			r := []rune(s.SearchFilter)
			s.SearchFilter = string(r[:len(r)-1])
		}
		return
	}
	if e.Special == KeyRuneKey && e.Rune != 0 {
		s.SearchFilter += string(e.Rune)
	}
}

func (c *Coordinator) handleDetailsKey(e KeyEvent) {
	s := c.state
	switch e.Special {
	case KeyEsc, KeyEnter:
		s.ActivePopup = PopupNone
	case KeyArrowUp:
		s.PopupSelected--
		s.clampPopupViewport(len(s.PopupRows()))
	case KeyArrowDown:
		s.PopupSelected++
		s.clampPopupViewport(len(s.PopupRows()))
	}
	if e.Special == KeyRuneKey && e.Rune == 'u' {
		c.requestCounters()
	}
}

func (c *Coordinator) requestDiscovery() {
	if c.staticNodes != nil {
		c.handleDiscoveryReply(discovery.Reply{Nodes: c.staticNodes})
		return
	}
	c.state.Status = "discovering..."
	select {
	case c.discoverySvc.In() <- discovery.Request{}:
	default:
		c.log.Warn("discovery request dropped: service busy")
	}
}

// requestCounters enqueues a counter request for the current
// targeting policy (§4.3): per-port when the details popup is open,
// aggregate otherwise. It is a no-op while a request is already
// pending, per §8 property 6.
func (c *Coordinator) requestCounters() {
	s := c.state
	if s.PendingCounterUpdate {
		return
	}

	targets := c.targets()
	if len(targets) == 0 {
		return
	}

	s.PendingCounterUpdate = true
	select {
	case c.counterSvc.In() <- counters.Request{Targets: targets}:
	default:
		s.PendingCounterUpdate = false
		c.log.Warn("counter request dropped: service busy")
	}
}

func (c *Coordinator) targets() []fabric.LidPort {
	s := c.state
	if s.ActivePopup == PopupDetails {
		node, ok := s.SelectedNode()
		if !ok {
			return nil
		}
		targets := make([]fabric.LidPort, 0, len(node.Ports))
		for _, p := range node.Ports {
			targets = append(targets, fabric.LidPort{LID: node.LID, Port: p.Number})
		}
		return targets
	}

	targets := make([]fabric.LidPort, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		targets = append(targets, fabric.LidPort{LID: n.LID, Port: fabric.AggregatePort})
	}
	return targets
}

func (c *Coordinator) handleDiscoveryReply(reply discovery.Reply) {
	s := c.state
	if reply.Err != nil {
		s.Status = "discovery failed: " + reply.Err.Error()
		return
	}
	s.Nodes = reply.Nodes
	if len(reply.Nodes) > 0 {
		s.SelectedRow = 0
		s.TableOffset = 0
	}
	s.Status = formatNodeCount(len(reply.Nodes))
}

func formatNodeCount(n int) string {
	if n == 1 {
		return "1 node"
	}
	return strconv.Itoa(n) + " nodes"
}

func (c *Coordinator) handleCounterReply(reply counters.Reply) {
	s := c.state
	s.Previous = s.Current
	s.Current = reply.Store
	c.recomputeDisplay()
	s.PendingCounterUpdate = false
	s.LastCounterUpdate = time.Now()
}

// recomputeDisplay rebuilds Display from Current under the active
// presentation mode, per §4.4's "Recompute display" rule.
func (c *Coordinator) recomputeDisplay() {
	s := c.state
	switch s.CounterMode {
	case view.ModeDelta:
		s.Display = deltaAgainst(s.Current, s.Previous)
	case view.ModeBaseline:
		s.Display = deltaAgainst(s.Current, s.Baseline)
	default:
		s.Display = s.Current.Clone()
	}
}

// deltaAgainst implements §4.4's counter delta semantics: for each key
// in the new record, delta = new-old when new>=old, else new
// (suspected wrap-or-reset). Keys absent from the new sample are
// dropped. A target absent from reference falls back to the raw map.
func deltaAgainst(current, reference fabric.CounterStore) fabric.CounterStore {
	out := make(fabric.CounterStore, len(current))
	for key, newRecord := range current {
		oldRecord, ok := reference[key]
		if !ok {
			out[key] = newRecord.Clone()
			continue
		}
		values := make(map[string]uint64, len(newRecord.Values))
		for k, newVal := range newRecord.Values {
			oldVal := oldRecord.Get(k)
			if newVal >= oldVal {
				values[k] = newVal - oldVal
			} else {
				values[k] = newVal
			}
		}
		out[key] = fabric.CounterRecord{
			Values:         values,
			StartTimestamp: newRecord.StartTimestamp,
			EndTimestamp:   newRecord.EndTimestamp,
		}
	}
	return out
}
