package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newellz2/ibtop/internal/counters"
	"github.com/newellz2/ibtop/internal/discovery"
	"github.com/newellz2/ibtop/internal/fabric"
	"github.com/newellz2/ibtop/internal/transport/testtransport"
	"github.com/newellz2/ibtop/internal/view"
)

// fakeClock lets tests advance the test transport's counter synthesis
// deterministically instead of depending on wall-clock sleeps.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// harness wires a coordinator against the test transport with both
// services actually running. Tests drive the coordinator through its
// own methods (Dispatch, handleKey, requestDiscovery, requestCounters)
// rather than by setting AppState fields directly.
type harness struct {
	t     *testing.T
	coord *Coordinator
	disc  *discovery.Service
	cnt   *counters.Service
	clock *fakeClock
	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := testtransport.New(testtransport.Config{
		Switches: 8, PortsPerSwitch: 4, BaseLID: 17,
		Now: clock.now,
	})

	disc := discovery.New(discovery.Config{HCA: "mlx5_0", TimeoutMS: 250, Retries: 2}, tr, nil)
	cnt := counters.New(counters.Config{HCA: "mlx5_0", TimeoutMS: 250, Retries: 2, Threads: 4}, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go disc.Run(ctx)
	go cnt.Run(ctx)

	state := NewAppState(2)
	coord := New(state, disc, cnt, nil, nil)

	h := &harness{t: t, coord: coord, disc: disc, cnt: cnt, clock: clock, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		disc.Stop()
		cnt.Stop()
	})
	return h
}

func (h *harness) discover() {
	h.coord.requestDiscovery()
	select {
	case reply := <-h.disc.Out():
		h.coord.Dispatch(reply)
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for discovery reply")
	}
}

func (h *harness) update() {
	h.coord.requestCounters()
	select {
	case reply := <-h.cnt.Out():
		h.coord.Dispatch(reply)
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for counter reply")
	}
}

func TestS1DiscoveryBaseline(t *testing.T) {
	h := newHarness(t)
	h.discover()

	s := h.coord.State()
	require.Len(t, s.Nodes, 8)
	for i, n := range s.Nodes {
		require.Equal(t, uint16(17+i), n.LID)
	}
	require.Equal(t, 0, s.SelectedRow)
}

func TestS2SingleUpdateWhole(t *testing.T) {
	h := newHarness(t)
	h.discover()
	h.clock.advance(time.Second)
	h.update()

	s := h.coord.State()
	require.Len(t, s.Display, 8)
	for _, n := range s.Nodes {
		rec := s.Display[fabric.LidPort{LID: n.LID, Port: fabric.AggregatePort}]
		m := view.DeriveMetrics(rec, s.CounterMode)
		require.Greater(t, m.RecvBW, 0.0)
	}
}

func TestS3TwoUpdatesDelta(t *testing.T) {
	h := newHarness(t)
	h.discover()
	h.clock.advance(time.Second)
	h.update()

	h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: 'D'})
	require.Equal(t, view.ModeDelta, h.coord.State().CounterMode)

	h.clock.advance(time.Second)
	h.update()

	s := h.coord.State()
	for key, newRec := range s.Current {
		oldRec := s.Previous[key]
		displayed := s.Display[key]
		for k, newVal := range newRec.Values {
			oldVal := oldRec.Get(k)
			if newVal >= oldVal {
				require.Equal(t, newVal-oldVal, displayed.Get(k))
			} else {
				require.Equal(t, newVal, displayed.Get(k))
			}
		}
	}

	rows := s.FilteredRows()
	view.SortRows(rows, view.SortRecvBW, false)
	require.Equal(t, uint16(24), rows[0].Node.LID) // highest LID scales highest
}

func TestS4Baseline(t *testing.T) {
	h := newHarness(t)
	h.discover()
	h.clock.advance(time.Second)
	h.update() // first Whole sample
	h.clock.advance(time.Second)
	h.update() // second Whole sample

	h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: 'B'})
	require.Equal(t, view.ModeBaseline, h.coord.State().CounterMode)
	baselineSnapshot := h.coord.State().Baseline.Clone()
	require.Equal(t, h.coord.State().Current, baselineSnapshot)

	h.clock.advance(time.Second)
	h.update()

	s := h.coord.State()
	for key, newRec := range s.Current {
		base := baselineSnapshot[key]
		displayed := s.Display[key]
		for k, newVal := range newRec.Values {
			oldVal := base.Get(k)
			if newVal >= oldVal {
				require.Equal(t, newVal-oldVal, displayed.Get(k))
			}
		}
	}
}

func TestS5FilterAndNavigate(t *testing.T) {
	h := newHarness(t)
	h.discover()

	h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: '/'})
	require.Equal(t, PopupSearch, h.coord.State().ActivePopup)
	for _, r := range "switch-1" {
		h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: r})
	}
	h.coord.handleKey(KeyEvent{Special: KeyEnter})
	require.Equal(t, PopupNone, h.coord.State().ActivePopup)

	rows := h.coord.State().FilteredRows()
	require.Len(t, rows, 1)
	require.Equal(t, "switch-1", rows[0].Node.Description)

	h.coord.handleKey(KeyEvent{Special: KeyArrowDown})
	require.Equal(t, 0, h.coord.State().SelectedRow)
}

func TestS6DetailsScopesCounterRequest(t *testing.T) {
	h := newHarness(t)
	h.discover()

	h.coord.handleKey(KeyEvent{Special: KeyEnter})
	require.Equal(t, PopupDetails, h.coord.State().ActivePopup)

	targets := h.coord.targets()
	require.NotEmpty(t, targets)
	node := h.coord.State().Nodes[0]
	for _, target := range targets {
		require.Equal(t, node.LID, target.LID)
		require.NotEqual(t, fabric.AggregatePort, target.Port)
	}
}

func TestPendingCounterUpdateBlocksSecondRequest(t *testing.T) {
	h := newHarness(t)
	h.discover()

	h.coord.requestCounters()
	require.True(t, h.coord.State().PendingCounterUpdate)

	h.coord.requestCounters() // no-op while pending
	require.True(t, h.coord.State().PendingCounterUpdate)

	select {
	case reply := <-h.cnt.Out():
		h.coord.Dispatch(reply)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for counter reply")
	}
	require.False(t, h.coord.State().PendingCounterUpdate)
}

func TestWholeModeDisplayEqualsCurrent(t *testing.T) {
	h := newHarness(t)
	h.discover()
	h.clock.advance(time.Second)
	h.update()

	s := h.coord.State()
	require.Equal(t, s.Current, s.Display)
}

func TestStaticNodesBypassDiscoveryService(t *testing.T) {
	h := newHarness(t)
	nodes := []fabric.Node{{LID: 100, Description: "static-1"}}
	h.coord.SetStaticNodes(nodes)

	h.coord.requestDiscovery()

	s := h.coord.State()
	require.Equal(t, nodes, s.Nodes)
}

func TestDetailsPopupScrollsPastVisibleRows(t *testing.T) {
	h := newHarness(t)
	h.discover()

	h.coord.handleKey(KeyEvent{Special: KeyEnter})
	require.Equal(t, PopupDetails, h.coord.State().ActivePopup)
	h.clock.advance(time.Second)
	h.update() // populate per-port Display rows for the selected node

	totalPorts := len(h.coord.State().PopupRows())
	const visible = 2
	require.Greater(t, totalPorts, visible, "fixture must offer more ports than the visible window to exercise scrolling")

	h.coord.State().SetPopupVisibleRows(visible)

	for i := 0; i < totalPorts-1; i++ {
		h.coord.handleKey(KeyEvent{Special: KeyArrowDown})
	}

	s := h.coord.State()
	require.Equal(t, totalPorts-1, s.PopupSelected)
	require.Less(t, s.PopupSelected, s.PopupTableOffset+visible, "selection must stay within the rendered window")
	require.GreaterOrEqual(t, s.PopupSelected, s.PopupTableOffset)
	require.Equal(t, totalPorts-visible, s.PopupTableOffset, "offset must scroll to keep the last row on-screen")

	for i := 0; i < totalPorts-1; i++ {
		h.coord.handleKey(KeyEvent{Special: KeyArrowUp})
	}
	s = h.coord.State()
	require.Equal(t, 0, s.PopupSelected)
	require.Equal(t, 0, s.PopupTableOffset)
}

func TestReenteringBaselineZeroesUnchangedCounters(t *testing.T) {
	h := newHarness(t)
	h.discover()
	h.clock.advance(time.Second)
	h.update()

	h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: 'B'})
	h.coord.handleKey(KeyEvent{Special: KeyRuneKey, Rune: 'B'}) // re-snapshot without an intervening update

	s := h.coord.State()
	for key, rec := range s.Baseline {
		require.Equal(t, s.Current[key], rec)
	}

	// The clock has not advanced since the fresh snapshot, so the test
	// transport's scale function returns identical values: the first
	// post-baseline delta must be zero for every byte counter.
	h.update()
	for _, rec := range s.Display {
		require.Equal(t, uint64(0), rec.Get(fabric.KeyRcvBytes))
		require.Equal(t, uint64(0), rec.Get(fabric.KeyXmtBytes))
	}
}
