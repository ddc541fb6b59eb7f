package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newellz2/ibtop/internal/fabric"
)

func recordWithEnd(values map[string]uint64, end int64) fabric.CounterRecord {
	return fabric.CounterRecord{Values: values, EndTimestamp: end}
}

func TestBWWholeModeIgnoresTimeDivisor(t *testing.T) {
	r := recordWithEnd(map[string]uint64{fabric.KeyRcvBytes: 1_000_000}, 5_000_000_000)
	m := DeriveMetrics(r, ModeWhole)
	// bw = value*4*8/1e9 / 1.0
	require.InDelta(t, 1_000_000.0*4*8/1e9, m.RecvBW, 1e-9)
}

func TestBWDeltaModeDividesByElapsedSeconds(t *testing.T) {
	r := recordWithEnd(map[string]uint64{fabric.KeyRcvBytes: 1_000_000}, 5_000_000_000) // 5s elapsed
	m := DeriveMetrics(r, ModeDelta)
	expected := (1_000_000.0 * 4 * 8 / 1e9) / 5.0
	require.InDelta(t, expected, m.RecvBW, 1e-9)
}

func TestErrorCountSumsFixedSet(t *testing.T) {
	r := fabric.CounterRecord{Values: map[string]uint64{
		fabric.KeySymbolErrors: 2,
		fabric.KeyLinkDowned:   3,
		fabric.KeyRcvBytes:     1000, // not an error counter, must be ignored
	}}
	m := DeriveMetrics(r, ModeWhole)
	require.Equal(t, uint64(5), m.ErrorCount)
	require.Contains(t, m.ErrorStrings, fabric.KeySymbolErrors)
	require.Contains(t, m.ErrorStrings, fabric.KeyLinkDowned)
	require.NotContains(t, m.ErrorStrings, fabric.KeyRcvBytes)
}

func TestErrorStringsEmptyWhenNoErrors(t *testing.T) {
	r := fabric.CounterRecord{Values: map[string]uint64{fabric.KeyRcvBytes: 5}}
	m := DeriveMetrics(r, ModeWhole)
	require.Equal(t, uint64(0), m.ErrorCount)
	require.Empty(t, m.ErrorStrings)
}

func TestCompileFilterDegradesOnInvalidRegex(t *testing.T) {
	re := CompileFilter("[invalid(")
	require.True(t, re.MatchString("anything"))
}

func TestProjectRowsFiltersByDescription(t *testing.T) {
	nodes := []fabric.Node{
		{LID: 17, Description: "switch-1"},
		{LID: 18, Description: "switch-2"},
		{LID: 19, Description: "leaf-9"},
	}
	store := fabric.CounterStore{}
	rows := ProjectRows(nodes, store, CompileFilter("switch"), ModeWhole)
	require.Len(t, rows, 2)
}

func TestSortRowsAscendingIsReverseOfDescending(t *testing.T) {
	nodes := []fabric.Node{
		{LID: 19, Description: "c"},
		{LID: 17, Description: "a"},
		{LID: 18, Description: "b"},
	}
	rows := ProjectRows(nodes, fabric.CounterStore{}, CompileFilter(""), ModeWhole)

	asc := append([]Row(nil), rows...)
	SortRows(asc, SortLID, true)
	desc := append([]Row(nil), rows...)
	SortRows(desc, SortLID, false)

	require.Equal(t, uint16(17), asc[0].Node.LID)
	require.Equal(t, uint16(19), desc[0].Node.LID)
	for i := range asc {
		require.Equal(t, asc[i].Node.LID, desc[len(desc)-1-i].Node.LID)
	}
}

func TestSortNoneLeavesInsertionOrder(t *testing.T) {
	nodes := []fabric.Node{
		{LID: 19, Description: "c"},
		{LID: 17, Description: "a"},
	}
	rows := ProjectRows(nodes, fabric.CounterStore{}, CompileFilter(""), ModeWhole)
	SortRows(rows, SortNone, true)
	require.Equal(t, uint16(19), rows[0].Node.LID)
}

func TestProjectPortRowsExcludesAggregateAndSortsByPort(t *testing.T) {
	node := fabric.Node{LID: 17, Ports: []fabric.Port{{Number: 1}, {Number: 2}}}
	store := fabric.CounterStore{
		{LID: 17, Port: fabric.AggregatePort}: {},
		{LID: 17, Port: 2}:                    {},
		{LID: 17, Port: 1}:                    {},
		{LID: 18, Port: 1}:                    {}, // different node, must be excluded
	}
	rows := ProjectPortRows(node, store, ModeWhole)
	require.Len(t, rows, 2)
	require.Equal(t, uint16(1), rows[0].Port.Number)
	require.Equal(t, uint16(2), rows[1].Port.Number)
}
