package view

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/newellz2/ibtop/internal/fabric"
)

// SortColumn enumerates §4.5's 0..=8 sort columns: 0 disables sorting.
type SortColumn int

const (
	SortNone SortColumn = iota
	SortLID
	SortDescription
	SortPortCount
	SortRecvBW
	SortXmitBW
	SortBWLoss
	SortErrorCount
	SortErrorStrings
)

// NumSortColumns is the modulus 's' cycles sort_column through (§4.4).
const NumSortColumns = 9

// Row is one projected table row.
type Row struct {
	Node    fabric.Node
	Metrics Metrics
}

// CompileFilter compiles source as a case-insensitive regular
// expression. An invalid pattern degrades to the always-matching empty
// pattern, per §4.5's "Filter" rule.
func CompileFilter(source string) *regexp.Regexp {
	re, err := regexp.Compile("(?i)" + source)
	if err != nil {
		re = regexp.MustCompile("")
	}
	return re
}

// ProjectRows filters nodes by description against filter, then
// derives metrics for each from display using the aggregate pseudo-port,
// per §4.5's "Row projection".
func ProjectRows(nodes []fabric.Node, display fabric.CounterStore, filter *regexp.Regexp, mode CounterMode) []Row {
	if filter == nil {
		filter = regexp.MustCompile("")
	}

	rows := make([]Row, 0, len(nodes))
	for _, n := range nodes {
		if !filter.MatchString(n.Description) {
			continue
		}
		record := display[fabric.LidPort{LID: n.LID, Port: fabric.AggregatePort}]
		rows = append(rows, Row{Node: n, Metrics: DeriveMetrics(record, mode)})
	}
	return rows
}

// SortRows sorts rows in place by column, honoring ascending. Column
// SortNone leaves insertion order untouched. The sort is stable so
// §8's "Sort is total and stable" holds and ascending/descending
// outputs are exact reverses of each other for non-NaN columns.
func SortRows(rows []Row, column SortColumn, ascending bool) {
	if column == SortNone {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return lessForColumn(rows[i], rows[j], column)
	})
	if !ascending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
}

func lessForColumn(a, b Row, column SortColumn) bool {
	switch column {
	case SortLID:
		return a.Node.LID < b.Node.LID
	case SortDescription:
		return strings.Compare(a.Node.Description, b.Node.Description) < 0
	case SortPortCount:
		return len(a.Node.Ports) < len(b.Node.Ports)
	case SortRecvBW:
		return numericLess(a.Metrics.RecvBW, b.Metrics.RecvBW)
	case SortXmitBW:
		return numericLess(a.Metrics.XmitBW, b.Metrics.XmitBW)
	case SortBWLoss:
		return numericLess(a.Metrics.BWLoss, b.Metrics.BWLoss)
	case SortErrorCount:
		return a.Metrics.ErrorCount < b.Metrics.ErrorCount
	case SortErrorStrings:
		return strings.Compare(a.Metrics.ErrorStrings, b.Metrics.ErrorStrings) < 0
	default:
		return false
	}
}

// numericLess treats NaN as Equal (never less), per §4.5's "NaN
// treated as Equal" rule; the order is total only over non-NaN values.
func numericLess(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return a < b
}

// PortRow is one row of the per-node details popup.
type PortRow struct {
	Port    fabric.Port
	Metrics Metrics
}

// ProjectPortRows builds the details-popup row set for one node: every
// display entry keyed by the node's LID with a non-aggregate port,
// sorted by port number ascending, per §4.5's "Details popup rows".
func ProjectPortRows(node fabric.Node, display fabric.CounterStore, mode CounterMode) []PortRow {
	rows := make([]PortRow, 0, len(node.Ports))
	for key, record := range display {
		if key.LID != node.LID || key.Port == fabric.AggregatePort {
			continue
		}
		port, ok := node.PortByNumber(key.Port)
		if !ok {
			port = fabric.Port{Number: key.Port}
		}
		rows = append(rows, PortRow{Port: port, Metrics: DeriveMetrics(record, mode)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Port.Number < rows[j].Port.Number })
	return rows
}
