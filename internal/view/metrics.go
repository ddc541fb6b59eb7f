// Package view holds the pure functions that project coordinator state
// into rendered rows: filtering, sorting and the bandwidth/error
// metric derivations of SPEC_FULL.md §4.5. Nothing here mutates state;
// CounterMode is the only cross-package type these functions need.
package view

import "github.com/newellz2/ibtop/internal/fabric"

// CounterMode selects which derivation §4.4/§4.5 uses.
type CounterMode int

const (
	ModeWhole CounterMode = iota
	ModeDelta
	ModeBaseline
)

// laneEncodingFactor and bitsPerByte are the §4.5 bw() constants: the
// wire's 4x lane encoding and the conversion from octets to bits.
const (
	laneEncodingFactor = 4
	bitsPerByte        = 8
	nanosPerSecond     = 1e9
	nanosPerUnit       = 1e9
)

// bw implements §4.5's bw(r, k, mode): volume-like Gbps outside Delta
// mode (divisor 1, intentionally not a rate — see SPEC_FULL.md §9.ii
// and DESIGN.md resolution 2), a real rate in Delta mode.
func bw(r fabric.CounterRecord, key string, mode CounterMode) float64 {
	t := timeDivisor(r, mode)
	value := float64(r.Get(key))
	return (value * laneEncodingFactor * bitsPerByte / nanosPerUnit) / t
}

// bwLoss implements §4.5's bw_loss(r, k, mode).
func bwLoss(r fabric.CounterRecord, key string, mode CounterMode) float64 {
	t := timeDivisor(r, mode)
	value := float64(r.Get(key))
	return value * 64 / nanosPerUnit / t
}

func timeDivisor(r fabric.CounterRecord, mode CounterMode) float64 {
	// Literal §4.5 bw(): t starts from end_timestamp (or 1ns if absent),
	// then Delta mode converts it to seconds and every other mode
	// discards it back to 1.0. That discard is intentional — see
	// SPEC_FULL.md §9.ii — not a bug to "fix".
	t := 1.0
	if r.EndTimestamp != 0 {
		t = float64(r.EndTimestamp)
	}
	if mode == ModeDelta {
		t /= nanosPerSecond
	} else {
		t = 1.0
	}
	return t
}

// errorCount sums the fixed §4.5 ERROR_COUNTERS set.
func errorCount(r fabric.CounterRecord) uint64 {
	var total uint64
	for _, key := range fabric.ErrorCounters {
		total += r.Get(key)
	}
	return total
}

// errorStrings comma-joins the names of ERROR_COUNTERS entries with a
// non-zero value, in fabric.ErrorCounters order.
func errorStrings(r fabric.CounterRecord) string {
	out := ""
	for _, key := range fabric.ErrorCounters {
		if r.Get(key) == 0 {
			continue
		}
		if out != "" {
			out += ","
		}
		out += key
	}
	return out
}

// Metrics is the five derived values §4.5's row projection computes
// from one CounterRecord.
type Metrics struct {
	RecvBW       float64
	XmitBW       float64
	BWLoss       float64
	ErrorCount   uint64
	ErrorStrings string
}

// DeriveMetrics computes the five §4.5 derived metrics for one record
// under the active presentation mode.
func DeriveMetrics(r fabric.CounterRecord, mode CounterMode) Metrics {
	return Metrics{
		RecvBW:       bw(r, fabric.KeyRcvBytes, mode),
		XmitBW:       bw(r, fabric.KeyXmtBytes, mode),
		BWLoss:       bwLoss(r, fabric.KeyXmitWaits, mode),
		ErrorCount:   errorCount(r),
		ErrorStrings: errorStrings(r),
	}
}
