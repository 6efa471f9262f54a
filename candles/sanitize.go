package candles

import (
	"math"
	"sort"
)

// Outlier tolerances shared by the sanitizer and the realtime builder.
const (
	// Maximum single-minute range relative to the bar midpoint
	maxTickRangePct = 0.20 // bars built from ticks
	maxBarRangePct  = 0.10 // provider-supplied minute bars

	// Maximum move between consecutive closes
	maxHistoricalJumpPct = 0.15 // historical sequences
	maxLiveJumpPct       = 0.10 // live streaming values
	maxIntraCandlePct    = 0.05 // move from the candle's own open
)

// Sanitize returns a cleaned copy of the input sequence: structurally valid
// bars only, regular trading hours only, ascending by time, duplicate and
// regressive timestamps dropped, and jump outliers relative to the previous
// kept close removed. Malformed input is silently discarded; garbage in,
// empty slice out. The transform is pure and idempotent.
func Sanitize(in []Candle) []Candle {
	if len(in) == 0 {
		return []Candle{}
	}

	kept := make([]Candle, 0, len(in))
	for _, c := range in {
		if !c.IsValid() {
			continue
		}
		if !InRegularHours(c.Time) {
			continue
		}
		if c.RangePct() > maxTickRangePct {
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Time < kept[j].Time })

	out := make([]Candle, 0, len(kept))
	for _, c := range kept {
		if len(out) == 0 {
			out = append(out, c)
			continue
		}
		prev := out[len(out)-1]
		if c.Time <= prev.Time {
			continue
		}
		if jumpPct(c.Close, prev.Close) > maxHistoricalJumpPct ||
			jumpPct(c.High, prev.Close) > maxHistoricalJumpPct ||
			jumpPct(c.Low, prev.Close) > maxHistoricalJumpPct {
			continue
		}
		out = append(out, c)
	}

	return out
}

// jumpPct is the relative distance of value from reference.
func jumpPct(value, reference float64) float64 {
	if reference <= 0 {
		return math.Inf(1)
	}
	return math.Abs(value-reference) / reference
}
