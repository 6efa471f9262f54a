package candles

import (
	"log"
	"math"
	"time"
)

// US equity market regular session (Eastern Time)
const (
	MarketTimeZone    = "America/New_York"
	marketOpenMinute  = 9*60 + 30 // 09:30 ET
	marketCloseMinute = 16 * 60   // 16:00 ET
)

// Candle is a single 1-minute OHLC bar. Time is epoch seconds aligned to the
// minute boundary.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// IsValid reports whether the candle is structurally sound: finite positive
// OHLC values with low <= open,close <= high.
func (c Candle) IsValid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if c.Time <= 0 {
		return false
	}
	if c.Low > c.High {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}

// RangePct returns the candle's high-low range as a fraction of its midpoint.
func (c Candle) RangePct() float64 {
	avg := (c.High + c.Low) / 2
	if avg <= 0 {
		return math.Inf(1)
	}
	return (c.High - c.Low) / avg
}

// MinuteStart truncates an epoch-seconds timestamp to its minute boundary.
func MinuteStart(epochSec int64) int64 {
	return epochSec - epochSec%60
}

var easternTime = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation(MarketTimeZone)
	if err != nil {
		log.Printf("⚠️ Failed to load timezone %s: %v", MarketTimeZone, err)
		// Fallback: fixed EST offset, DST drift accepted
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// InRegularHours reports whether the timestamp falls inside the regular
// trading session (09:30-16:00 ET, weekdays). Weekend and pre/after-hours
// bars are dropped outright, not merely hidden.
func InRegularHours(epochSec int64) bool {
	t := time.Unix(epochSec, 0).In(easternTime)

	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	return minute >= marketOpenMinute && minute < marketCloseMinute
}
