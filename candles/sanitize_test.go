package candles

import (
	"testing"
	"time"
)

// sessionTime returns an epoch timestamp inside the regular session on a
// known weekday (Tuesday 2026-01-06), offset in minutes from 10:00 ET.
func sessionTime(minuteOffset int) int64 {
	base := time.Date(2026, time.January, 6, 10, 0, 0, 0, easternTime)
	return base.Add(time.Duration(minuteOffset) * time.Minute).Unix()
}

func flatBar(minuteOffset int, price float64) Candle {
	return Candle{
		Time:  sessionTime(minuteOffset),
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

func TestSanitizeDropsStructurallyInvalidBars(t *testing.T) {
	tests := []struct {
		name string
		bar  Candle
	}{
		{"zero price", Candle{Time: sessionTime(0), Open: 0, High: 100, Low: 99, Close: 100}},
		{"negative price", Candle{Time: sessionTime(0), Open: 100, High: 100, Low: -1, Close: 100}},
		{"low above high", Candle{Time: sessionTime(0), Open: 100, High: 99, Low: 101, Close: 100}},
		{"open outside range", Candle{Time: sessionTime(0), Open: 105, High: 101, Low: 99, Close: 100}},
		{"close outside range", Candle{Time: sessionTime(0), Open: 100, High: 101, Low: 99, Close: 95}},
		{"zero time", Candle{Time: 0, Open: 100, High: 101, Low: 99, Close: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize([]Candle{tt.bar})
			if len(out) != 0 {
				t.Errorf("expected bar to be dropped, got %d bars", len(out))
			}
		})
	}
}

func TestSanitizeDropsBarsOutsideRegularHours(t *testing.T) {
	inSession := flatBar(0, 100)

	tests := []struct {
		name string
		when time.Time
	}{
		{"pre-market", time.Date(2026, time.January, 6, 9, 0, 0, 0, easternTime)},
		{"at the close", time.Date(2026, time.January, 6, 16, 0, 0, 0, easternTime)},
		{"after hours", time.Date(2026, time.January, 6, 17, 30, 0, 0, easternTime)},
		{"saturday", time.Date(2026, time.January, 10, 11, 0, 0, 0, easternTime)},
		{"sunday", time.Date(2026, time.January, 11, 11, 0, 0, 0, easternTime)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := inSession
			bar.Time = tt.when.Unix()
			out := Sanitize([]Candle{bar})
			if len(out) != 0 {
				t.Errorf("expected out-of-session bar to be dropped, got %d bars", len(out))
			}
		})
	}

	// sanity: the in-session counterpart survives
	if out := Sanitize([]Candle{inSession}); len(out) != 1 {
		t.Fatalf("expected in-session bar to survive, got %d bars", len(out))
	}
}

func TestSanitizeSortsAndDedupes(t *testing.T) {
	in := []Candle{
		flatBar(2, 102),
		flatBar(0, 100),
		flatBar(1, 101),
		flatBar(1, 101), // duplicate timestamp
	}

	out := Sanitize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars after sort+dedupe, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Time <= out[i-1].Time {
			t.Errorf("bars not strictly ascending at index %d: %d <= %d", i, out[i].Time, out[i-1].Time)
		}
	}
}

func TestSanitizeDropsRangeOutliers(t *testing.T) {
	// 25% high-low range relative to midpoint
	wild := Candle{Time: sessionTime(0), Open: 100, High: 113, Low: 87, Close: 100}
	out := Sanitize([]Candle{wild})
	if len(out) != 0 {
		t.Errorf("expected wide-range bar to be dropped, got %d bars", len(out))
	}
}

func TestSanitizeDropsJumpOutliers(t *testing.T) {
	tests := []struct {
		name string
		next Candle
		kept bool
	}{
		{"20 percent close jump", flatBar(1, 120), false},
		{"high spikes against flat close", Candle{Time: sessionTime(1), Open: 100, High: 118, Low: 100, Close: 100}, false},
		{"low spikes against flat close", Candle{Time: sessionTime(1), Open: 100, High: 100, Low: 82, Close: 100}, false},
		{"10 percent move survives", flatBar(1, 110), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize([]Candle{flatBar(0, 100), tt.next})
			want := 1
			if tt.kept {
				want = 2
			}
			if len(out) != want {
				t.Errorf("expected %d bars, got %d", want, len(out))
			}
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	in := []Candle{
		flatBar(3, 103),
		flatBar(0, 100),
		{Time: sessionTime(1), Open: 100, High: 130, Low: 70, Close: 100}, // range outlier
		flatBar(2, 102),
	}

	once := Sanitize(in)
	twice := Sanitize(once)

	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %d bars then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("bar %d changed on second pass: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestSanitizeGarbageInEmptyOut(t *testing.T) {
	in := []Candle{
		{},
		{Time: -5, Open: 1, High: 1, Low: 1, Close: 1},
		{Time: sessionTime(0), Open: 100, High: 90, Low: 110, Close: 100},
	}
	out := Sanitize(in)
	if out == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(out) != 0 {
		t.Errorf("expected all garbage dropped, got %d bars", len(out))
	}
}
