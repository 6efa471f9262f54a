package candles

import (
	"testing"
	"time"
)

func sessionClock(minuteOffset int, sec int) time.Time {
	base := time.Date(2026, time.January, 6, 10, 0, 0, 0, easternTime)
	return base.Add(time.Duration(minuteOffset)*time.Minute + time.Duration(sec)*time.Second)
}

func TestApplyTickBuildsMinuteCandle(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)

	ticks := []struct {
		price float64
		sec   int
	}{
		{100.00, 0},
		{100.50, 10},
		{99.80, 30},
		{100.20, 55},
	}
	for _, tk := range ticks {
		if !b.ApplyTick(tk.price, sessionClock(0, tk.sec)) {
			t.Fatalf("tick %.2f rejected", tk.price)
		}
	}

	cur, ok := b.Current()
	if !ok {
		t.Fatal("expected an in-progress candle")
	}
	if cur.Open != 100.00 || cur.High != 100.50 || cur.Low != 99.80 || cur.Close != 100.20 {
		t.Errorf("unexpected OHLC: %+v", cur)
	}
	if cur.Time != MinuteStart(sessionClock(0, 0).Unix()) {
		t.Errorf("candle not aligned to minute boundary: %d", cur.Time)
	}
}

func TestApplyTickRollsOverOnNewMinute(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)

	b.ApplyTick(100, sessionClock(0, 5))
	b.ApplyTick(101, sessionClock(1, 5))

	bars := b.Bars()
	if len(bars) != 2 {
		t.Fatalf("expected frozen bar plus current, got %d", len(bars))
	}
	if bars[0].Close != 100 {
		t.Errorf("frozen bar close = %.2f, want 100", bars[0].Close)
	}
	cur, _ := b.Current()
	if cur.Open != 101 || cur.Close != 101 {
		t.Errorf("new candle should open at the rollover tick: %+v", cur)
	}
}

func TestApplyTickRejectsGarbageAndJumps(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 0))

	tests := []struct {
		name  string
		price float64
	}{
		{"zero", 0},
		{"negative", -5},
		{"12 percent jump up", 112},
		{"12 percent jump down", 88},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if b.ApplyTick(tt.price, sessionClock(0, 10)) {
				t.Errorf("tick %.2f should have been rejected", tt.price)
			}
		})
	}

	if got := b.LastPrice(); got != 100 {
		t.Errorf("rejected ticks must not move last price: got %.2f", got)
	}
}

func TestApplyTickRejectsIntraCandleOutlier(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 0))
	b.ApplyTick(104, sessionClock(0, 10)) // 4% from open, within live-jump bound

	// 6% from the candle's open, though under 2% from last price
	if b.ApplyTick(106, sessionClock(0, 20)) {
		t.Error("tick 6% from candle open should have been rejected")
	}

	cur, _ := b.Current()
	if cur.High != 104 {
		t.Errorf("candle high should stay at 104, got %.2f", cur.High)
	}
}

func TestOfficialBarOverwritesCurrentAndArmsCorrectionFlag(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 5))
	b.ApplyTick(100.30, sessionClock(0, 20))

	official := Candle{
		Time:  sessionClock(0, 0).Unix(),
		Open:  100.00,
		High:  100.60,
		Low:   99.40,
		Close: 100.10,
	}
	if !b.ApplyOfficialBar(official) {
		t.Fatal("official bar rejected")
	}

	cur, _ := b.Current()
	if cur.Low != 99.40 || cur.High != 100.60 {
		t.Errorf("official values should win: %+v", cur)
	}
	if !b.CorrectedByOfficialBar() {
		t.Error("correction flag should be armed after an official overwrite")
	}

	// the next accepted tick clears the one-shot flag
	if !b.ApplyTick(100.15, sessionClock(0, 40)) {
		t.Fatal("follow-up tick rejected")
	}
	if b.CorrectedByOfficialBar() {
		t.Error("correction flag should clear on the next accepted tick")
	}
}

func TestOfficialBarRejectsWideRange(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)

	// 12% high-low range exceeds the provider-bar bound
	wide := Candle{
		Time:  sessionClock(0, 0).Unix(),
		Open:  100,
		High:  106,
		Low:   94,
		Close: 100,
	}
	if b.ApplyOfficialBar(wide) {
		t.Error("wide-range provider bar should have been rejected")
	}
}

func TestOfficialBarUpdatesHistoryInPlace(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 5))
	b.ApplyTick(100.50, sessionClock(1, 5))
	b.ApplyTick(100.70, sessionClock(2, 5))

	correction := Candle{
		Time:  sessionClock(1, 0).Unix(),
		Open:  100.50,
		High:  100.90,
		Low:   100.40,
		Close: 100.60,
	}
	if !b.ApplyOfficialBar(correction) {
		t.Fatal("historical correction rejected")
	}

	bars := b.Bars()
	var found bool
	for _, c := range bars {
		if c.Time == correction.Time {
			found = true
			if c.High != 100.90 {
				t.Errorf("historical bar not overwritten: %+v", c)
			}
		}
	}
	if !found {
		t.Fatal("corrected minute missing from the sequence")
	}

	// a correction for the past minute must not arm the skip flag
	if b.CorrectedByOfficialBar() {
		t.Error("historical correction should not arm the correction flag")
	}
}

func TestVisualUpdateGateSkipsSubCentRepaints(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	var repaints int
	b.SetUpdateFunc(func(Candle) { repaints++ })

	b.ApplyTick(100.00, sessionClock(0, 0))
	first := repaints

	// below the one-cent repaint threshold, still accepted internally
	if !b.ApplyTick(100.005, sessionClock(0, 10)) {
		t.Fatal("sub-cent tick should be accepted")
	}
	if repaints != first {
		t.Error("sub-cent change should not repaint")
	}
	cur, _ := b.Current()
	if cur.Close != 100.005 {
		t.Errorf("internal close should track the tick: %.3f", cur.Close)
	}

	b.ApplyTick(100.02, sessionClock(0, 20))
	if repaints != first+1 {
		t.Errorf("expected one repaint after a visible move, got %d extra", repaints-first)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 5))
	b.ApplyTick(100.5, sessionClock(1, 5))
	b.ApplyTick(100.8, sessionClock(2, 5))

	now := sessionClock(2, 30)
	snap := b.Snapshot(now)
	if len(snap.Bars) != 3 {
		t.Fatalf("snapshot should carry history plus current, got %d bars", len(snap.Bars))
	}

	fresh := NewRealtimeBuilder("SPY", 390)
	n := fresh.Restore(snap, now.Add(time.Hour), 24*time.Hour, 48*time.Hour)
	if n != 3 {
		t.Fatalf("expected 3 restored bars, got %d", n)
	}
	if fresh.LastPrice() != 100.8 {
		t.Errorf("restored last price = %.2f, want 100.8", fresh.LastPrice())
	}
}

func TestRestoreRejectsStaleState(t *testing.T) {
	b := NewRealtimeBuilder("SPY", 390)
	b.ApplyTick(100, sessionClock(0, 5))
	snap := b.Snapshot(sessionClock(0, 30))

	tests := []struct {
		name string
		snap Snapshot
		now  time.Time
		want int
	}{
		{"snapshot older than max age", snap, sessionClock(0, 30).Add(25 * time.Hour), 0},
		{"wrong symbol", Snapshot{Symbol: "QQQ", SavedAt: snap.SavedAt, Bars: snap.Bars}, sessionClock(0, 30), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh := NewRealtimeBuilder("SPY", 390)
			if n := fresh.Restore(tt.snap, tt.now, 24*time.Hour, 48*time.Hour); n != tt.want {
				t.Errorf("restored %d bars, want %d", n, tt.want)
			}
		})
	}
}

func TestRestoreDropsStaleIndividualBars(t *testing.T) {
	old := flatBar(0, 100)
	old.Time = sessionTime(0) - 50*3600 // ~50h ago relative to restore time

	snap := Snapshot{
		Symbol:  "SPY",
		SavedAt: sessionTime(5),
		Bars:    []Candle{old, flatBar(0, 100), flatBar(1, 100.2)},
	}

	b := NewRealtimeBuilder("SPY", 390)
	n := b.Restore(snap, sessionClock(5, 0), 24*time.Hour, 48*time.Hour)
	if n != 2 {
		t.Errorf("expected the 50h-old bar dropped, got %d restored", n)
	}
}
