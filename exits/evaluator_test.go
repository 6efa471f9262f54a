package exits

import (
	"sync"
	"testing"
)

// fakeFeed scripts the market surface the evaluator reads.
type fakeFeed struct {
	mu        sync.Mutex
	price     float64
	corrected bool
}

func (f *fakeFeed) LastPrice() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price
}

func (f *fakeFeed) CorrectedByOfficialBar() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.corrected
}

func (f *fakeFeed) set(price float64, corrected bool) {
	f.mu.Lock()
	f.price = price
	f.corrected = corrected
	f.mu.Unlock()
}

type firedRecord struct {
	reason string
	price  float64
	count  int
}

func newHarness(ae *ArmedExit) (*Evaluator, *fakeFeed, *firedRecord) {
	feed := &fakeFeed{}
	rec := &firedRecord{}
	ev := NewEvaluator(feed, func(_ ArmedExit, reason string, price float64) {
		rec.reason = reason
		rec.price = price
		rec.count++
	})
	if ae != nil {
		if err := ev.Arm(ae); err != nil {
			panic(err)
		}
	}
	return ev, feed, rec
}

func TestLevelCrossed(t *testing.T) {
	tests := []struct {
		name      string
		level     float64
		placement float64
		current   float64
		want      bool
	}{
		{"level above placement, price reaches it", 105, 100, 105, true},
		{"level above placement, price beyond it", 105, 100, 107, true},
		{"level above placement, price below it", 105, 100, 104.5, false},
		{"level below placement, price reaches it", 95, 100, 95, true},
		{"level below placement, price beyond it", 95, 100, 92, true},
		{"level below placement, price above it", 95, 100, 95.5, false},
		{"degenerate level at placement", 100, 100, 50, true},
		{"level within a cent of placement", 100.01, 100, 200, true},
		{"unset level never fires", 0, 100, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelCrossed(tt.level, tt.placement, tt.current); got != tt.want {
				t.Errorf("levelCrossed(%.2f, %.2f, %.2f) = %v, want %v",
					tt.level, tt.placement, tt.current, got, tt.want)
			}
		})
	}
}

func TestStopFiresOnlyOnCrossover(t *testing.T) {
	// stop placed below the market: classic protective stop
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           2,
		EntryPrice:         100,
		StopPrice:          95,
		TakeProfitPrice:    110,
		StopPlacementPrice: 100,
	})

	feed.set(96, false)
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Fatal("stop fired without a crossover")
	}

	feed.set(94.8, false)
	ev.CheckAutoExits()
	if rec.count != 1 || rec.reason != ReasonStopLoss {
		t.Fatalf("expected one STOP_LOSS fire, got count=%d reason=%q", rec.count, rec.reason)
	}
	if rec.price != 94.8 {
		t.Errorf("trigger price = %.2f, want 94.80", rec.price)
	}
}

func TestStopAboveMarketWaitsForPriceToRise(t *testing.T) {
	// stop dragged above the market while price was falling: it must not
	// fire until price climbs back through it
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          98,
		TakeProfitPrice:    110,
		StopPlacementPrice: 96, // placed while price sat below the level
	})

	feed.set(96.5, false)
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Fatal("stop above placement must not fire while price stays below it")
	}

	feed.set(98.2, false)
	ev.CheckAutoExits()
	if rec.count != 1 {
		t.Fatal("stop should fire once price rises through the level")
	}
}

func TestFireIsAtMostOnce(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 100,
	})

	feed.set(90, false)
	for i := 0; i < 10; i++ {
		ev.CheckAutoExits()
	}
	if rec.count != 1 {
		t.Errorf("expected exactly one fire under repeated polling, got %d", rec.count)
	}

	if ae, ok := ev.Armed(); !ok || !ae.Closed {
		t.Error("armed exit should be closed after firing")
	}
}

func TestTakeProfitIsOneDirectional(t *testing.T) {
	tests := []struct {
		name  string
		side  Side
		tp    float64
		price float64
		fires bool
	}{
		{"long reaches tp", SideLong, 110, 110, true},
		{"long exceeds tp", SideLong, 110, 112, true},
		{"long below tp", SideLong, 110, 109.9, false},
		{"short reaches tp", SideShort, 90, 90, true},
		{"short above tp", SideShort, 90, 90.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, feed, rec := newHarness(&ArmedExit{
				Symbol:             "SPY",
				Side:               tt.side,
				Quantity:           1,
				EntryPrice:         100,
				StopPrice:          1, // far away, never fires
				StopPlacementPrice: 100,
				TakeProfitPrice:    tt.tp,
			})
			feed.set(tt.price, false)
			ev.CheckAutoExits()

			fired := rec.count > 0
			if fired != tt.fires {
				t.Errorf("fired=%v want %v", fired, tt.fires)
			}
			if fired && rec.reason != ReasonTakeProfit {
				t.Errorf("reason = %q, want TAKE_PROFIT", rec.reason)
			}
		})
	}
}

func TestSecondaryStopFiresWithItsOwnReason(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:                      "SPY",
		Side:                        SideShort,
		Quantity:                    1,
		EntryPrice:                  100,
		StopPrice:                   120, // far away
		StopPlacementPrice:          100,
		SecondaryStopPrice:          97,
		SecondaryStopPlacementPrice: 100,
	})

	feed.set(96.5, false)
	ev.CheckAutoExits()
	if rec.count != 1 || rec.reason != ReasonSecondaryStop {
		t.Errorf("expected SECONDARY_STOP fire, got count=%d reason=%q", rec.count, rec.reason)
	}
}

func TestOfficialCorrectionSuppressesOneCycle(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 100,
	})

	// price is through the stop, but an official bar just rewrote the
	// candle: this cycle must be skipped
	feed.set(94, true)
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Fatal("evaluation must be suppressed while the correction flag is up")
	}

	// the next accepted tick cleared the flag; now it fires
	feed.set(94, false)
	ev.CheckAutoExits()
	if rec.count != 1 {
		t.Error("expected the fire on the first cycle after the flag cleared")
	}
}

func TestDisconnectedFeedSuppressesEvaluation(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 100,
	})
	connected := false
	ev.Connected = func() bool { return connected }

	feed.set(90, false)
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Fatal("no evaluation while disconnected")
	}

	connected = true
	ev.CheckAutoExits()
	if rec.count != 1 {
		t.Error("expected fire after reconnect")
	}
}

func TestArmRejectsSecondLiveExit(t *testing.T) {
	ev, _, _ := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 100,
	})

	err := ev.Arm(&ArmedExit{Symbol: "SPY", Quantity: 1, StopPrice: 90})
	if err == nil {
		t.Fatal("arming over a live exit must fail")
	}

	// after the first one closes, arming works again
	ev.Disarm()
	if err := ev.Arm(&ArmedExit{Symbol: "SPY", Quantity: 1, StopPrice: 90}); err != nil {
		t.Errorf("arming after disarm should succeed: %v", err)
	}
}

func TestMoveStopReestablishesCrossoverReference(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 100,
	})

	// price drifted down to 96; the operator drags the stop up to 97,
	// above the old placement-relative direction
	feed.set(96, false)
	ev.MoveStop(97, 96)

	// 97 > 96 placement: fires only when price rises through it
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Fatal("re-placed stop must not fire from the stale reference")
	}

	feed.set(97.1, false)
	ev.CheckAutoExits()
	if rec.count != 1 {
		t.Error("re-placed stop should fire on the new crossover")
	}
}

func TestNoFireWithoutPrice(t *testing.T) {
	ev, feed, rec := newHarness(&ArmedExit{
		Symbol:             "SPY",
		Side:               SideLong,
		Quantity:           1,
		EntryPrice:         100,
		StopPrice:          95,
		StopPlacementPrice: 95, // degenerate, fires on any read
	})

	feed.set(0, false)
	ev.CheckAutoExits()
	if rec.count != 0 {
		t.Error("no evaluation without a market price")
	}
}
