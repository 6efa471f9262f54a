package candles

import (
	"log"
	"math"
	"sync"
	"time"
)

// minimum close change before the visual update callback fires
const minVisualChange = 0.01

// UpdateFunc receives the current candle whenever it changes enough to be
// worth repainting.
type UpdateFunc func(Candle)

// RealtimeBuilder owns the in-progress 1-minute candle and the historical
// sequence for one symbol, reconciling raw price ticks with official
// provider minute bars.
//
// The builder is driven by a single upstream feed goroutine; the mutex only
// protects the read-side snapshots taken by the evaluation ticker.
type RealtimeBuilder struct {
	mu sync.RWMutex

	symbol  string
	maxBars int

	history []Candle
	current *Candle

	lastPrice       float64
	lastPushedClose float64

	// one-shot: set when an official bar rewrote the current minute,
	// cleared by the next accepted tick
	correctedByBar bool

	onUpdate UpdateFunc
}

// NewRealtimeBuilder creates a builder for one symbol. maxBars caps the
// retained history (one regular session is 390 minute bars).
func NewRealtimeBuilder(symbol string, maxBars int) *RealtimeBuilder {
	if maxBars <= 0 {
		maxBars = 390
	}
	return &RealtimeBuilder{
		symbol:  symbol,
		maxBars: maxBars,
	}
}

// SetUpdateFunc registers the visual update callback. Updates below the
// $0.01 change threshold keep internal state current but skip the callback.
func (b *RealtimeBuilder) SetUpdateFunc(fn UpdateFunc) {
	b.mu.Lock()
	b.onUpdate = fn
	b.mu.Unlock()
}

// Seed replaces history with a sanitized copy of the given bars. Used for
// the historical bootstrap on startup.
func (b *RealtimeBuilder) Seed(bars []Candle) {
	clean := Sanitize(bars)
	b.mu.Lock()
	b.history = clean
	b.current = nil
	if n := len(clean); n > 0 {
		b.lastPrice = clean[n-1].Close
	}
	b.mu.Unlock()
}

// ApplyTick folds a raw price update into the current minute candle.
// Returns true if the tick was accepted.
func (b *RealtimeBuilder) ApplyTick(price float64, now time.Time) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Jump tolerance against the last accepted price
	if b.lastPrice > 0 && jumpPct(price, b.lastPrice) > maxLiveJumpPct {
		return false
	}

	minute := MinuteStart(now.Unix())

	if b.current == nil || b.current.Time != minute {
		b.rollOver(minute, price)
		b.lastPrice = price
		b.correctedByBar = false
		b.pushUpdate()
		return true
	}

	cur := b.current

	// Intra-candle move bound relative to the candle's own open
	if jumpPct(price, cur.Open) > maxIntraCandlePct {
		return false
	}

	// Reject a single update that would blow out the candle's range
	newHigh := math.Max(cur.High, price)
	newLow := math.Min(cur.Low, price)
	widened := Candle{Time: cur.Time, Open: cur.Open, High: newHigh, Low: newLow, Close: price}
	if widened.RangePct() > maxLiveJumpPct {
		return false
	}

	cur.High = newHigh
	cur.Low = newLow
	cur.Close = price
	b.lastPrice = price
	b.correctedByBar = false

	// Internal state always updates; the repaint is jitter-gated
	if math.Abs(price-b.lastPushedClose) >= minVisualChange {
		b.pushUpdate()
	}
	return true
}

// ApplyOfficialBar merges a provider-confirmed minute bar. A bar for the
// current minute overwrites the in-progress candle with authoritative
// values and arms the correction flag so the next trigger evaluation cycle
// is skipped (a retroactive low must not fire a stop that price never
// traded through live). A bar for a past minute updates history in place;
// later writes win.
func (b *RealtimeBuilder) ApplyOfficialBar(bar Candle) bool {
	if !bar.IsValid() {
		return false
	}
	if bar.RangePct() > maxBarRangePct {
		return false
	}
	bar.Time = MinuteStart(bar.Time)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastPrice > 0 && jumpPct(bar.Close, b.lastPrice) > maxLiveJumpPct {
		return false
	}

	switch {
	case b.current != nil && bar.Time == b.current.Time:
		*b.current = bar
		b.correctedByBar = true
		b.lastPrice = bar.Close
		b.pushUpdate()

	case b.current == nil || bar.Time > b.current.Time:
		b.rollOver(bar.Time, bar.Close)
		*b.current = bar
		b.correctedByBar = true
		b.lastPrice = bar.Close
		b.pushUpdate()

	default:
		// historical correction: update existing bar if present
		for i := range b.history {
			if b.history[i].Time == bar.Time {
				b.history[i] = bar
				return true
			}
		}
		return false
	}
	return true
}

// CorrectedByOfficialBar reports whether the current candle was just
// rewritten by an authoritative bar. The flag is one-shot: it stays up
// until the next accepted tick clears it.
func (b *RealtimeBuilder) CorrectedByOfficialBar() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.correctedByBar
}

// LastPrice returns the last accepted price, or 0 if none seen yet.
func (b *RealtimeBuilder) LastPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// Current returns a copy of the in-progress candle.
func (b *RealtimeBuilder) Current() (Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return Candle{}, false
	}
	return *b.current, true
}

// Bars returns a copy of the full sequence, history plus the in-progress
// candle.
func (b *RealtimeBuilder) Bars() []Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Candle, len(b.history), len(b.history)+1)
	copy(out, b.history)
	if b.current != nil {
		out = append(out, *b.current)
	}
	return out
}

// rollOver freezes the current candle into history and opens a new one.
// Caller holds the lock.
func (b *RealtimeBuilder) rollOver(minute int64, price float64) {
	if b.current != nil {
		b.history = append(b.history, *b.current)
		b.history = Sanitize(b.history)
	}
	if len(b.history) > b.maxBars {
		b.history = b.history[len(b.history)-b.maxBars:]
	}
	b.current = &Candle{
		Time:  minute,
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

// pushUpdate fires the repaint callback. Caller holds the lock.
func (b *RealtimeBuilder) pushUpdate() {
	if b.current == nil {
		return
	}
	b.lastPushedClose = b.current.Close
	if b.onUpdate != nil {
		b.onUpdate(*b.current)
	}
}

// Snapshot is the persisted form of a builder's state.
type Snapshot struct {
	Symbol  string   `json:"symbol"`
	SavedAt int64    `json:"saved_at"`
	Bars    []Candle `json:"bars"`
}

// Snapshot captures history plus the current candle, capped to maxBars.
func (b *RealtimeBuilder) Snapshot(now time.Time) Snapshot {
	bars := b.Bars()
	max := b.maxBars
	if len(bars) > max {
		bars = bars[len(bars)-max:]
	}
	return Snapshot{
		Symbol:  b.symbol,
		SavedAt: now.Unix(),
		Bars:    bars,
	}
}

// Restore reloads a snapshot taken earlier in the same session. Snapshots
// older than maxAge are rejected wholesale; individual bars older than
// barMaxAge are discarded. Returns the number of bars restored.
func (b *RealtimeBuilder) Restore(snap Snapshot, now time.Time, maxAge, barMaxAge time.Duration) int {
	if snap.Symbol != b.symbol {
		return 0
	}
	if now.Sub(time.Unix(snap.SavedAt, 0)) > maxAge {
		log.Printf("🕯️ Discarding stale candle snapshot for %s (saved %s)",
			snap.Symbol, time.Unix(snap.SavedAt, 0).Format(time.RFC3339))
		return 0
	}

	floor := now.Add(-barMaxAge).Unix()
	fresh := make([]Candle, 0, len(snap.Bars))
	for _, c := range snap.Bars {
		if c.Time >= floor {
			fresh = append(fresh, c)
		}
	}
	b.Seed(fresh)

	b.mu.RLock()
	n := len(b.history)
	b.mu.RUnlock()
	return n
}
