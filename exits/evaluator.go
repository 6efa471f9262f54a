package exits

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// crossoverEpsilon treats a level placed within a cent of price as already
// crossed; it fires on the next evaluation cycle.
const crossoverEpsilon = 0.01

// Exit trigger reasons
const (
	ReasonStopLoss      = "STOP_LOSS"
	ReasonSecondaryStop = "SECONDARY_STOP"
	ReasonTakeProfit    = "TAKE_PROFIT"
	ReasonManual        = "MANUAL"
)

// PriceFeed is the market-state surface the evaluator reads every cycle.
// *candles.RealtimeBuilder satisfies it.
type PriceFeed interface {
	LastPrice() float64
	CorrectedByOfficialBar() bool
}

// FireFunc receives the trigger decision. The armed exit is already marked
// closed when it runs; firing twice for one position is impossible.
type FireFunc func(ae ArmedExit, reason string, triggerPrice float64)

// Evaluator holds the armed exit for the open position and decides, on
// every price update, whether a trigger level has been crossed.
//
// State machine: ARMED -> (crossover) -> FIRING -> CLOSED, one way. The
// evaluator is polled up to 20x/second and must stay idempotent under
// re-entrant calls while the executor's async work is still in flight; the
// mark-closed-before-fire order is the discipline that guarantees
// at-most-once firing.
type Evaluator struct {
	mu sync.Mutex

	armed *ArmedExit
	feed  PriceFeed
	fire  FireFunc

	// Connected gates evaluation; a nil func means always connected.
	Connected func() bool
}

// NewEvaluator wires the evaluator to its price feed and fire callback.
func NewEvaluator(feed PriceFeed, fire FireFunc) *Evaluator {
	return &Evaluator{feed: feed, fire: fire}
}

// Arm installs a new armed exit. At most one may be active per
// account/symbol; arming over a live one is rejected rather than silently
// replacing it.
func (e *Evaluator) Arm(ae *ArmedExit) error {
	if ae == nil || ae.Quantity <= 0 {
		return fmt.Errorf("invalid armed exit")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.armed != nil && !e.armed.Closed {
		return fmt.Errorf("an auto-exit is already armed for %s; flatten it first", e.armed.Symbol)
	}
	if ae.ArmedAt.IsZero() {
		ae.ArmedAt = time.Now()
	}
	e.armed = ae
	log.Printf("🎯 Auto-exit armed for %s: stop=%.2f tp=%.2f qty=%d (placed at %.2f)",
		ae.Symbol, ae.StopPrice, ae.TakeProfitPrice, ae.Quantity, ae.StopPlacementPrice)
	return nil
}

// Armed returns a copy of the active armed exit, if any.
func (e *Evaluator) Armed() (ArmedExit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil {
		return ArmedExit{}, false
	}
	return *e.armed, true
}

// MoveStop re-places the primary stop. The current price becomes the new
// placement price, re-establishing the crossover reference.
func (e *Evaluator) MoveStop(level, currentPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil || e.armed.Closed {
		return
	}
	e.armed.StopPrice = level
	e.armed.StopPlacementPrice = currentPrice
	log.Printf("🎯 Stop moved to %.2f (placed at %.2f)", level, currentPrice)
}

// MoveSecondaryStop re-places the secondary (override-mode) stop.
func (e *Evaluator) MoveSecondaryStop(level, currentPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil || e.armed.Closed {
		return
	}
	e.armed.SecondaryStopPrice = level
	e.armed.SecondaryStopPlacementPrice = currentPrice
}

// MoveTakeProfit re-places the take-profit level. TP needs no placement
// price: it fires on a plain one-directional comparison from entry.
func (e *Evaluator) MoveTakeProfit(level float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil || e.armed.Closed {
		return
	}
	e.armed.TakeProfitPrice = level
}

// Disarm closes the armed exit without firing; used when the operator
// flattens manually through the separate order path.
func (e *Evaluator) Disarm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed != nil {
		e.armed.Closed = true
	}
}

// CheckAutoExits is the per-cycle trigger evaluation, invoked from the
// coordinator's 50ms ticker while a position is open.
func (e *Evaluator) CheckAutoExits() {
	e.mu.Lock()

	ae := e.armed
	if ae == nil || ae.Closed {
		e.mu.Unlock()
		return
	}
	if e.Connected != nil && !e.Connected() {
		e.mu.Unlock()
		return
	}

	price := e.feed.LastPrice()
	if price <= 0 {
		e.mu.Unlock()
		return
	}

	// An authoritative bar just rewrote the current candle. A retroactive
	// correction (say, a lower official low) must not fire a stop that
	// price never traded through in real time, so this cycle is skipped.
	// The flag clears on the next accepted tick.
	if e.feed.CorrectedByOfficialBar() {
		e.mu.Unlock()
		return
	}

	reason := ""
	switch {
	case levelCrossed(ae.StopPrice, ae.StopPlacementPrice, price):
		reason = ReasonStopLoss
	case ae.SecondaryStopPrice > 0 &&
		levelCrossed(ae.SecondaryStopPrice, ae.SecondaryStopPlacementPrice, price):
		reason = ReasonSecondaryStop
	case takeProfitReached(ae.Side, ae.TakeProfitPrice, price):
		reason = ReasonTakeProfit
	}
	if reason == "" {
		e.mu.Unlock()
		return
	}

	// Mark closed BEFORE dispatching the executor: the next ticker cycle
	// may arrive long before the executor's first order resolves.
	ae.Closed = true
	fired := *ae
	e.mu.Unlock()

	log.Printf("🔥 Auto-exit triggered for %s: %s at %.2f (stop=%.2f tp=%.2f)",
		fired.Symbol, reason, price, fired.StopPrice, fired.TakeProfitPrice)
	if e.fire != nil {
		e.fire(fired, reason, price)
	}
}

// levelCrossed applies the crossover rule: a level fires only when price
// crosses it relative to where it was placed, never merely because price
// already sits past it. A level within a cent of its placement is the
// degenerate case and fires on any read.
func levelCrossed(level, placement, current float64) bool {
	if level <= 0 {
		return false
	}
	if math.Abs(level-placement) <= crossoverEpsilon {
		return true
	}
	if level > placement {
		return current >= level
	}
	return current <= level
}

// takeProfitReached is the one-directional TP comparison: profit side only,
// measured from entry by construction of the level.
func takeProfitReached(side Side, level, current float64) bool {
	if level <= 0 {
		return false
	}
	if side == SideShort {
		return current <= level
	}
	return current >= level
}
