// Package exits holds the auto-exit core: the armed stop/take-profit
// configuration for the open position, the crossover trigger evaluator, and
// the slippage-aware exit executor.
package exits

import "time"

// Side is the direction of the open position relative to the underlying:
// LONG profits when price rises (stock, calls), SHORT when it falls (puts).
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ArmedExit is the single active auto-exit configuration for one open
// position. It is created once when the position opens, mutated by manual
// or chart-driven level moves, and closed forever the instant a trigger
// fires or the operator flattens manually. A new position needs a brand-new
// ArmedExit.
type ArmedExit struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   int     `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`

	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`

	// SecondaryStopPrice is the optional second stop of the dual-stop
	// override mode; 0 means unset.
	SecondaryStopPrice float64 `json:"secondary_stop_price,omitempty"`

	// Placement prices record where the underlying traded the moment each
	// stop was (re)armed. The crossover rule needs them: a level only
	// fires when price crosses it relative to its placement, so dragging a
	// stop behind a fast-moving price does not fire instantly.
	StopPlacementPrice          float64 `json:"stop_placement_price"`
	SecondaryStopPlacementPrice float64 `json:"secondary_stop_placement_price,omitempty"`

	Closed  bool      `json:"closed"`
	ArmedAt time.Time `json:"armed_at"`
}

// ExitAttempt is one retry iteration of the executor. Ephemeral: created
// per attempt, observed, discarded.
type ExitAttempt struct {
	AttemptNumber     int
	OrderID           string
	LimitPrice        float64
	OrderType         string
	RemainingQuantity int
}
