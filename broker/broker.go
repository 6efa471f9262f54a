// Package broker defines the brokerage transport the exit engine consumes.
// The real implementation is a thin HTTP client; tests use the in-memory
// paper broker. Order placement, quotes, and position snapshots are all the
// engine needs from the other side.
package broker

import (
	"context"
	"strings"

	"webull-autopilot/candles"
)

// OrderSide is the side of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeMarket OrderType = "MKT"
	TypeLimit  OrderType = "LMT"
)

// TimeInForce controls how long an order rests.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
)

// OrderRequest is a normalized order submission. Exactly one of TickerID or
// OptionContractID identifies the instrument.
type OrderRequest struct {
	SerialID            string // client-generated idempotency id
	TickerID            int64
	OptionContractID    int64
	Side                OrderSide
	Quantity            int
	OrderType           OrderType
	LimitPrice          float64 // required for LMT
	TimeInForce         TimeInForce
	OutsideRegularHours bool
}

// PlacedOrder is the brokerage's acknowledgment of a submitted order.
type PlacedOrder struct {
	OrderID string
	Status  string
}

// Quote is a stock-level quote snapshot.
type Quote struct {
	Bid   float64
	Ask   float64
	Last  float64
	Close float64
}

// PriceLevel is one rung of an option quote's book.
type PriceLevel struct {
	Price  float64 `json:"price,string"`
	Volume int64   `json:"volume,string"`
}

// OptionQuote is an option-contract quote snapshot. Delta is only present
// when the provider computed greeks for the contract.
type OptionQuote struct {
	BidList  []PriceLevel
	AskList  []PriceLevel
	Delta    float64
	HasDelta bool
	Close    float64
}

// BestBid returns the top-of-book bid, or 0 when the book is empty.
func (q *OptionQuote) BestBid() float64 {
	if len(q.BidList) == 0 {
		return 0
	}
	return q.BidList[0].Price
}

// BestAsk returns the top-of-book ask, or 0 when the book is empty.
func (q *OptionQuote) BestAsk() float64 {
	if len(q.AskList) == 0 {
		return 0
	}
	return q.AskList[0].Price
}

// Position is one row of the account's position snapshot.
type Position struct {
	TickerID         int64
	OptionContractID int64
	Symbol           string
	Quantity         int
	CostPrice        float64
}

// Order is one row of the account's working/filled order snapshot, used as
// the HTTP fallback for order-status polling.
type Order struct {
	OrderID           string
	Status            string
	FilledQuantity    int
	RemainingQuantity int
}

// Broker is the transport surface the exit engine needs.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error)
	GetQuote(ctx context.Context, tickerID int64) (*Quote, error)
	GetOptionQuote(ctx context.Context, contractID int64) (*OptionQuote, error)
	GetHistoricalBars(ctx context.Context, tickerID int64, interval string, count int) ([]candles.Candle, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetOrders(ctx context.Context) ([]Order, error)
}

// OrderErrorHint maps an order-placement failure to a specific, actionable
// operator message. The brokerage distinguishes funding problems from
// position problems only through the error text.
func OrderErrorHint(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "buying power") || strings.Contains(msg, "insufficient"):
		return "insufficient funds / buying power for this order"
	case strings.Contains(msg, "exceeds") || strings.Contains(msg, "naked"):
		return "order would exceed the current position (naked position rejected)"
	case strings.Contains(msg, "expired") || strings.Contains(msg, "token"):
		return "brokerage session expired, re-login required"
	default:
		return "order placement failed: " + err.Error()
	}
}
