// Package stream delivers asynchronous brokerage events to the exit engine.
// Two implementations satisfy the same contract: a websocket push client and
// an HTTP polling fallback. The coordinator picks one at startup based on
// whether a stream endpoint is configured.
package stream

import (
	"context"
	"time"
)

// OrderUpdate is a normalized order-status event.
type OrderUpdate struct {
	OrderID           string `json:"orderId"`
	Status            string `json:"status"`
	FilledQuantity    int    `json:"filledQuantity"`
	RemainingQuantity int    `json:"remainingQuantity"`
}

// Terminal reports whether the order will receive no further updates.
func (u *OrderUpdate) Terminal() bool {
	switch u.Status {
	case "Filled", "Cancelled", "Failed", "Expired":
		return true
	}
	return false
}

// QuoteTick is a realtime price print for a ticker.
type QuoteTick struct {
	TickerID int64   `json:"tickerId"`
	Price    float64 `json:"price"`
	Time     int64   `json:"time"`
}

// Source is the order-status contract the exit executor waits on between
// retry attempts.
type Source interface {
	// WaitForOrderUpdate blocks up to timeout for a status update on the
	// given order. ok=false means no update arrived in time; the caller
	// decides whether to retry with unverified fill state.
	WaitForOrderUpdate(ctx context.Context, orderID string, timeout time.Duration) (*OrderUpdate, bool)
}
