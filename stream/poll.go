package stream

import (
	"context"
	"time"

	"webull-autopilot/broker"
)

// defaultPollInterval spaces out the fallback HTTP polls.
const defaultPollInterval = 100 * time.Millisecond

// PollSource is the degraded order-status source used when no event stream
// is configured: it polls the account order endpoint over HTTP. Flatness
// confirmed this way is best-effort; a fill can land between polls.
type PollSource struct {
	broker   broker.Broker
	interval time.Duration
}

// NewPollSource wraps a broker in the polling fallback.
func NewPollSource(b broker.Broker) *PollSource {
	return &PollSource{broker: b, interval: defaultPollInterval}
}

// WaitForOrderUpdate implements stream.Source by polling GetOrders until a
// terminal status shows up or the timeout runs out. The last observed state
// is returned even when the order is still working.
func (s *PollSource) WaitForOrderUpdate(ctx context.Context, orderID string, timeout time.Duration) (*OrderUpdate, bool) {
	deadline := time.Now().Add(timeout)
	var last *OrderUpdate

	for {
		orders, err := s.broker.GetOrders(ctx)
		if err == nil {
			for _, o := range orders {
				if o.OrderID != orderID {
					continue
				}
				last = &OrderUpdate{
					OrderID:           o.OrderID,
					Status:            o.Status,
					FilledQuantity:    o.FilledQuantity,
					RemainingQuantity: o.RemainingQuantity,
				}
				if last.Terminal() {
					return last, true
				}
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, last != nil
		}
		wait := s.interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return last, last != nil
		case <-time.After(wait):
		}
	}
}
