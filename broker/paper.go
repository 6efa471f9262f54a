package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"webull-autopilot/candles"
)

// PaperBroker is an in-memory broker used for dry runs and tests. Fills are
// scripted through FillPerAttempt; no external calls are made.
type PaperBroker struct {
	mu sync.Mutex

	// Scripted market data
	QuoteData       *Quote
	OptionQuoteData *OptionQuote
	Bars            []candles.Candle

	// Scripted behavior
	PlaceErr       error // returned by PlaceOrder when set
	FillPerAttempt int   // quantity filled per placed order

	// Recorded activity
	Placed []OrderRequest

	orders       []Order
	positionQty  int
	positionsSet bool
}

// NewPaperBroker returns an empty paper broker.
func NewPaperBroker() *PaperBroker { return &PaperBroker{} }

// SetPositionQuantity scripts the open position size reported by
// GetPositions.
func (p *PaperBroker) SetPositionQuantity(qty int) {
	p.mu.Lock()
	p.positionQty = qty
	p.positionsSet = true
	p.mu.Unlock()
}

// PlaceOrder records the request and simulates a partial or full fill per
// FillPerAttempt.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PlaceErr != nil {
		return nil, p.PlaceErr
	}

	p.Placed = append(p.Placed, req)

	filled := p.FillPerAttempt
	if filled > req.Quantity {
		filled = req.Quantity
	}
	status := "Working"
	if filled == req.Quantity {
		status = "Filled"
	} else if filled > 0 {
		status = "PartialFilled"
	}

	order := Order{
		OrderID:           uuid.New().String(),
		Status:            status,
		FilledQuantity:    filled,
		RemainingQuantity: req.Quantity - filled,
	}
	p.orders = append(p.orders, order)

	if p.positionsSet {
		p.positionQty -= filled
		if p.positionQty < 0 {
			p.positionQty = 0
		}
	}

	return &PlacedOrder{OrderID: order.OrderID, Status: order.Status}, nil
}

func (p *PaperBroker) GetQuote(ctx context.Context, tickerID int64) (*Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QuoteData == nil {
		return nil, errNoData("quote")
	}
	q := *p.QuoteData
	return &q, nil
}

func (p *PaperBroker) GetOptionQuote(ctx context.Context, contractID int64) (*OptionQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OptionQuoteData == nil {
		return nil, errNoData("option quote")
	}
	q := *p.OptionQuoteData
	return &q, nil
}

func (p *PaperBroker) GetHistoricalBars(ctx context.Context, tickerID int64, interval string, count int) ([]candles.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars := p.Bars
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]candles.Candle, len(bars))
	copy(out, bars)
	return out, nil
}

func (p *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.positionsSet || p.positionQty == 0 {
		return []Position{}, nil
	}
	return []Position{{Symbol: "PAPER", Quantity: p.positionQty}}, nil
}

func (p *PaperBroker) GetOrders(ctx context.Context) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out, nil
}

type errNoData string

func (e errNoData) Error() string { return "paper broker has no scripted " + string(e) }
