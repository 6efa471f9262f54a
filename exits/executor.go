package exits

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"webull-autopilot/broker"
	"webull-autopilot/stream"
)

// syntheticSpreadPct sizes the stand-in spread when no quote is available:
// 2% of last price, floored at 10 ticks.
const (
	syntheticSpreadPct   = 0.02
	syntheticSpreadTicks = 10
)

// ExecutorConfig carries the instrument identity and the slippage/retry
// knobs.
type ExecutorConfig struct {
	Symbol           string
	TickerID         int64
	OptionContractID int64

	TickSize    float64
	SlippagePct float64 // share of the exit's dollar budget allowed as slippage
	MaxAttempts int
	OrderWait   time.Duration
}

// ExitOrder is one invocation of the executor.
type ExitOrder struct {
	Side     broker.OrderSide
	Quantity int
	Reason   string

	// TargetUSD is the target-profit or max-loss dollar figure the
	// slippage tolerance is computed from.
	TargetUSD float64
	// Delta is the live option delta; 0 degrades to 0.5.
	Delta float64
}

// NotFlatError reports an exhausted retry budget with contracts still open.
type NotFlatError struct {
	Symbol    string
	Remaining int
}

func (e *NotFlatError) Error() string {
	return fmt.Sprintf("position %s NOT flat after exit attempts: %d contracts remaining, manual intervention required", e.Symbol, e.Remaining)
}

// Executor submits slippage-aware exit orders until the position is flat or
// the attempt budget is spent. Best-effort by contract: it never resubmits
// after a placement error, and it never exceeds MaxAttempts placements.
type Executor struct {
	broker broker.Broker
	source stream.Source
	cfg    ExecutorConfig

	// sessionOpen decides market-vs-limit order type; during continuous
	// trading a market order carries no resting risk and fills faster.
	sessionOpen func(time.Time) bool

	// OnAttempt observes each retry iteration, for audit and metrics.
	OnAttempt func(ExitAttempt)
	// Alert surfaces operator-facing conditions; never nil-checked away
	// silently for the not-flat escalation, which also logs loudly.
	Alert func(title, message string)
}

// NewExecutor builds an executor over the given transport and order-status
// source.
func NewExecutor(b broker.Broker, src stream.Source, cfg ExecutorConfig, sessionOpen func(time.Time) bool) *Executor {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.OrderWait <= 0 {
		cfg.OrderWait = 500 * time.Millisecond
	}
	return &Executor{
		broker:      b,
		source:      src,
		cfg:         cfg,
		sessionOpen: sessionOpen,
	}
}

// ExecuteExit works the position toward flat. Each retry widens the limit
// price by one tick in the favorable-fill direction; the order-status
// source is consulted between attempts.
func (x *Executor) ExecuteExit(ctx context.Context, ord ExitOrder) error {
	if ord.Quantity <= 0 {
		return nil
	}

	basePrice, spread := x.referencePrices(ctx, ord.Side)
	offset := x.priceOffset(ord, spread)

	total := ord.Quantity
	remaining := total

	for attempt := 0; attempt < x.cfg.MaxAttempts && remaining > 0; attempt++ {
		// one extra tick of aggression per retry
		aggression := offset + float64(attempt)*x.cfg.TickSize
		limitPrice := x.aggressivePrice(basePrice, ord.Side, aggression)

		marketOrder := x.sessionOpen != nil && x.sessionOpen(time.Now())

		req := broker.OrderRequest{
			SerialID:            uuid.New().String(),
			TickerID:            x.cfg.TickerID,
			OptionContractID:    x.cfg.OptionContractID,
			Side:                ord.Side,
			Quantity:            remaining,
			TimeInForce:         broker.TIFDay,
			OutsideRegularHours: !marketOrder,
		}
		if marketOrder {
			req.OrderType = broker.TypeMarket
		} else {
			req.OrderType = broker.TypeLimit
			req.LimitPrice = limitPrice
		}

		placed, err := x.broker.PlaceOrder(ctx, req)
		if err != nil {
			// A failed placement aborts the sequence outright: blind
			// resubmission after an unknown failure can double-close.
			hint := broker.OrderErrorHint(err)
			log.Printf("❌ Exit order placement failed (%s): %s", ord.Reason, hint)
			if x.Alert != nil {
				x.Alert("Exit order rejected", hint)
			}
			return fmt.Errorf("exit attempt %d: %w", attempt, err)
		}

		if x.OnAttempt != nil {
			x.OnAttempt(ExitAttempt{
				AttemptNumber:     attempt,
				OrderID:           placed.OrderID,
				LimitPrice:        limitPrice,
				OrderType:         string(req.OrderType),
				RemainingQuantity: remaining,
			})
		}
		log.Printf("📤 Exit attempt %d/%d: %s %d %s @ %s (%s)",
			attempt+1, x.cfg.MaxAttempts, ord.Side, remaining, x.cfg.Symbol,
			formatOrderPrice(req), ord.Reason)

		if upd, ok := x.source.WaitForOrderUpdate(ctx, placed.OrderID, x.cfg.OrderWait); ok {
			remaining -= upd.FilledQuantity
			if remaining < 0 {
				remaining = 0
			}
		}

		if remaining > 0 && x.positionFlat(ctx) {
			remaining = 0
		}
	}

	if remaining > 0 {
		err := &NotFlatError{Symbol: x.cfg.Symbol, Remaining: remaining}
		log.Printf("🚨🚨 %s", err.Error())
		if x.Alert != nil {
			x.Alert("POSITION NOT FLAT", err.Error())
		}
		return err
	}

	log.Printf("✅ Position %s flat after exit (%s)", x.cfg.Symbol, ord.Reason)
	return nil
}

// referencePrices fetches the quote for the instrument being exited and
// returns the side-appropriate base price plus the observed spread. With no
// quote available a synthetic spread stands in.
func (x *Executor) referencePrices(ctx context.Context, side broker.OrderSide) (base, spread float64) {
	var bid, ask, last float64

	if x.cfg.OptionContractID != 0 {
		if q, err := x.broker.GetOptionQuote(ctx, x.cfg.OptionContractID); err == nil {
			bid, ask, last = q.BestBid(), q.BestAsk(), q.Close
		}
	} else {
		if q, err := x.broker.GetQuote(ctx, x.cfg.TickerID); err == nil {
			bid, ask, last = q.Bid, q.Ask, q.Last
		}
	}

	if bid > 0 && ask > bid {
		spread = ask - bid
	} else {
		spread = math.Max(syntheticSpreadPct*last, syntheticSpreadTicks*x.cfg.TickSize)
	}

	switch {
	case side == broker.SideSell && bid > 0:
		base = bid
	case side == broker.SideBuy && ask > 0:
		base = ask
	case last > 0:
		base = last
	default:
		base = x.cfg.TickSize
	}
	return base, spread
}

// priceOffset translates the dollar slippage budget into a price offset,
// clamped to at least one tick and at most twice the spread.
func (x *Executor) priceOffset(ord ExitOrder, spread float64) float64 {
	tick := x.cfg.TickSize

	delta := math.Abs(ord.Delta)
	if delta == 0 {
		delta = 0.5
	}

	offset := tick
	if ord.TargetUSD > 0 {
		slippageDollars := x.cfg.SlippagePct * ord.TargetUSD
		ticks := slippageDollars / (delta * tick * 100 * float64(ord.Quantity))
		offset = ticks * tick
	}

	if offset < tick {
		offset = tick
	}
	if max := 2 * spread; offset > max {
		offset = max
	}
	return offset
}

// aggressivePrice shifts the base price toward the fill: lower for sells,
// higher for buys, rounded to the tick grid.
func (x *Executor) aggressivePrice(base float64, side broker.OrderSide, aggression float64) float64 {
	tick := x.cfg.TickSize
	price := base + aggression
	if side == broker.SideSell {
		price = base - aggression
	}
	if price < tick {
		price = tick
	}
	return math.Round(price/tick) * tick
}

// positionFlat checks the account snapshot for any remaining exposure on
// the instrument.
func (x *Executor) positionFlat(ctx context.Context) bool {
	positions, err := x.broker.GetPositions(ctx)
	if err != nil {
		return false
	}
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		if (x.cfg.OptionContractID != 0 && p.OptionContractID == x.cfg.OptionContractID) ||
			(x.cfg.OptionContractID == 0 && p.TickerID == x.cfg.TickerID) ||
			p.Symbol == x.cfg.Symbol {
			return false
		}
	}
	return true
}

func formatOrderPrice(req broker.OrderRequest) string {
	if req.OrderType == broker.TypeMarket {
		return "MKT"
	}
	return fmt.Sprintf("%.2f LMT", req.LimitPrice)
}
