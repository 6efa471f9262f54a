package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"webull-autopilot/broker"
	"webull-autopilot/candles"
	"webull-autopilot/database"
	"webull-autopilot/exits"
	"webull-autopilot/metrics"
	"webull-autopilot/realtime"
	"webull-autopilot/sizing"
)

const (
	candleSnapshotKeyPrefix = "autopilot:candles:"
	armedExitKeyPrefix      = "autopilot:armed:"
)

// ArmExitParams is the operator's input when opening a position: dollar
// goals plus the option's pricing inputs. The engine derives the
// underlying-price levels itself.
type ArmExitParams struct {
	Side     exits.Side
	Quantity int

	// EntryUnderlying is the underlying price at fill time. Zero falls
	// back to the builder's last price.
	EntryUnderlying float64

	TargetProfitUSD float64
	MaxLossUSD      float64
	// ExpectedMoveUSD backs the flat-delta fallback when the option's
	// pricing inputs are incomplete.
	ExpectedMoveUSD float64

	Strike       float64
	DaysToExpiry float64
	IV           float64
	IsCall       bool

	// Delta is the live option delta used for slippage budgeting; zero
	// degrades to 0.5 in the executor.
	Delta float64

	// DualStop arms a second, inverted stop (the put override mode).
	DualStop bool
}

// ArmExit derives stop/take-profit levels from the dollar goals and arms
// the evaluator. One armed exit per session; arming over a live one fails.
func (a *App) ArmExit(ctx context.Context, p ArmExitParams) (*exits.ArmedExit, error) {
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	entry := p.EntryUnderlying
	if entry <= 0 {
		entry = a.builder.LastPrice()
	}
	if entry <= 0 {
		return nil, fmt.Errorf("no reference price for %s yet", a.config.Symbol)
	}

	lp := sizing.LevelParams{
		EntryUnderlying: entry,
		Strike:          p.Strike,
		DaysToExpiry:    p.DaysToExpiry,
		IV:              p.IV,
		IsCall:          p.IsCall,
		Quantity:        p.Quantity,
	}

	tp := sizing.EffectiveLevel(lp, p.TargetProfitUSD, p.ExpectedMoveUSD)
	stop := sizing.EffectiveLevel(lp, -p.MaxLossUSD, p.ExpectedMoveUSD)

	ae := &exits.ArmedExit{
		Symbol:             a.config.Symbol,
		Side:               p.Side,
		Quantity:           p.Quantity,
		EntryPrice:         entry,
		StopPrice:          stop,
		TakeProfitPrice:    tp,
		StopPlacementPrice: a.builder.LastPrice(),
		ArmedAt:            time.Now(),
	}
	if ae.StopPlacementPrice <= 0 {
		ae.StopPlacementPrice = entry
	}
	if p.DualStop {
		inv := lp
		inv.Inverted = true
		ae.SecondaryStopPrice = sizing.EffectiveLevel(inv, -p.MaxLossUSD, p.ExpectedMoveUSD)
		ae.SecondaryStopPlacementPrice = ae.StopPlacementPrice
	}

	if err := a.evaluator.Arm(ae); err != nil {
		return nil, err
	}

	rec := &database.ArmedExitRecord{
		Symbol:             ae.Symbol,
		Side:               string(ae.Side),
		Quantity:           ae.Quantity,
		EntryPrice:         ae.EntryPrice,
		StopPrice:          ae.StopPrice,
		TakeProfitPrice:    ae.TakeProfitPrice,
		StopPlacementPrice: ae.StopPlacementPrice,
		ArmedAt:            ae.ArmedAt,
	}
	if ae.SecondaryStopPrice > 0 {
		s := ae.SecondaryStopPrice
		rec.SecondaryStopPrice = &s
	}
	if err := a.exitRepo.SaveArmedExit(rec); err != nil {
		log.Printf("⚠️  Failed to persist armed exit: %v", err)
	}

	a.mu.Lock()
	a.armedMeta = armedMeta{
		recordID:        rec.ID,
		targetProfitUSD: p.TargetProfitUSD,
		maxLossUSD:      p.MaxLossUSD,
		delta:           p.Delta,
	}
	a.mu.Unlock()

	a.persistArmedExit(ctx, ae)
	metrics.Armed.Set(1)
	a.sse.Broadcast(realtime.EventExitArmed, ae)
	return ae, nil
}

// MoveStop re-places the primary stop at a new level; the current price
// becomes the crossover reference.
func (a *App) MoveStop(ctx context.Context, level float64) {
	a.evaluator.MoveStop(level, a.builder.LastPrice())
	a.syncArmedState(ctx)
}

// MoveSecondaryStop re-places the override-mode stop.
func (a *App) MoveSecondaryStop(ctx context.Context, level float64) {
	a.evaluator.MoveSecondaryStop(level, a.builder.LastPrice())
	a.syncArmedState(ctx)
}

// MoveTakeProfit re-places the take-profit level.
func (a *App) MoveTakeProfit(ctx context.Context, level float64) {
	a.evaluator.MoveTakeProfit(level)
	a.syncArmedState(ctx)
}

// FlattenNow disarms the auto-exit and sends the position to the executor
// immediately, bypassing trigger evaluation.
func (a *App) FlattenNow(reason string) {
	ae, ok := a.evaluator.Armed()
	if !ok || ae.Closed {
		return
	}
	a.evaluator.Disarm()
	if reason == "" {
		reason = exits.ReasonManual
	}
	a.onExitFired(ae, reason, a.builder.LastPrice())
}

// onExitFired is the evaluator's fire callback. The armed exit is already
// closed; this records the trigger and hands the position to the executor
// asynchronously so the evaluation ticker is never blocked.
func (a *App) onExitFired(ae exits.ArmedExit, reason string, triggerPrice float64) {
	metrics.Triggers.WithLabelValues(reason).Inc()
	metrics.Armed.Set(0)
	a.sse.Broadcast(realtime.EventExitFired, map[string]interface{}{
		"armed":         ae,
		"reason":        reason,
		"trigger_price": triggerPrice,
	})

	side := closingSide(ae.Side, a.config.OptionContractID != 0)

	a.mu.Lock()
	meta := a.armedMeta
	a.armedMeta.exitSide = string(side)
	a.mu.Unlock()

	ctx := context.Background()
	_ = a.redis.Delete(ctx, armedExitKeyPrefix+a.config.Symbol)
	if meta.recordID != 0 {
		if err := a.exitRepo.CloseArmedExit(meta.recordID, reason, time.Now()); err != nil {
			log.Printf("⚠️  Failed to close armed-exit record: %v", err)
		}
	}

	// Budget slippage against the dollar figure the trigger was protecting
	targetUSD := meta.targetProfitUSD
	if reason == exits.ReasonStopLoss || reason == exits.ReasonSecondaryStop {
		targetUSD = meta.maxLossUSD
	}

	ord := exits.ExitOrder{
		Side:      side,
		Quantity:  ae.Quantity,
		Reason:    reason,
		TargetUSD: targetUSD,
		Delta:     meta.delta,
	}

	go func() {
		execCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := a.executor.ExecuteExit(execCtx, ord)
		outcome := "FILLED"
		if err != nil {
			outcome = "NOT_FLAT"
			var nf *exits.NotFlatError
			if errors.As(err, &nf) {
				metrics.NotFlat.Inc()
			}
			log.Printf("🚨 Exit execution for %s did not complete cleanly: %v", ae.Symbol, err)
		} else {
			log.Printf("✅ Position %s flat after %s exit", ae.Symbol, reason)
			a.sse.Broadcast(realtime.EventFlat, map[string]string{"symbol": ae.Symbol, "reason": reason})
		}
		if repErr := a.exitRepo.SaveExecutionReport(&database.ExecutionReport{
			ArmedExitID:       meta.recordID,
			Symbol:            ae.Symbol,
			Reason:            reason,
			RequestedQuantity: ae.Quantity,
			Outcome:           outcome,
		}); repErr != nil {
			log.Printf("⚠️  Failed to persist execution outcome: %v", repErr)
		}
	}()
}

// closingSide maps position direction to the closing order side. Long
// option contracts (calls and puts alike) close by selling; only a true
// short equity position closes by buying.
func closingSide(side exits.Side, isOption bool) broker.OrderSide {
	if !isOption && side == exits.SideShort {
		return broker.SideBuy
	}
	return broker.SideSell
}

// recordAttempt is the executor's per-attempt observer: audit row, metric,
// UI event.
func (a *App) recordAttempt(at exits.ExitAttempt) {
	a.mu.Lock()
	recordID := a.armedMeta.recordID
	side := a.armedMeta.exitSide
	a.mu.Unlock()

	metrics.ExitAttempts.WithLabelValues("submitted").Inc()
	metrics.ExitOrders.WithLabelValues(at.OrderType, side).Inc()
	a.sse.Broadcast(realtime.EventExitAttempt, at)

	if err := a.exitRepo.SaveExecutionReport(&database.ExecutionReport{
		ArmedExitID:       recordID,
		Symbol:            a.config.Symbol,
		AttemptNumber:     at.AttemptNumber,
		OrderID:           at.OrderID,
		OrderType:         at.OrderType,
		LimitPrice:        at.LimitPrice,
		RequestedQuantity: at.RemainingQuantity,
		Outcome:           "SUBMITTED",
	}); err != nil {
		log.Printf("⚠️  Failed to persist exit attempt: %v", err)
	}
}

// syncArmedState re-persists the armed exit after a level move.
func (a *App) syncArmedState(ctx context.Context) {
	ae, ok := a.evaluator.Armed()
	if !ok || ae.Closed {
		return
	}
	a.persistArmedExit(ctx, &ae)
}

func (a *App) persistArmedExit(ctx context.Context, ae *exits.ArmedExit) {
	if a.redis == nil {
		return
	}
	if err := a.redis.Set(ctx, armedExitKeyPrefix+a.config.Symbol, ae, 0); err != nil {
		log.Printf("⚠️  Failed to persist armed exit to redis: %v", err)
	}
}

// restoreArmedExit re-arms a live exit left over from a crashed session.
// Placement prices survive the restart, so the crossover references hold.
func (a *App) restoreArmedExit(ctx context.Context) {
	if a.redis == nil {
		return
	}
	var ae exits.ArmedExit
	if err := a.redis.Get(ctx, armedExitKeyPrefix+a.config.Symbol, &ae); err != nil {
		return
	}
	if ae.Closed || ae.Quantity <= 0 {
		return
	}
	if err := a.evaluator.Arm(&ae); err != nil {
		log.Printf("⚠️  Could not restore armed exit: %v", err)
		return
	}
	if rec, err := a.exitRepo.OpenArmedExit(); err == nil && rec != nil {
		a.mu.Lock()
		a.armedMeta.recordID = rec.ID
		a.mu.Unlock()
	}
	metrics.Armed.Set(1)
	log.Printf("♻️  Restored armed exit for %s: stop=%.2f tp=%.2f qty=%d",
		ae.Symbol, ae.StopPrice, ae.TakeProfitPrice, ae.Quantity)
}

// persistCandles snapshots the builder for the next session.
func (a *App) persistCandles(ctx context.Context) {
	if a.redis == nil {
		return
	}
	snap := a.builder.Snapshot(time.Now())
	if len(snap.Bars) == 0 {
		return
	}
	if err := a.redis.Set(ctx, candleSnapshotKeyPrefix+a.config.Symbol, snap, 0); err != nil {
		log.Printf("⚠️  Failed to persist candle snapshot: %v", err)
	}
}

// restoreCandles loads the previous session's candle snapshot, discarding
// stale snapshots and stale individual bars.
func (a *App) restoreCandles(ctx context.Context) {
	if a.redis == nil {
		return
	}
	var snap candles.Snapshot
	if err := a.redis.Get(ctx, candleSnapshotKeyPrefix+a.config.Symbol, &snap); err != nil {
		return
	}
	maxAge := time.Duration(a.config.Trading.SnapshotMaxAgeHours) * time.Hour
	barMaxAge := time.Duration(a.config.Trading.BarMaxAgeHours) * time.Hour
	if n := a.builder.Restore(snap, time.Now(), maxAge, barMaxAge); n > 0 {
		log.Printf("🕯️ Restored %d cached candles for %s", n, a.config.Symbol)
	}
}

// bootstrapHistory seeds the builder from the provider's recent minute
// bars; provider data supersedes the restored snapshot where both exist.
func (a *App) bootstrapHistory(ctx context.Context) {
	bars, err := a.brokerClient.GetHistoricalBars(ctx, a.config.TickerID, "m1", a.config.Trading.MaxCachedBars)
	if err != nil {
		log.Printf("⚠️  Historical bootstrap failed, continuing with cached candles: %v", err)
		return
	}
	if len(bars) == 0 {
		return
	}
	a.builder.Seed(bars)
	log.Printf("🕯️ Bootstrapped %d historical candles for %s", len(bars), a.config.Symbol)
}
