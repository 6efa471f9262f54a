package sizing

import "math"

// Fixed-point search budget for gamma-adjusted levels
const (
	maxLevelIterations = 100
	levelPriceStep     = 0.01 // candidate considered settled below this move
	levelProfitTol     = 1.0  // $1 of profit counts as converged
)

// LevelParams describes the option position a trigger level is computed for.
type LevelParams struct {
	EntryUnderlying float64
	Strike          float64
	DaysToExpiry    float64
	IV              float64
	IsCall          bool
	Quantity        int

	// Inverted flips the search direction; used for the secondary-stop
	// override mode when trading puts.
	Inverted bool
}

// EffectiveLevel returns the underlying price at which the position's P/L
// reaches targetUSD (positive for a take-profit, negative for a stop),
// accounting for delta changing as price moves. The profit model uses the
// average of the entry delta and the delta at the candidate price, a cheap
// gamma approximation:
//
//	profit = avgDelta * 100 * quantity * (candidate - entry)
//
// The search is a fixed-point iteration bounded to 100 rounds; it stops
// when profit lands within $1 of target or the candidate moves less than
// one cent. A search that never converges returns the last tested price
// rather than an error.
//
// When the option data needed for the model is missing (no strike or no
// time to expiry), the level degrades to a flat entry +/- fallbackMove.
func EffectiveLevel(p LevelParams, targetUSD, fallbackMove float64) float64 {
	if p.EntryUnderlying <= 0 || p.Quantity <= 0 || targetUSD == 0 {
		return p.EntryUnderlying
	}
	if p.Strike <= 0 || p.DaysToExpiry <= 0 {
		return p.EntryUnderlying + flatMove(p, targetUSD, fallbackMove)
	}

	entryDelta := Delta(p.EntryUnderlying, p.Strike, p.DaysToExpiry, p.IV, p.IsCall)
	if entryDelta == 0 {
		return p.EntryUnderlying + flatMove(p, targetUSD, fallbackMove)
	}

	perDollar := 100 * float64(p.Quantity)
	candidate := p.EntryUnderlying + signedMove(p, targetUSD/(entryDelta*perDollar))

	for i := 0; i < maxLevelIterations; i++ {
		candDelta := Delta(candidate, p.Strike, p.DaysToExpiry, p.IV, p.IsCall)
		avgDelta := (entryDelta + candDelta) / 2
		if avgDelta == 0 {
			break
		}

		move := candidate - p.EntryUnderlying
		profit := avgDelta * perDollar * move
		if p.Inverted {
			profit = -profit
		}
		if math.Abs(profit-targetUSD) <= levelProfitTol {
			return roundCent(candidate)
		}

		next := p.EntryUnderlying + signedMove(p, targetUSD/(avgDelta*perDollar))
		if math.Abs(next-candidate) < levelPriceStep {
			return roundCent(next)
		}
		candidate = next
	}

	// non-convergence: return the last tested price
	return roundCent(candidate)
}

// signedMove applies the inverted-mode flip to a raw dollar move.
func signedMove(p LevelParams, move float64) float64 {
	if p.Inverted {
		return -move
	}
	return move
}

// flatMove is the entry +/- expectedMove fallback used when no delta model
// is available.
func flatMove(p LevelParams, targetUSD, fallbackMove float64) float64 {
	move := math.Abs(fallbackMove)

	// rising target for calls, falling for puts; losses mirror
	if !p.IsCall {
		move = -move
	}
	if targetUSD < 0 {
		move = -move
	}
	return signedMove(p, move)
}

func roundCent(v float64) float64 {
	return math.Round(v*100) / 100
}
