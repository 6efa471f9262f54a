// Package sizing converts a target dollar move into option contract counts
// and exit trigger levels. The Black-Scholes delta here is a display/preview
// fallback only; money-affecting sizing refuses to run without a live
// market-data delta.
package sizing

import "math"

// Model assumptions when no real market data is available
const (
	riskFreeRate = 0.045 // fixed 4.5%
	defaultIV    = 0.30  // 30% implied vol assumption
)

// Delta returns the Black-Scholes option delta. Call delta is N(d1), put
// delta is N(d1)-1. At expiry the delta collapses to a moneyness step
// function. Non-positive spot/strike inputs return a neutral 0.5 rather
// than NaN.
func Delta(spot, strike, daysToExpiry, iv float64, isCall bool) float64 {
	if spot <= 0 || strike <= 0 {
		return 0.5
	}
	if iv <= 0 {
		iv = defaultIV
	}

	if daysToExpiry <= 0 {
		return expiryDelta(spot, strike, isCall)
	}

	t := daysToExpiry / 365.0
	d1 := (math.Log(spot/strike) + (riskFreeRate+iv*iv/2)*t) / (iv * math.Sqrt(t))

	nd1 := normCDF(d1)
	if isCall {
		return nd1
	}
	return nd1 - 1
}

// expiryDelta is the moneyness step function used when daysToExpiry <= 0.
func expiryDelta(spot, strike float64, isCall bool) float64 {
	if isCall {
		switch {
		case spot > strike:
			return 1
		case spot < strike:
			return 0
		}
		return 0.5
	}
	switch {
	case spot < strike:
		return -1
	case spot > strike:
		return 0
	}
	return -0.5
}

// normCDF approximates the standard normal CDF with the Abramowitz-Stegun
// rational polynomial (26.2.17), accurate to ~7.5e-8.
func normCDF(x float64) float64 {
	if x < 0 {
		return 1 - normCDF(-x)
	}

	const (
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)

	t := 1 / (1 + 0.2316419*x)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	pdf := math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
	return 1 - pdf*poly
}
