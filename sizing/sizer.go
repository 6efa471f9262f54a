package sizing

import "math"

// Contracts converts a target profit and an expected underlying move into
// the number of option contracts required, using profit-per-dollar =
// |delta| * 100 per contract.
//
// Sizing refuses to run (ok=false) unless the caller flags the delta as
// sourced from a live market-data quote: a theoretical delta is for
// preview/display only and must never drive a money-affecting order. The
// UI renders the refused state as a dash, not a number.
func Contracts(targetProfitUSD, expectedMoveUSD, delta float64, live bool) (int, bool) {
	if !live {
		return 0, false
	}
	if targetProfitUSD <= 0 || expectedMoveUSD <= 0 {
		return 0, false
	}

	profitPerDollar := math.Abs(delta) * 100
	perContract := profitPerDollar * expectedMoveUSD
	if perContract <= 0 {
		return 0, false
	}

	return int(math.Ceil(targetProfitUSD / perContract)), true
}
