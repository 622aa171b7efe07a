package calc

import "github.com/shopspring/decimal"

var tinyShare = decimal.New(1, -2)

// ShareInput is one side of a liquidity deposit. Amount is in display units,
// Reserve is the pool's current reserve of that token in raw units.
type ShareInput struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
	Reserve  string `json:"reserve"`
}

// EstimatedSharePercent returns the largest per-token share of the pool the
// deposit would own, in percent. An imbalanced deposit is capped by its
// scarcer side, so the result is a max, never a sum or mean.
func EstimatedSharePercent(inputs []ShareInput) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for _, in := range inputs {
		raw := ScaleUp(in.Amount, in.Decimals)
		if raw.IsNegative() {
			continue
		}
		reserve, ok := ParseAmount(in.Reserve)
		if !ok || reserve.IsNegative() {
			continue
		}
		denom := raw.Add(reserve)
		if denom.IsZero() {
			continue
		}
		share := raw.Mul(hundred).Div(denom)
		if !found || share.GreaterThan(best) {
			best = share
			found = true
		}
	}
	return best, found
}

// EstimatedShare renders EstimatedSharePercent for display.
func EstimatedShare(inputs []ShareInput) string {
	share, ok := EstimatedSharePercent(inputs)
	if !ok {
		return SentinelEmpty
	}
	if share.IsPositive() && share.LessThan(tinyShare) {
		return SentinelTiny
	}
	return FormatWithPlaces(share, 2)
}
