// Package money is the shared fixed-point decimal policy for the trade
// engine. Monetary values carry exactly 4 fractional digits, ratios carry 8,
// and every scale reduction rounds half-up. All decimal arithmetic in the
// engine routes through this package — no ad hoc rounding elsewhere.
package money

import "github.com/shopspring/decimal"

const (
	// PriceScale is the number of fractional digits for monetary values
	// (prices, totals, exposures).
	PriceScale = 4

	// RatioScale is the number of fractional digits for ratio values
	// (concentration risk, percentages).
	RatioScale = 8
)

// Scale rounds a monetary value to PriceScale fractional digits, half-up.
func Scale(v decimal.Decimal) decimal.Decimal {
	return v.Round(PriceScale)
}

// ScaleRatio rounds a ratio value to RatioScale fractional digits, half-up.
func ScaleRatio(v decimal.Decimal) decimal.Decimal {
	return v.Round(RatioScale)
}

// DivPrice divides two monetary values at PriceScale. The denominator must
// be non-zero; callers divide by trade quantities which are validated > 0.
func DivPrice(num, den decimal.Decimal) decimal.Decimal {
	return num.DivRound(den, PriceScale)
}

// Ratio divides num by den at RatioScale. A zero denominator yields a
// defined zero result, not an error: the concentration of an empty
// portfolio is 0.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, RatioScale)
}
