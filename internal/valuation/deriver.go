// Package valuation derives the industry-relative multiple and dollar values
// from the Core Score, BRI, and the buyer-skepticism exponent.
package valuation

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Alpha bounds for the buyer-skepticism exponent.
var (
	MinAlpha = decimal.RequireFromString("1.3")
	MaxAlpha = decimal.RequireFromString("1.6")
)

const (
	// multiplePlaces is the precision multiples are persisted with.
	multiplePlaces = 6
	// discountPlaces is the precision of the fractional power result.
	discountPlaces = 10
	centPlaces     = 2
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Inputs are the arguments to Derive. CoreScore and BRI are on the 0-100
// scale.
type Inputs struct {
	Low       decimal.Decimal
	High      decimal.Decimal
	CoreScore decimal.Decimal
	BRI       decimal.Decimal
	Alpha     decimal.Decimal
	EBITDA    decimal.Decimal
}

// Result holds the derived multiples and values. Values are rounded to
// cents and ValueGap == PotentialValue - CurrentValue exactly.
type Result struct {
	BaseMultiple     decimal.Decimal `json:"base_multiple"`
	DiscountFraction decimal.Decimal `json:"discount_fraction"`
	FinalMultiple    decimal.Decimal `json:"final_multiple"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	PotentialValue   decimal.Decimal `json:"potential_value"`
	ValueGap         decimal.Decimal `json:"value_gap"`
}

// Derive computes:
//
//	baseMultiple   = L + (CoreScore/100) * (H - L)
//	discountFrac   = (1 - BRI/100) ^ alpha
//	finalMultiple  = L + (baseMultiple - L) * (1 - discountFrac)
//	currentValue   = EBITDA * finalMultiple
//	potentialValue = EBITDA * baseMultiple
//	valueGap       = potentialValue - currentValue
//
// CoreScore and BRI are clamped to [0, 100], so L <= final <= base <= H
// holds for every accepted input.
func Derive(in Inputs) (Result, error) {
	if in.Low.IsNegative() {
		return Result{}, eris.Errorf("valuation: low multiple %s is negative", in.Low)
	}
	if in.Low.GreaterThan(in.High) {
		return Result{}, eris.Errorf("valuation: low multiple %s > high multiple %s", in.Low, in.High)
	}
	if in.Alpha.LessThan(MinAlpha) || in.Alpha.GreaterThan(MaxAlpha) {
		return Result{}, eris.Errorf("valuation: alpha %s outside [%s, %s]", in.Alpha, MinAlpha, MaxAlpha)
	}

	core := clamp(in.CoreScore, decimal.Zero, hundred).Div(hundred)
	bri := clamp(in.BRI, decimal.Zero, hundred).Div(hundred)
	spread := in.High.Sub(in.Low)

	base := in.Low.Add(core.Mul(spread))
	discount := DiscountFraction(bri, in.Alpha)
	final := in.Low.Add(base.Sub(in.Low).Mul(one.Sub(discount)))

	current := in.EBITDA.Mul(final).Round(centPlaces)
	potential := in.EBITDA.Mul(base).Round(centPlaces)

	return Result{
		BaseMultiple:     base.Round(multiplePlaces),
		DiscountFraction: discount,
		FinalMultiple:    final.Round(multiplePlaces),
		CurrentValue:     current,
		PotentialValue:   potential,
		ValueGap:         potential.Sub(current),
	}, nil
}

// DiscountFraction returns (1 - bri)^alpha for bri in [0,1], rounded to ten
// places and clamped to [0,1]. The fractional power is evaluated in float64;
// everything downstream stays in decimal.
func DiscountFraction(bri, alpha decimal.Decimal) decimal.Decimal {
	shortfall := one.Sub(clamp(bri, decimal.Zero, one))
	if shortfall.IsZero() {
		return decimal.Zero
	}
	if shortfall.Equal(one) {
		return one
	}
	s, _ := shortfall.Float64()
	a, _ := alpha.Float64()
	d := decimal.NewFromFloat(math.Pow(s, a)).Round(discountPlaces)
	return clamp(d, decimal.Zero, one)
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
