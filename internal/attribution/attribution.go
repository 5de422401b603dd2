// Package attribution decomposes a valuation gap into per-category and
// per-driver dollar amounts.
package attribution

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/scoring"
)

var one = decimal.NewFromInt(1)

// CategoryInput is one category's score (0-1) and BRI weight.
type CategoryInput struct {
	Category model.Category  `json:"category"`
	Score    decimal.Decimal `json:"score"`
	Weight   decimal.Decimal `json:"weight"`
}

// CategoryGap is a category's share of the value gap.
type CategoryGap struct {
	Category     model.Category  `json:"category"`
	Score        decimal.Decimal `json:"score"`
	Weight       decimal.Decimal `json:"weight"`
	Headroom     decimal.Decimal `json:"headroom"`
	Share        decimal.Decimal `json:"share"`
	DollarImpact decimal.Decimal `json:"dollar_impact"`
}

// DriverInput is an answered question considered as a risk driver.
type DriverInput struct {
	QuestionID      string          `json:"question_id"`
	MaxImpactPoints decimal.Decimal `json:"max_impact_points"`
	EffectiveScore  decimal.Decimal `json:"effective_score"`
}

// DriverGap is a driver's approximate share of its category's dollars.
type DriverGap struct {
	QuestionID   string          `json:"question_id"`
	PointsLost   decimal.Decimal `json:"points_lost"`
	DollarImpact decimal.Decimal `json:"dollar_impact"`
}

// DistributeByCategory splits totalValueGap across monetized categories in
// proportion to headroom = weight * (1 - score). Amounts are computed in
// whole cents and the rounding residual is applied to the category with the
// largest headroom (first in input order on ties), so the returned amounts
// always sum to totalValueGap rounded to the cent. When no category has
// headroom every amount is zero and the gap is left unattributed.
func DistributeByCategory(categories []CategoryInput, totalValueGap decimal.Decimal) []CategoryGap {
	gaps := make([]CategoryGap, 0, len(categories))
	sumHeadroom := decimal.Zero
	for _, c := range categories {
		if !c.Category.Monetized() {
			continue
		}
		score := clampUnit(c.Score)
		headroom := c.Weight.Mul(one.Sub(score))
		if headroom.IsNegative() {
			headroom = decimal.Zero
		}
		gaps = append(gaps, CategoryGap{
			Category:     c.Category,
			Score:        score,
			Weight:       c.Weight,
			Headroom:     headroom,
			Share:        decimal.Zero,
			DollarImpact: decimal.Zero,
		})
		sumHeadroom = sumHeadroom.Add(headroom)
	}
	if !sumHeadroom.IsPositive() {
		return gaps
	}

	totalCents := toCents(totalValueGap)
	allocated := decimal.Zero
	largest := 0
	for i := range gaps {
		share := gaps[i].Headroom.Div(sumHeadroom)
		cents := gaps[i].Headroom.Mul(totalCents).Div(sumHeadroom).Round(0)
		gaps[i].Share = share.Round(6)
		gaps[i].DollarImpact = cents
		allocated = allocated.Add(cents)
		if gaps[i].Headroom.GreaterThan(gaps[largest].Headroom) {
			largest = i
		}
	}

	if residual := totalCents.Sub(allocated); !residual.IsZero() {
		gaps[largest].DollarImpact = gaps[largest].DollarImpact.Add(residual)
	}
	for i := range gaps {
		gaps[i].DollarImpact = fromCents(gaps[i].DollarImpact)
	}
	return gaps
}

// DistributeByDriver splits one category's dollars across its risk drivers
// in proportion to points lost = max points * (1 - effective score).
// Drivers at or above the maximum score are excluded. Amounts are rounded to
// the cent independently and are not reconciled. Results are sorted by
// descending dollar impact; ties keep input order.
func DistributeByDriver(drivers []DriverInput, categoryDollar decimal.Decimal) []DriverGap {
	out := make([]DriverGap, 0, len(drivers))
	total := decimal.Zero
	for _, d := range drivers {
		score := clampUnit(d.EffectiveScore)
		if score.GreaterThanOrEqual(one) || !d.MaxImpactPoints.IsPositive() {
			continue
		}
		lost := d.MaxImpactPoints.Mul(one.Sub(score))
		out = append(out, DriverGap{QuestionID: d.QuestionID, PointsLost: lost})
		total = total.Add(lost)
	}
	if !total.IsPositive() {
		return out
	}

	cents := toCents(categoryDollar)
	for i := range out {
		out[i].DollarImpact = fromCents(out[i].PointsLost.Mul(cents).Div(total).Round(0))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DollarImpact.GreaterThan(out[j].DollarImpact)
	})
	return out
}

// CategoryInputsFromSnapshot builds category inputs from a snapshot's stored
// scores. Categories that were not assessed are omitted.
func CategoryInputsFromSnapshot(s *model.ValuationSnapshot, w scoring.Weights) []CategoryInput {
	inputs := make([]CategoryInput, 0, len(model.Categories))
	for _, c := range model.Categories {
		score, ok := s.CategoryScore(c)
		if !ok {
			continue
		}
		inputs = append(inputs, CategoryInput{Category: c, Score: score, Weight: w.Category(c)})
	}
	return inputs
}

// SumDollars totals the dollar impact of category gaps.
func SumDollars(gaps []CategoryGap) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range gaps {
		sum = sum.Add(g.DollarImpact)
	}
	return sum
}

func toCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2).Shift(2)
}

func fromCents(c decimal.Decimal) decimal.Decimal {
	return c.Shift(-2)
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}
