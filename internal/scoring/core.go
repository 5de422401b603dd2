package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

// revenueBuckets maps annual revenue floors to a 0-1 size score. Checked in
// descending order; revenue at or below zero scores 0.
var revenueBuckets = []struct {
	floor decimal.Decimal
	score decimal.Decimal
}{
	{decimal.NewFromInt(10_000_000), decimal.NewFromInt(1)},
	{decimal.NewFromInt(3_000_000), decimal.RequireFromString("0.8")},
	{decimal.NewFromInt(1_000_000), decimal.RequireFromString("0.6")},
	{decimal.NewFromInt(500_000), decimal.RequireFromString("0.4")},
	{decimal.NewFromInt(1), decimal.RequireFromString("0.2")},
}

var revenueModelScores = map[model.RevenueModel]decimal.Decimal{
	model.RevenueModelProjectBased:  decimal.RequireFromString("0.25"),
	model.RevenueModelTransactional: decimal.RequireFromString("0.5"),
	model.RevenueModelRecurring:     decimal.RequireFromString("0.75"),
	model.RevenueModelSubscription:  decimal.NewFromInt(1),
}

var grossMarginScores = map[model.GrossMargin]decimal.Decimal{
	model.GrossMarginLow:       decimal.RequireFromString("0.25"),
	model.GrossMarginModerate:  decimal.RequireFromString("0.5"),
	model.GrossMarginHigh:      decimal.RequireFromString("0.75"),
	model.GrossMarginExcellent: decimal.NewFromInt(1),
}

var laborIntensityScores = map[model.LaborIntensity]decimal.Decimal{
	model.LaborIntensityVeryHigh: decimal.RequireFromString("0.25"),
	model.LaborIntensityHigh:     decimal.RequireFromString("0.5"),
	model.LaborIntensityModerate: decimal.RequireFromString("0.75"),
	model.LaborIntensityLow:      decimal.NewFromInt(1),
}

var assetIntensityScores = map[model.AssetIntensity]decimal.Decimal{
	model.AssetIntensityHeavy:    decimal.RequireFromString("0.33"),
	model.AssetIntensityModerate: decimal.RequireFromString("0.67"),
	model.AssetIntensityLight:    decimal.NewFromInt(1),
}

var ownerInvolvementScores = map[model.OwnerInvolvement]decimal.Decimal{
	model.OwnerInvolvementCritical: decimal.Zero,
	model.OwnerInvolvementHigh:     decimal.RequireFromString("0.25"),
	model.OwnerInvolvementModerate: decimal.RequireFromString("0.5"),
	model.OwnerInvolvementLow:      decimal.RequireFromString("0.75"),
	model.OwnerInvolvementMinimal:  decimal.NewFromInt(1),
}

// scoreRevenueSize returns the 0-1 bucket score for annual revenue.
func scoreRevenueSize(revenue decimal.Decimal) decimal.Decimal {
	for _, b := range revenueBuckets {
		if revenue.GreaterThanOrEqual(b.floor) {
			return b.score
		}
	}
	return decimal.Zero
}

// CoreFactorScores returns each structural factor normalized to 0-1.
// Unrecognized enum values score 0.
func CoreFactorScores(f model.CoreFactors) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		FactorRevenueSize:      scoreRevenueSize(f.AnnualRevenue),
		FactorRevenueModel:     revenueModelScores[f.RevenueModel],
		FactorGrossMargin:      grossMarginScores[f.GrossMargin],
		FactorLaborIntensity:   laborIntensityScores[f.LaborIntensity],
		FactorAssetIntensity:   assetIntensityScores[f.AssetIntensity],
		FactorOwnerInvolvement: ownerInvolvementScores[f.OwnerInvolvement],
	}
}

// CoreScore combines the structural factors into a 0-100 score rounded to
// two places.
func (w Weights) CoreScore(f model.CoreFactors) decimal.Decimal {
	factors := CoreFactorScores(f)
	total := decimal.Zero
	for _, name := range coreFactors {
		total = total.Add(factors[name].Mul(w.core[name]))
	}
	return total.Mul(decimal.NewFromInt(100)).Round(2)
}
