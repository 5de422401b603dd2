// Package scoring computes the Core Score, BRI category scores, and the
// overall BRI score from structural factors and effective answers.
package scoring

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
)

// Core factor names.
const (
	FactorRevenueSize      = "revenue_size"
	FactorRevenueModel     = "revenue_model"
	FactorGrossMargin      = "gross_margin"
	FactorLaborIntensity   = "labor_intensity"
	FactorAssetIntensity   = "asset_intensity"
	FactorOwnerInvolvement = "owner_involvement"
)

var coreFactors = []string{
	FactorRevenueSize,
	FactorRevenueModel,
	FactorGrossMargin,
	FactorLaborIntensity,
	FactorAssetIntensity,
	FactorOwnerInvolvement,
}

var one = decimal.NewFromInt(1)

// Weights is the immutable category and core-factor weight configuration.
// Build it once at startup with NewWeights; calculations never re-validate.
type Weights struct {
	category map[model.Category]decimal.Decimal
	core     map[string]decimal.Decimal
}

// DefaultWeights returns the shipped weights: Financial .25,
// Transferability .20, Operational .20, Market .15, Legal/Tax .10,
// Personal .10.
func DefaultWeights() Weights {
	w, err := NewWeights(config.ValuationConfig{
		CategoryWeights: config.CategoryWeights{
			Financial: 0.25, Transferability: 0.20, Operational: 0.20,
			Market: 0.15, LegalTax: 0.10, Personal: 0.10,
		},
		CoreWeights: config.CoreWeights{
			RevenueSize: 0.20, RevenueModel: 0.20, GrossMargin: 0.15,
			LaborIntensity: 0.15, AssetIntensity: 0.10, OwnerInvolvement: 0.20,
		},
	})
	if err != nil {
		panic(err)
	}
	return w
}

// NewWeights converts configured weights to decimals and checks that each
// set sums to exactly 1. Errors wrap config.ErrInvalidConfig.
func NewWeights(cfg config.ValuationConfig) (Weights, error) {
	cw := cfg.CategoryWeights
	category := map[model.Category]decimal.Decimal{
		model.CategoryFinancial:       decimal.NewFromFloat(cw.Financial),
		model.CategoryTransferability: decimal.NewFromFloat(cw.Transferability),
		model.CategoryOperational:     decimal.NewFromFloat(cw.Operational),
		model.CategoryMarket:          decimal.NewFromFloat(cw.Market),
		model.CategoryLegalTax:        decimal.NewFromFloat(cw.LegalTax),
		model.CategoryPersonal:        decimal.NewFromFloat(cw.Personal),
	}
	core := map[string]decimal.Decimal{
		FactorRevenueSize:      decimal.NewFromFloat(cfg.CoreWeights.RevenueSize),
		FactorRevenueModel:     decimal.NewFromFloat(cfg.CoreWeights.RevenueModel),
		FactorGrossMargin:      decimal.NewFromFloat(cfg.CoreWeights.GrossMargin),
		FactorLaborIntensity:   decimal.NewFromFloat(cfg.CoreWeights.LaborIntensity),
		FactorAssetIntensity:   decimal.NewFromFloat(cfg.CoreWeights.AssetIntensity),
		FactorOwnerInvolvement: decimal.NewFromFloat(cfg.CoreWeights.OwnerInvolvement),
	}

	sum := decimal.Zero
	for _, c := range model.Categories {
		if category[c].IsNegative() {
			return Weights{}, eris.Wrapf(config.ErrInvalidConfig, "scoring: weight for %s is negative", c)
		}
		sum = sum.Add(category[c])
	}
	if !sum.Equal(one) {
		return Weights{}, eris.Wrapf(config.ErrInvalidConfig, "scoring: category weights sum to %s, want 1", sum)
	}

	sum = decimal.Zero
	for _, f := range coreFactors {
		if core[f].IsNegative() {
			return Weights{}, eris.Wrapf(config.ErrInvalidConfig, "scoring: core weight for %s is negative", f)
		}
		sum = sum.Add(core[f])
	}
	if !sum.Equal(one) {
		return Weights{}, eris.Wrapf(config.ErrInvalidConfig, "scoring: core weights sum to %s, want 1", sum)
	}

	return Weights{category: category, core: core}, nil
}

// Category returns the BRI weight of c.
func (w Weights) Category(c model.Category) decimal.Decimal {
	return w.category[c]
}

// Core returns the weight of a structural factor.
func (w Weights) Core(factor string) decimal.Decimal {
	return w.core[factor]
}
