// Package estimate resolves the EBITDA figure a valuation runs on and formats
// dollar amounts for display.
package estimate

import (
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

// ErrNoFinancials means no usable EBITDA figure exists for the company.
var ErrNoFinancials = errors.New("estimate: no financials")

// Method records where an EBITDA figure came from.
type Method string

const (
	MethodReported Method = "reported"
	MethodFCFRatio Method = "fcf_ratio"
)

// DefaultFCFRatio is the assumed free-cash-flow to EBITDA conversion.
var DefaultFCFRatio = decimal.RequireFromString("0.70")

// EBITDA is the figure a valuation runs on.
type EBITDA struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    Method          `json:"method"`
	PeriodEnd string          `json:"period_end"`
}

// Estimated reports whether the amount was derived rather than reported.
func (e EBITDA) Estimated() bool {
	return e.Method != MethodReported
}

// EBITDAFromFreeCashFlow returns fcf / ratio rounded to cents.
func EBITDAFromFreeCashFlow(fcf, ratio decimal.Decimal) (decimal.Decimal, error) {
	if !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, eris.Errorf("estimate: fcf ratio %s outside (0, 1]", ratio)
	}
	return fcf.Div(ratio).Round(2), nil
}

// Resolve picks the EBITDA for a company from its financial periods. The
// latest reported adjusted EBITDA wins. When none exists and allowEstimate
// is set, the latest free cash flow is converted with ratio. Otherwise
// ErrNoFinancials is returned.
func Resolve(periods []model.FinancialPeriod, allowEstimate bool, ratio decimal.Decimal) (EBITDA, error) {
	sorted := make([]model.FinancialPeriod, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PeriodEnd.After(sorted[j].PeriodEnd)
	})

	for _, p := range sorted {
		if p.AdjustedEBITDA.Valid {
			return EBITDA{
				Amount:    p.AdjustedEBITDA.Decimal,
				Method:    MethodReported,
				PeriodEnd: p.PeriodEnd.Format("2006-01-02"),
			}, nil
		}
	}

	if !allowEstimate {
		return EBITDA{}, ErrNoFinancials
	}
	for _, p := range sorted {
		if !p.FreeCashFlow.Valid {
			continue
		}
		amount, err := EBITDAFromFreeCashFlow(p.FreeCashFlow.Decimal, ratio)
		if err != nil {
			return EBITDA{}, err
		}
		zap.L().Info("estimate: ebitda derived from free cash flow",
			zap.String("company_id", p.CompanyID),
			zap.String("fcf", p.FreeCashFlow.Decimal.String()),
			zap.String("ratio", ratio.String()),
			zap.String("ebitda", amount.String()),
		)
		return EBITDA{
			Amount:    amount,
			Method:    MethodFCFRatio,
			PeriodEnd: p.PeriodEnd.Format("2006-01-02"),
		}, nil
	}
	return EBITDA{}, ErrNoFinancials
}
