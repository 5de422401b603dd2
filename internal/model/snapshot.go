package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FailureCause classifies why a recalculation did not produce a snapshot.
type FailureCause string

const (
	CauseNoMultiple   FailureCause = "NO_MULTIPLE"
	CauseNoFinancials FailureCause = "NO_FINANCIALS"
	CauseNoAssessment FailureCause = "NO_ASSESSMENT"
	CauseUnexpected   FailureCause = "UNEXPECTED"
)

// Expected reports whether the cause is a recoverable "cannot be valued yet"
// outcome rather than an engine fault.
func (c FailureCause) Expected() bool {
	return c == CauseNoMultiple || c == CauseNoFinancials || c == CauseNoAssessment
}

// ValuationSnapshot is an immutable point-in-time valuation. Snapshots are
// only ever appended; each recalculation writes a new row.
type ValuationSnapshot struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	CreatedAt   time.Time `json:"created_at"`
	Reason      string    `json:"snapshot_reason"`
	ActorUserID *string   `json:"actor_user_id,omitempty"`

	AdjustedEBITDA     decimal.Decimal `json:"adjusted_ebitda"`
	EBITDAEstimated    bool            `json:"ebitda_estimated"`
	IndustryMultipleID string          `json:"industry_multiple_id"`
	MultipleLow        decimal.Decimal `json:"industry_multiple_low"`
	MultipleHigh       decimal.Decimal `json:"industry_multiple_high"`

	CoreScore      decimal.Decimal                  `json:"core_score"`
	CategoryScores map[Category]decimal.NullDecimal `json:"category_scores"`
	BRIScore       decimal.Decimal                  `json:"bri_score"`
	Alpha          decimal.Decimal                  `json:"alpha"`

	BaseMultiple     decimal.Decimal `json:"base_multiple"`
	DiscountFraction decimal.Decimal `json:"discount_fraction"`
	FinalMultiple    decimal.Decimal `json:"final_multiple"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	PotentialValue   decimal.Decimal `json:"potential_value"`
	ValueGap         decimal.Decimal `json:"value_gap"`
}

// CategoryScore returns the stored score for c; ok is false when the
// category was not assessed.
func (s *ValuationSnapshot) CategoryScore(c Category) (decimal.Decimal, bool) {
	v, found := s.CategoryScores[c]
	if !found || !v.Valid {
		return decimal.Zero, false
	}
	return v.Decimal, true
}

// BRIPoints returns the BRI on the 0-100 scale.
func (s *ValuationSnapshot) BRIPoints() decimal.Decimal {
	return s.BRIScore.Mul(decimal.NewFromInt(100))
}

// SameValuation reports whether two snapshots carry identical computed
// fields, ignoring identity, timestamp, reason and actor.
func (s *ValuationSnapshot) SameValuation(o *ValuationSnapshot) bool {
	if s.IndustryMultipleID != o.IndustryMultipleID || s.EBITDAEstimated != o.EBITDAEstimated {
		return false
	}
	pairs := [][2]decimal.Decimal{
		{s.AdjustedEBITDA, o.AdjustedEBITDA},
		{s.MultipleLow, o.MultipleLow},
		{s.MultipleHigh, o.MultipleHigh},
		{s.CoreScore, o.CoreScore},
		{s.BRIScore, o.BRIScore},
		{s.Alpha, o.Alpha},
		{s.BaseMultiple, o.BaseMultiple},
		{s.DiscountFraction, o.DiscountFraction},
		{s.FinalMultiple, o.FinalMultiple},
		{s.CurrentValue, o.CurrentValue},
		{s.PotentialValue, o.PotentialValue},
		{s.ValueGap, o.ValueGap},
	}
	for _, p := range pairs {
		if !p[0].Equal(p[1]) {
			return false
		}
	}
	for _, c := range Categories {
		a, aok := s.CategoryScore(c)
		b, bok := o.CategoryScore(c)
		if aok != bok || !a.Equal(b) {
			return false
		}
	}
	return true
}
