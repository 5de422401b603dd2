package model

import "github.com/shopspring/decimal"

// Category is one of the six BRI categories.
type Category string

const (
	CategoryFinancial       Category = "FINANCIAL"
	CategoryTransferability Category = "TRANSFERABILITY"
	CategoryOperational     Category = "OPERATIONAL"
	CategoryMarket          Category = "MARKET"
	CategoryLegalTax        Category = "LEGAL_TAX"
	CategoryPersonal        Category = "PERSONAL"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	CategoryFinancial,
	CategoryTransferability,
	CategoryOperational,
	CategoryMarket,
	CategoryLegalTax,
	CategoryPersonal,
}

// Monetized reports whether value-gap dollars are attributed to c.
// PERSONAL is scored for BRI but never carries a dollar amount.
func (c Category) Monetized() bool {
	return c != CategoryPersonal
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Option is one answer choice of a question. ScoreValue is in [0,1], 1 best.
type Option struct {
	ID           string          `json:"id"`
	QuestionID   string          `json:"question_id"`
	Label        string          `json:"label"`
	ScoreValue   decimal.Decimal `json:"score_value"`
	DisplayOrder int             `json:"display_order"`
}

// Question is an assessment question. Questions are immutable once created
// and are retired with IsActive=false rather than deleted.
type Question struct {
	ID              string          `json:"id"`
	Category        Category        `json:"category"`
	Prompt          string          `json:"prompt"`
	MaxImpactPoints decimal.Decimal `json:"max_impact_points"`
	IsActive        bool            `json:"is_active"`
	Options         []Option        `json:"options,omitempty"`
}

// AssessmentResponse records what a company selected for a question and
// which option is currently used for scoring.
type AssessmentResponse struct {
	ID                string `json:"id"`
	CompanyID         string `json:"company_id"`
	QuestionID        string `json:"question_id"`
	SelectedOptionID  string `json:"selected_option_id"`
	EffectiveOptionID string `json:"effective_option_id"`
}

// EffectiveResponse is a response joined with the question and option data
// needed for scoring.
type EffectiveResponse struct {
	ResponseID        string          `json:"response_id"`
	QuestionID        string          `json:"question_id"`
	Category          Category        `json:"category"`
	MaxImpactPoints   decimal.Decimal `json:"max_impact_points"`
	QuestionActive    bool            `json:"question_active"`
	SelectedOptionID  string          `json:"selected_option_id"`
	SelectedScore     decimal.Decimal `json:"selected_score"`
	EffectiveOptionID string          `json:"effective_option_id"`
	EffectiveScore    decimal.Decimal `json:"effective_score"`
}
