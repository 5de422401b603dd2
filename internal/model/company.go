// Package model defines the valuation engine's domain types.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level identifies one tier of the four-level ICB classification.
type Level string

const (
	LevelSubSector   Level = "sub_sector"
	LevelSector      Level = "sector"
	LevelSuperSector Level = "super_sector"
	LevelIndustry    Level = "industry"
)

// Levels lists classification tiers from most to least specific.
var Levels = []Level{LevelSubSector, LevelSector, LevelSuperSector, LevelIndustry}

// Classification is a company's (or a multiple's) ICB key. Empty fields mean
// the key stops at a coarser level.
type Classification struct {
	Industry    string `json:"industry"`
	SuperSector string `json:"super_sector"`
	Sector      string `json:"sector"`
	SubSector   string `json:"sub_sector"`
}

// Value returns the classification code at the given level.
func (c Classification) Value(l Level) string {
	switch l {
	case LevelSubSector:
		return c.SubSector
	case LevelSector:
		return c.Sector
	case LevelSuperSector:
		return c.SuperSector
	case LevelIndustry:
		return c.Industry
	}
	return ""
}

// MostSpecific returns the finest populated level and its code.
// ok is false when the classification is entirely empty.
func (c Classification) MostSpecific() (Level, string, bool) {
	for _, l := range Levels {
		if v := c.Value(l); v != "" {
			return l, v, true
		}
	}
	return "", "", false
}

// RevenueModel describes how a company earns its revenue.
type RevenueModel string

const (
	RevenueModelProjectBased  RevenueModel = "PROJECT_BASED"
	RevenueModelTransactional RevenueModel = "TRANSACTIONAL"
	RevenueModelRecurring     RevenueModel = "RECURRING_CONTRACTS"
	RevenueModelSubscription  RevenueModel = "SUBSCRIPTION"
)

// GrossMargin is a gross margin band.
type GrossMargin string

const (
	GrossMarginLow       GrossMargin = "LOW"
	GrossMarginModerate  GrossMargin = "MODERATE"
	GrossMarginHigh      GrossMargin = "HIGH"
	GrossMarginExcellent GrossMargin = "EXCELLENT"
)

// LaborIntensity describes how labor-dependent delivery is.
type LaborIntensity string

const (
	LaborIntensityVeryHigh LaborIntensity = "VERY_HIGH"
	LaborIntensityHigh     LaborIntensity = "HIGH"
	LaborIntensityModerate LaborIntensity = "MODERATE"
	LaborIntensityLow      LaborIntensity = "LOW"
)

// AssetIntensity describes how capital-heavy operations are.
type AssetIntensity string

const (
	AssetIntensityHeavy    AssetIntensity = "ASSET_HEAVY"
	AssetIntensityModerate AssetIntensity = "MODERATE"
	AssetIntensityLight    AssetIntensity = "ASSET_LIGHT"
)

// OwnerInvolvement describes how dependent the business is on its owner.
type OwnerInvolvement string

const (
	OwnerInvolvementCritical OwnerInvolvement = "CRITICAL"
	OwnerInvolvementHigh     OwnerInvolvement = "HIGH"
	OwnerInvolvementModerate OwnerInvolvement = "MODERATE"
	OwnerInvolvementLow      OwnerInvolvement = "LOW"
	OwnerInvolvementMinimal  OwnerInvolvement = "MINIMAL"
)

// CoreFactors are the structural inputs to the Core Score.
type CoreFactors struct {
	AnnualRevenue    decimal.Decimal  `json:"annual_revenue"`
	RevenueModel     RevenueModel     `json:"revenue_model"`
	GrossMargin      GrossMargin      `json:"gross_margin"`
	LaborIntensity   LaborIntensity   `json:"labor_intensity"`
	AssetIntensity   AssetIntensity   `json:"asset_intensity"`
	OwnerInvolvement OwnerInvolvement `json:"owner_involvement"`
}

// Company is a business being valued.
type Company struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Classification Classification `json:"classification"`
	Core           CoreFactors    `json:"core"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// FinancialPeriod holds one period's normalized financials.
type FinancialPeriod struct {
	CompanyID      string              `json:"company_id"`
	PeriodEnd      time.Time           `json:"period_end"`
	AdjustedEBITDA decimal.NullDecimal `json:"adjusted_ebitda"`
	FreeCashFlow   decimal.NullDecimal `json:"free_cash_flow"`
}
