package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// MultipleType selects which multiple pair of an IndustryMultiple changed.
type MultipleType string

const (
	MultipleEBITDA  MultipleType = "EBITDA"
	MultipleRevenue MultipleType = "REVENUE"
)

// IndustryMultiple is a dated low/high multiple range for a classification
// key. Several rows may exist per key; the latest effective one wins.
type IndustryMultiple struct {
	ID             string          `json:"id"`
	Classification Classification  `json:"classification"`
	EffectiveDate  time.Time       `json:"effective_date"`
	RevenueLow     decimal.Decimal `json:"revenue_low"`
	RevenueHigh    decimal.Decimal `json:"revenue_high"`
	EBITDALow      decimal.Decimal `json:"ebitda_low"`
	EBITDAHigh     decimal.Decimal `json:"ebitda_high"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks the low <= high invariant for both pairs.
func (m *IndustryMultiple) Validate() error {
	if _, _, ok := m.Classification.MostSpecific(); !ok {
		return eris.New("industry multiple: classification key is empty")
	}
	if m.RevenueLow.IsNegative() || m.EBITDALow.IsNegative() {
		return eris.New("industry multiple: multiples must be non-negative")
	}
	if m.RevenueLow.GreaterThan(m.RevenueHigh) {
		return eris.Errorf("industry multiple: revenue low %s > high %s", m.RevenueLow, m.RevenueHigh)
	}
	if m.EBITDALow.GreaterThan(m.EBITDAHigh) {
		return eris.Errorf("industry multiple: ebitda low %s > high %s", m.EBITDALow, m.EBITDAHigh)
	}
	return nil
}

// Level returns the specificity of this multiple's key.
func (m *IndustryMultiple) Level() Level {
	l, _, _ := m.Classification.MostSpecific()
	return l
}
