package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity grades a drift report.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alerting reports whether the severity warrants a Signal.
func (s Severity) Alerting() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// CategoryDelta is the change of one category score across a report period.
type CategoryDelta struct {
	Category Category        `json:"category"`
	Start    decimal.Decimal `json:"start"`
	End      decimal.Decimal `json:"end"`
	Delta    decimal.Decimal `json:"delta"`
}

// DriftReport compares two snapshots over a period.
type DriftReport struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	StartSnapshotID string    `json:"start_snapshot_id"`
	EndSnapshotID   string    `json:"end_snapshot_id"`

	BRIStart       decimal.Decimal `json:"bri_start"`
	BRIEnd         decimal.Decimal `json:"bri_end"`
	BRIDelta       decimal.Decimal `json:"bri_delta"`
	ValuationStart decimal.Decimal `json:"valuation_start"`
	ValuationEnd   decimal.Decimal `json:"valuation_end"`
	ValuationDelta decimal.Decimal `json:"valuation_delta"`

	CategoryDeltas []CategoryDelta `json:"category_deltas"`

	SignalsCount        int `json:"signals_count"`
	TasksCompletedCount int `json:"tasks_completed_count"`
	TasksAddedCount     int `json:"tasks_added_count"`

	Severity  Severity   `json:"severity"`
	SignalID  string     `json:"signal_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ViewedAt  *time.Time `json:"viewed_at,omitempty"`
}

// SignalKind identifies what raised a signal.
type SignalKind string

const SignalBRIDrift SignalKind = "BRI_DRIFT"

// Signal is an alert entity raised for a company.
type Signal struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	Kind      SignalKind `json:"kind"`
	Severity  Severity   `json:"severity"`
	Title     string     `json:"title"`
	Detail    string     `json:"detail"`
	CreatedAt time.Time  `json:"created_at"`
}
