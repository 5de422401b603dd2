// Package store persists companies, assessments, multiples, snapshots,
// tasks and drift reports in Postgres or SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidResponse is returned when an answer references options of
// another question or an effective option scoring below the selection.
var ErrInvalidResponse = errors.New("store: invalid response")

// SnapshotFilter narrows ListSnapshots. Zero values mean unbounded.
type SnapshotFilter struct {
	Since time.Time `json:"since,omitempty"`
	Until time.Time `json:"until,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the valuation engine.
type Store interface {
	// Companies and financials
	UpsertCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanyIDs(ctx context.Context) ([]string, error)
	ListCompanyIDsByClassification(ctx context.Context, level model.Level, code string) ([]string, error)
	UpsertFinancialPeriod(ctx context.Context, p *model.FinancialPeriod) error
	ListFinancialPeriods(ctx context.Context, companyID string) ([]model.FinancialPeriod, error)

	// Assessment
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetOption(ctx context.Context, optionID string) (*model.Option, error)
	UpsertResponse(ctx context.Context, r *model.AssessmentResponse) error
	GetResponse(ctx context.Context, companyID, questionID string) (*model.AssessmentResponse, error)
	EffectiveResponses(ctx context.Context, companyID string) ([]model.EffectiveResponse, error)
	UpgradeEffectiveOption(ctx context.Context, responseID, fromOptionID, toOptionID string) (bool, error)

	// Industry multiples
	InsertMultiple(ctx context.Context, m *model.IndustryMultiple) error
	DeleteMultiple(ctx context.Context, id string) (*model.IndustryMultiple, error)
	LatestMultiple(ctx context.Context, level model.Level, code string, asOf time.Time) (*model.IndustryMultiple, error)
	ListMultiples(ctx context.Context) ([]model.IndustryMultiple, error)
	ReplaceMultiples(ctx context.Context, ms []model.IndustryMultiple) error
	UpsertMultiples(ctx context.Context, ms []model.IndustryMultiple) (int64, error)

	// Snapshots
	InsertSnapshot(ctx context.Context, s *model.ValuationSnapshot) error
	GetSnapshot(ctx context.Context, id string) (*model.ValuationSnapshot, error)
	LatestSnapshot(ctx context.Context, companyID string) (*model.ValuationSnapshot, error)
	ListSnapshots(ctx context.Context, companyID string, f SnapshotFilter) ([]model.ValuationSnapshot, error)
	SnapshotAtOrBefore(ctx context.Context, companyID string, t time.Time) (*model.ValuationSnapshot, error)
	EarliestSnapshotBetween(ctx context.Context, companyID string, start, end time.Time) (*model.ValuationSnapshot, error)

	// Tasks
	CreateTask(ctx context.Context, t *model.Task) (bool, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, at time.Time) (*model.Task, error)
	ListOpenTasks(ctx context.Context, companyID string) ([]model.Task, error)
	UpdateNormalizedValues(ctx context.Context, values map[string]decimal.Decimal) error
	CountTasksCompleted(ctx context.Context, companyID string, start, end time.Time) (int, error)
	CountTasksAdded(ctx context.Context, companyID string, start, end time.Time) (int, error)

	// Signals and drift reports
	InsertSignal(ctx context.Context, s *model.Signal) error
	CountSignals(ctx context.Context, companyID string, start, end time.Time) (int, error)
	InsertDriftReport(ctx context.Context, r *model.DriftReport) error
	GetDriftReport(ctx context.Context, id string) (*model.DriftReport, error)
	MarkDriftReportViewed(ctx context.Context, id string, at time.Time) (*model.DriftReport, error)

	// InTx runs fn in a transaction carried by the context passed to fn.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
