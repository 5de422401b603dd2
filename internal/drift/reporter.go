// Package drift compares a company's valuation snapshots over a period and
// raises a signal when readiness drops sharply.
package drift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/estimate"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/monitoring"
	"github.com/sells-group/valuation-cli/internal/store"
)

// ErrNoSnapshots is returned when the company has no snapshot at or before
// the end of the period.
var ErrNoSnapshots = errors.New("drift: no snapshots")

// Severity thresholds on the BRI delta, in points.
var (
	criticalDrop = decimal.NewFromInt(-10)
	highDrop     = decimal.NewFromInt(-5)
)

// Store is the persistence the reporter needs.
type Store interface {
	SnapshotAtOrBefore(ctx context.Context, companyID string, t time.Time) (*model.ValuationSnapshot, error)
	EarliestSnapshotBetween(ctx context.Context, companyID string, start, end time.Time) (*model.ValuationSnapshot, error)
	CountSignals(ctx context.Context, companyID string, start, end time.Time) (int, error)
	CountTasksCompleted(ctx context.Context, companyID string, start, end time.Time) (int, error)
	CountTasksAdded(ctx context.Context, companyID string, start, end time.Time) (int, error)
	InsertSignal(ctx context.Context, s *model.Signal) error
	InsertDriftReport(ctx context.Context, r *model.DriftReport) error
	GetDriftReport(ctx context.Context, id string) (*model.DriftReport, error)
	MarkDriftReportViewed(ctx context.Context, id string, at time.Time) (*model.DriftReport, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Reporter generates drift reports.
type Reporter struct {
	store   Store
	alerter *monitoring.Alerter
	now     func() time.Time
}

// NewReporter creates a Reporter. alerter may be nil.
func NewReporter(st Store, alerter *monitoring.Alerter) *Reporter {
	return &Reporter{store: st, alerter: alerter, now: time.Now}
}

// Classify grades a BRI delta in points: below -10 is CRITICAL, below -5
// is HIGH, anything else INFO.
func Classify(briDelta decimal.Decimal) model.Severity {
	switch {
	case briDelta.LessThan(criticalDrop):
		return model.SeverityCritical
	case briDelta.LessThan(highDrop):
		return model.SeverityHigh
	}
	return model.SeverityInfo
}

// Generate builds and stores the drift report for [start, end]. The start
// snapshot is the latest at or before start, or else the earliest inside
// the period; the end snapshot is the latest at or before end. HIGH and
// CRITICAL reports persist a BRI_DRIFT signal in the same transaction and
// post it to the alert webhook when one is configured.
func (r *Reporter) Generate(ctx context.Context, companyID string, start, end time.Time) (*model.DriftReport, error) {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil, eris.Errorf("drift: period end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	first, err := r.startSnapshot(ctx, companyID, start, end)
	if err != nil {
		return nil, err
	}
	last, err := r.store.SnapshotAtOrBefore(ctx, companyID, end)
	if err != nil {
		return nil, eris.Wrapf(err, "drift: end snapshot %s", companyID)
	}

	report := &model.DriftReport{
		CompanyID:       companyID,
		PeriodStart:     start,
		PeriodEnd:       end,
		StartSnapshotID: first.ID,
		EndSnapshotID:   last.ID,
		BRIStart:        first.BRIPoints(),
		BRIEnd:          last.BRIPoints(),
		ValuationStart:  first.CurrentValue,
		ValuationEnd:    last.CurrentValue,
		CategoryDeltas:  categoryDeltas(first, last),
		CreatedAt:       r.now().UTC(),
	}
	report.BRIDelta = report.BRIEnd.Sub(report.BRIStart)
	report.ValuationDelta = report.ValuationEnd.Sub(report.ValuationStart)
	report.Severity = Classify(report.BRIDelta)

	if report.SignalsCount, err = r.store.CountSignals(ctx, companyID, start, end); err != nil {
		return nil, eris.Wrap(err, "drift: count signals")
	}
	if report.TasksCompletedCount, err = r.store.CountTasksCompleted(ctx, companyID, start, end); err != nil {
		return nil, eris.Wrap(err, "drift: count completed tasks")
	}
	if report.TasksAddedCount, err = r.store.CountTasksAdded(ctx, companyID, start, end); err != nil {
		return nil, eris.Wrap(err, "drift: count added tasks")
	}

	var sig *model.Signal
	if report.Severity.Alerting() {
		sig = &model.Signal{
			CompanyID: companyID,
			Kind:      model.SignalBRIDrift,
			Severity:  report.Severity,
			Title:     fmt.Sprintf("Readiness dropped %s points", estimate.FormatPoints(report.BRIDelta.Abs())),
			Detail: fmt.Sprintf("BRI moved from %s to %s between %s and %s; valuation changed by %s.",
				estimate.FormatPoints(report.BRIStart), estimate.FormatPoints(report.BRIEnd),
				start.Format("2006-01-02"), end.Format("2006-01-02"),
				estimate.FormatCurrency(report.ValuationDelta)),
			CreatedAt: report.CreatedAt,
		}
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		if sig != nil {
			if err := r.store.InsertSignal(ctx, sig); err != nil {
				return err
			}
			report.SignalID = sig.ID
		}
		return r.store.InsertDriftReport(ctx, report)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "drift: store report %s", companyID)
	}

	log := zap.L().With(zap.String("company_id", companyID), zap.String("report_id", report.ID))
	log.Info("drift: report generated",
		zap.String("severity", string(report.Severity)),
		zap.String("bri_delta", report.BRIDelta.String()),
	)
	if sig != nil && r.alerter.Enabled() {
		if err := r.alerter.Send(ctx, monitoring.SignalAlert(sig, report)); err != nil {
			log.Error("drift: failed to deliver signal alert", zap.Error(err))
		}
	}
	return report, nil
}

func (r *Reporter) startSnapshot(ctx context.Context, companyID string, start, end time.Time) (*model.ValuationSnapshot, error) {
	s, err := r.store.SnapshotAtOrBefore(ctx, companyID, start)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "drift: start snapshot %s", companyID)
	}
	s, err = r.store.EarliestSnapshotBetween(ctx, companyID, start, end)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNoSnapshots, "drift: company %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "drift: start snapshot %s", companyID)
	}
	return s, nil
}

// categoryDeltas compares categories assessed in both snapshots.
func categoryDeltas(first, last *model.ValuationSnapshot) []model.CategoryDelta {
	var out []model.CategoryDelta
	for _, c := range model.Categories {
		a, aok := first.CategoryScore(c)
		b, bok := last.CategoryScore(c)
		if !aok || !bok {
			continue
		}
		out = append(out, model.CategoryDelta{Category: c, Start: a, End: b, Delta: b.Sub(a)})
	}
	return out
}

// Get returns a stored report.
func (r *Reporter) Get(ctx context.Context, id string) (*model.DriftReport, error) {
	rep, err := r.store.GetDriftReport(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "drift: get report %s", id)
	}
	return rep, nil
}

// MarkViewed stamps viewed_at the first time a report is opened. Later
// calls return the report unchanged.
func (r *Reporter) MarkViewed(ctx context.Context, id string) (*model.DriftReport, error) {
	rep, err := r.store.MarkDriftReportViewed(ctx, id, r.now().UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "drift: mark viewed %s", id)
	}
	return rep, nil
}
