package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

func (s *sqlStore) InsertSignal(ctx context.Context, sig *model.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO signals (id, company_id, kind, severity, title, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.CompanyID, string(sig.Kind), string(sig.Severity), sig.Title, sig.Detail, sig.CreatedAt.UTC(),
	)
	return s.wrap(err, "insert signal")
}

func (s *sqlStore) CountSignals(ctx context.Context, companyID string, start, end time.Time) (int, error) {
	return s.count(ctx, "count signals",
		`SELECT COUNT(*) FROM signals WHERE company_id = ? AND created_at >= ? AND created_at <= ?`,
		companyID, start.UTC(), end.UTC())
}

const driftColumns = `id, company_id, period_start, period_end, start_snapshot_id, end_snapshot_id,
	CAST(bri_start AS TEXT), CAST(bri_end AS TEXT), CAST(bri_delta AS TEXT),
	CAST(valuation_start AS TEXT), CAST(valuation_end AS TEXT), CAST(valuation_delta AS TEXT),
	CAST(category_deltas AS TEXT), signals_count, tasks_completed_count, tasks_added_count,
	severity, signal_id, created_at, viewed_at`

func (s *sqlStore) InsertDriftReport(ctx context.Context, r *model.DriftReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	deltas, err := json.Marshal(r.CategoryDeltas)
	if err != nil {
		return eris.Wrap(err, s.name+": marshal category deltas")
	}
	_, err = s.q.exec(ctx,
		`INSERT INTO drift_reports (id, company_id, period_start, period_end,
			start_snapshot_id, end_snapshot_id, bri_start, bri_end, bri_delta,
			valuation_start, valuation_end, valuation_delta, category_deltas,
			signals_count, tasks_completed_count, tasks_added_count,
			severity, signal_id, created_at, viewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.PeriodStart.UTC(), r.PeriodEnd.UTC(),
		r.StartSnapshotID, r.EndSnapshotID,
		decArg(r.BRIStart), decArg(r.BRIEnd), decArg(r.BRIDelta),
		decArg(r.ValuationStart), decArg(r.ValuationEnd), decArg(r.ValuationDelta),
		string(deltas), r.SignalsCount, r.TasksCompletedCount, r.TasksAddedCount,
		string(r.Severity), nullStrArg(r.SignalID), r.CreatedAt.UTC(), r.ViewedAt,
	)
	return s.wrap(err, "insert drift report "+r.ID)
}

func (s *sqlStore) GetDriftReport(ctx context.Context, id string) (*model.DriftReport, error) {
	var (
		r                          model.DriftReport
		briStart, briEnd, briDelta string
		valStart, valEnd, valDelta string
		deltas, severity           string
		signalID                   *string
	)
	err := s.q.queryRow(ctx, `SELECT `+driftColumns+` FROM drift_reports WHERE id = ?`, id).Scan(
		&r.ID, &r.CompanyID, &r.PeriodStart, &r.PeriodEnd, &r.StartSnapshotID, &r.EndSnapshotID,
		&briStart, &briEnd, &briDelta, &valStart, &valEnd, &valDelta,
		&deltas, &r.SignalsCount, &r.TasksCompletedCount, &r.TasksAddedCount,
		&severity, &signalID, &r.CreatedAt, &r.ViewedAt,
	)
	if err != nil {
		return nil, s.wrap(err, "get drift report "+id)
	}
	if err := decs(&r.BRIStart, briStart, &r.BRIEnd, briEnd, &r.BRIDelta, briDelta,
		&r.ValuationStart, valStart, &r.ValuationEnd, valEnd, &r.ValuationDelta, valDelta); err != nil {
		return nil, s.wrap(err, "get drift report "+id)
	}
	if err := json.Unmarshal([]byte(deltas), &r.CategoryDeltas); err != nil {
		return nil, s.wrap(err, "unmarshal category deltas")
	}
	r.Severity = model.Severity(severity)
	r.SignalID = derefStr(signalID)
	return &r, nil
}

// MarkDriftReportViewed stamps viewed_at the first time a report is opened.
// Later calls leave the original timestamp.
func (s *sqlStore) MarkDriftReportViewed(ctx context.Context, id string, at time.Time) (*model.DriftReport, error) {
	if _, err := s.q.exec(ctx,
		`UPDATE drift_reports SET viewed_at = ? WHERE id = ? AND viewed_at IS NULL`, at.UTC(), id,
	); err != nil {
		return nil, s.wrap(err, "mark drift report viewed "+id)
	}
	return s.GetDriftReport(ctx, id)
}
