package drift

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/monitoring"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/store/storetest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var dec = storetest.Dec

func at(day string, hour int) time.Time {
	return storetest.Day(day).Add(time.Duration(hour) * time.Hour)
}

func insertSnapshot(t *testing.T, st store.Store, companyID string, created time.Time, bri, value, financial string) *model.ValuationSnapshot {
	t.Helper()
	s := &model.ValuationSnapshot{
		CompanyID: companyID, CreatedAt: created, Reason: "test",
		AdjustedEBITDA: dec("1000000"), IndustryMultipleID: "m-1",
		MultipleLow: dec("3"), MultipleHigh: dec("6"), CoreScore: dec("60"),
		CategoryScores: map[model.Category]decimal.NullDecimal{
			model.CategoryFinancial: decimal.NewNullDecimal(dec(financial)),
		},
		BRIScore: dec(bri), Alpha: dec("1.4"), BaseMultiple: dec("4.8"),
		DiscountFraction: dec("0.2"), FinalMultiple: dec("4.5"),
		CurrentValue: dec(value), PotentialValue: dec("4800000"), ValueGap: dec("4800000").Sub(dec(value)),
	}
	require.NoError(t, st.InsertSnapshot(context.Background(), s))
	return s
}

func newTestReporter(t *testing.T, alerter *monitoring.Alerter) (*Reporter, *store.SQLiteStore) {
	t.Helper()
	st := storetest.NewSQLite(t)
	storetest.SeedCompany(t, st, "co-1", storetest.ProfessionalServices)
	r := NewReporter(st, alerter)
	r.now = func() time.Time { return at("2026-07-01", 0) }
	return r, st
}

func TestClassify(t *testing.T) {
	tests := []struct {
		delta string
		want  model.Severity
	}{
		{"-12", model.SeverityCritical},
		{"-10.01", model.SeverityCritical},
		{"-10", model.SeverityHigh},
		{"-6", model.SeverityHigh},
		{"-5", model.SeverityInfo},
		{"0", model.SeverityInfo},
		{"8", model.SeverityInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(dec(tt.delta)), tt.delta)
	}
}

func TestGenerate_CriticalDropRaisesSignal(t *testing.T) {
	var alerts atomic.Int32
	var got monitoring.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerts.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()
	alerter := monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL}, resilience.RetryConfig{MaxAttempts: 1})

	r, st := newTestReporter(t, alerter)
	ctx := context.Background()
	first := insertSnapshot(t, st, "co-1", at("2026-05-20", 0), "0.71", "4481851.63", "0.8")
	insertSnapshot(t, st, "co-1", at("2026-06-10", 0), "0.65", "4300000", "0.7")
	last := insertSnapshot(t, st, "co-1", at("2026-06-25", 0), "0.59", "4100000", "0.5")
	// After the period; must not be picked.
	insertSnapshot(t, st, "co-1", at("2026-07-05", 0), "0.9", "4700000", "1")

	ok, err := st.CreateTask(ctx, &model.Task{CompanyID: "co-1", Title: "New", CreatedAt: at("2026-06-05", 0)})
	require.NoError(t, err)
	require.True(t, ok)

	report, err := r.Generate(ctx, "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	require.NoError(t, err)
	assert.Equal(t, first.ID, report.StartSnapshotID, "latest snapshot at or before the start")
	assert.Equal(t, last.ID, report.EndSnapshotID)
	assert.True(t, dec("71").Equal(report.BRIStart), report.BRIStart.String())
	assert.True(t, dec("59").Equal(report.BRIEnd))
	assert.True(t, dec("-12").Equal(report.BRIDelta))
	assert.True(t, dec("-381851.63").Equal(report.ValuationDelta))
	assert.Equal(t, model.SeverityCritical, report.Severity)
	assert.Equal(t, 1, report.TasksAddedCount)
	assert.Equal(t, 0, report.SignalsCount, "the report's own signal is not counted")
	require.Len(t, report.CategoryDeltas, 1)
	assert.True(t, dec("-0.3").Equal(report.CategoryDeltas[0].Delta))
	require.NotEmpty(t, report.SignalID)

	n, err := st.CountSignals(ctx, "co-1", at("2026-06-01", 0), at("2026-07-02", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := r.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.SignalID, stored.SignalID)
	assert.Nil(t, stored.ViewedAt)

	assert.Equal(t, int32(1), alerts.Load())
	assert.Equal(t, monitoring.AlertBRIDrift, got.Type)
	assert.Equal(t, "CRITICAL", got.Severity)
	assert.Equal(t, "Readiness dropped 12.0 points", got.Message)
}

func TestGenerate_StartFallsBackToEarliestInPeriod(t *testing.T) {
	r, st := newTestReporter(t, nil)
	first := insertSnapshot(t, st, "co-1", at("2026-06-03", 0), "0.70", "4000000", "0.6")
	insertSnapshot(t, st, "co-1", at("2026-06-20", 0), "0.64", "3900000", "0.6")

	report, err := r.Generate(context.Background(), "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	require.NoError(t, err)
	assert.Equal(t, first.ID, report.StartSnapshotID)
	assert.True(t, dec("-6").Equal(report.BRIDelta))
	assert.Equal(t, model.SeverityHigh, report.Severity)
	assert.NotEmpty(t, report.SignalID)
}

func TestGenerate_InfoHasNoSignal(t *testing.T) {
	r, st := newTestReporter(t, nil)
	insertSnapshot(t, st, "co-1", at("2026-05-01", 0), "0.60", "4000000", "0.6")
	insertSnapshot(t, st, "co-1", at("2026-06-15", 0), "0.66", "4200000", "0.7")

	report, err := r.Generate(context.Background(), "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	require.NoError(t, err)
	assert.Equal(t, model.SeverityInfo, report.Severity)
	assert.Empty(t, report.SignalID)
	assert.True(t, dec("200000").Equal(report.ValuationDelta))
}

func TestGenerate_SingleSnapshotIsZeroDrift(t *testing.T) {
	r, st := newTestReporter(t, nil)
	s := insertSnapshot(t, st, "co-1", at("2026-05-01", 0), "0.60", "4000000", "0.6")

	report, err := r.Generate(context.Background(), "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	require.NoError(t, err)
	assert.Equal(t, s.ID, report.StartSnapshotID)
	assert.Equal(t, s.ID, report.EndSnapshotID)
	assert.True(t, report.BRIDelta.IsZero())
	assert.Equal(t, model.SeverityInfo, report.Severity)
}

func TestGenerate_NoSnapshots(t *testing.T) {
	r, st := newTestReporter(t, nil)
	insertSnapshot(t, st, "co-1", at("2026-07-10", 0), "0.60", "4000000", "0.6")

	_, err := r.Generate(context.Background(), "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	assert.ErrorIs(t, err, ErrNoSnapshots)

	_, err = r.Generate(context.Background(), "co-1", at("2026-06-30", 0), at("2026-06-01", 0))
	assert.ErrorContains(t, err, "before start")
}

func TestMarkViewed_SetOnce(t *testing.T) {
	r, st := newTestReporter(t, nil)
	insertSnapshot(t, st, "co-1", at("2026-05-01", 0), "0.60", "4000000", "0.6")
	report, err := r.Generate(context.Background(), "co-1", at("2026-06-01", 0), at("2026-06-30", 0))
	require.NoError(t, err)

	r.now = func() time.Time { return at("2026-07-02", 9) }
	viewed, err := r.MarkViewed(context.Background(), report.ID)
	require.NoError(t, err)
	require.NotNil(t, viewed.ViewedAt)
	assert.True(t, at("2026-07-02", 9).Equal(*viewed.ViewedAt))

	r.now = func() time.Time { return at("2026-08-01", 0) }
	again, err := r.MarkViewed(context.Background(), report.ID)
	require.NoError(t, err)
	assert.True(t, at("2026-07-02", 9).Equal(*again.ViewedAt), "viewed_at is never reset")

	_, err = r.MarkViewed(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
