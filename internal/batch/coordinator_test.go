package batch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/monitoring"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/internal/scoring"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/store/storetest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeRecalculator records calls, tracks peak concurrency and fails the
// companies listed in fail.
type fakeRecalculator struct {
	mu       sync.Mutex
	calls    map[string]string
	fail     map[string]model.FailureCause
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	onCall   func()
}

func newFakeRecalculator() *fakeRecalculator {
	return &fakeRecalculator{calls: map[string]string{}, fail: map[string]model.FailureCause{}}
}

func (f *fakeRecalculator) Recalc(_ context.Context, companyID, reason string, _ *string, _ ...recalc.Option) recalc.Result {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.onCall != nil {
		f.onCall()
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.calls[companyID] = reason
	cause, failing := f.fail[companyID]
	f.mu.Unlock()

	if failing {
		res := recalc.Result{Cause: cause}
		if cause == model.CauseUnexpected {
			res.Err = errors.New("boom")
		}
		return res
	}
	return recalc.Result{Success: true}
}

func seedCompanies(t *testing.T, st store.Store) {
	t.Helper()
	storetest.SeedCompany(t, st, "co-a", storetest.ProfessionalServices)
	storetest.SeedCompany(t, st, "co-b", model.Classification{Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205030"})
	storetest.SeedCompany(t, st, "co-c", model.Classification{Industry: "50", SuperSector: "5010", Sector: "501010", SubSector: "50101010"})
	storetest.SeedCompany(t, st, "co-d", model.Classification{Industry: "10", SuperSector: "1010", Sector: "101010", SubSector: "10101015"})
}

func TestRecalcForMultipleChange_MatchesMostSpecificLevel(t *testing.T) {
	st := storetest.NewSQLite(t)
	seedCompanies(t, st)
	rc := newFakeRecalculator()
	c := New(st, rc, nil, config.BatchConfig{MaxConcurrentCompanies: 2}, nil)
	ctx := context.Background()

	res, err := c.RecalcForMultipleChange(ctx, MultipleChange{Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205020"})
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 1, Successful: 1}, res)
	assert.Equal(t, "Industry multiple updated: 50205020 (EBITDA)", rc.calls["co-a"])

	rc = newFakeRecalculator()
	c = New(st, rc, nil, config.BatchConfig{}, nil)
	res, err = c.RecalcForMultipleChange(ctx, MultipleChange{Industry: "50", MultipleType: model.MultipleRevenue})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, int64(3), res.Successful)
	assert.NotContains(t, rc.calls, "co-d")
	assert.Equal(t, "Industry multiple updated: 50 (REVENUE)", rc.calls["co-b"])

	_, err = c.RecalcForMultipleChange(ctx, MultipleChange{})
	assert.Error(t, err)
}

func TestRecalcForMultipleChange_FailuresDoNotAbortSiblings(t *testing.T) {
	st := storetest.NewSQLite(t)
	seedCompanies(t, st)
	rc := newFakeRecalculator()
	rc.fail["co-a"] = model.CauseUnexpected
	rc.fail["co-b"] = model.CauseNoFinancials
	c := New(st, rc, nil, config.BatchConfig{MaxConcurrentCompanies: 3}, nil)

	res, err := c.RecalcForMultipleChange(context.Background(), MultipleChange{Industry: "50"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, int64(1), res.Successful)
	assert.Equal(t, int64(2), res.Failed)
	require.Len(t, res.Failures, 2)

	causes := map[string]Failure{}
	for _, f := range res.Failures {
		causes[f.CompanyID] = f
	}
	assert.Equal(t, model.CauseUnexpected, causes["co-a"].Cause)
	assert.Equal(t, "boom", causes["co-a"].Error)
	assert.Equal(t, model.CauseNoFinancials, causes["co-b"].Cause)
	assert.Empty(t, causes["co-b"].Error)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	rc := newFakeRecalculator()
	rc.delay = 5 * time.Millisecond
	c := New(nil, rc, nil, config.BatchConfig{MaxConcurrentCompanies: 3}, nil)

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	res, err := c.run(context.Background(), "test", ids, "reason", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Successful)
	assert.LessOrEqual(t, rc.peak.Load(), int32(3))
	assert.Greater(t, rc.peak.Load(), int32(1))
}

func TestRun_CancelStopsScheduling(t *testing.T) {
	rc := newFakeRecalculator()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	rc.onCall = func() {
		if calls.Add(1) == 2 {
			cancel()
		}
	}
	c := New(nil, rc, nil, config.BatchConfig{MaxConcurrentCompanies: 1}, nil)

	res, err := c.run(ctx, "test", []string{"a", "b", "c", "d", "e"}, "reason", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, int64(2), res.Successful, "in-flight work completes")
	assert.Equal(t, int64(3), res.NotStarted)
}

func TestRun_RateLimited(t *testing.T) {
	rc := newFakeRecalculator()
	c := New(nil, rc, nil, config.BatchConfig{MaxConcurrentCompanies: 5, RatePerSecond: 50}, nil)

	start := time.Now()
	res, err := c.run(context.Background(), "test", []string{"a", "b", "c", "d", "e"}, "reason", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Successful)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestRun_AlertsOnFailureRate(t *testing.T) {
	var received atomic.Int32
	var alert monitoring.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&alert)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerter := monitoring.NewAlerter(config.MonitoringConfig{
		WebhookURL:                srv.URL,
		BatchFailureRateThreshold: 0.25,
	}, resilience.RetryConfig{MaxAttempts: 1})

	rc := newFakeRecalculator()
	rc.fail["a"] = model.CauseUnexpected
	rc.fail["b"] = model.CauseNoMultiple
	c := New(nil, rc, alerter, config.BatchConfig{}, nil)

	_, err := c.run(context.Background(), "industry:50", []string{"a", "b", "c", "d"}, "reason", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, monitoring.AlertBatchFailures, alert.Type)
	assert.Contains(t, alert.Message, "failed for 2 of 4 companies")
}

func TestRestoreDefaults(t *testing.T) {
	st := storetest.NewSQLite(t)
	ctx := context.Background()
	storetest.SeedCompany(t, st, "co-a", storetest.ProfessionalServices)
	storetest.SeedEBITDA(t, st, "co-a", "1000000", storetest.Day("2025-12-31"))
	storetest.SeedQuestion(t, st, "fin", model.CategoryFinancial, "10")
	storetest.Answer(t, st, "co-a", "fin", "fin-mid")
	custom := storetest.SeedMultiple(t, st, storetest.ProfessionalServices, "9", "10", storetest.Day("2025-01-01"))

	rc, err := recalc.New(st, scoring.NewCalculator(scoring.DefaultWeights()), config.ValuationConfig{Alpha: 1.4}, resilience.RetryConfig{MaxAttempts: 1})
	require.NoError(t, err)
	c := New(st, rc, nil, config.BatchConfig{}, store.DefaultMultiples)

	res, err := c.RestoreDefaults(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 1, Successful: 1}, res)

	ms, err := st.ListMultiples(ctx)
	require.NoError(t, err)
	for _, m := range ms {
		assert.NotEqual(t, custom.ID, m.ID, "custom multiples are replaced")
	}

	snap, err := st.LatestSnapshot(ctx, "co-a")
	require.NoError(t, err)
	assert.Equal(t, RestoreDefaultsReason, snap.Reason)
	assert.True(t, storetest.Dec("4").Equal(snap.MultipleLow), "default sub-sector range applies")
}

func TestOnMultipleCreatedAndDeleted(t *testing.T) {
	st := storetest.NewSQLite(t)
	seedCompanies(t, st)
	rc := newFakeRecalculator()
	c := New(st, rc, nil, config.BatchConfig{}, nil)
	ctx := context.Background()

	m := &model.IndustryMultiple{
		Classification: model.Classification{Industry: "50", SuperSector: "5020", Sector: "502050"},
		EffectiveDate:  storetest.Day("2026-01-01"),
		RevenueLow:     storetest.Dec("1"), RevenueHigh: storetest.Dec("2"),
		EBITDALow: storetest.Dec("4"), EBITDAHigh: storetest.Dec("6"),
	}
	res, err := c.OnMultipleCreated(ctx, m, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Successful)
	assert.NotEmpty(t, m.ID)

	rc2 := newFakeRecalculator()
	c = New(st, rc2, nil, config.BatchConfig{}, nil)
	res, err = c.OnMultipleDeleted(ctx, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Successful)
	assert.Contains(t, rc2.calls, "co-a")
	assert.Contains(t, rc2.calls, "co-b")

	_, err = c.OnMultipleDeleted(ctx, m.ID, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	bad := &model.IndustryMultiple{Classification: model.Classification{Industry: "50"}, EBITDALow: storetest.Dec("8"), EBITDAHigh: storetest.Dec("6")}
	_, err = c.OnMultipleCreated(ctx, bad, nil)
	assert.Error(t, err)
}

func TestImportMultiples_RecalcsOncePerKey(t *testing.T) {
	st := storetest.NewSQLite(t)
	seedCompanies(t, st)
	ctx := context.Background()
	existing := storetest.SeedMultiple(t, st, storetest.ProfessionalServices, "3", "6", storetest.Day("2025-01-01"))

	multiple := func(cls model.Classification, eff string) model.IndustryMultiple {
		return model.IndustryMultiple{
			Classification: cls,
			EffectiveDate:  storetest.Day(eff),
			RevenueLow:     storetest.Dec("1"), RevenueHigh: storetest.Dec("2"),
			EBITDALow: storetest.Dec("4"), EBITDAHigh: storetest.Dec("7"),
		}
	}
	updated := *existing
	updated.EBITDAHigh = storetest.Dec("7")
	ms := []model.IndustryMultiple{
		updated,
		multiple(storetest.ProfessionalServices, "2026-01-01"),
		multiple(model.Classification{Industry: "50", SuperSector: "5020", Sector: "502050"}, "2026-01-01"),
		multiple(model.Classification{Industry: "10"}, "2026-01-01"),
	}

	rc := newFakeRecalculator()
	c := New(st, rc, nil, config.BatchConfig{}, nil)
	res, err := c.ImportMultiples(ctx, ms, nil)
	require.NoError(t, err)
	// sub-sector 50205020 (co-a), sector 502050 (co-a, co-b), industry 10 (co-d)
	assert.Equal(t, Result{Total: 4, Successful: 4}, res)
	assert.Equal(t, "Industry multiple updated: 10 (EBITDA)", rc.calls["co-d"])
	assert.NotContains(t, rc.calls, "co-c")

	stored, err := st.ListMultiples(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 4, "the seeded row is updated in place")
	for _, m := range stored {
		if m.ID == existing.ID {
			assert.True(t, storetest.Dec("7").Equal(m.EBITDAHigh))
		}
	}

	rc = newFakeRecalculator()
	c = New(st, rc, nil, config.BatchConfig{}, nil)
	bad := multiple(model.Classification{Industry: "20"}, "2026-01-01")
	bad.EBITDALow = storetest.Dec("9")
	_, err = c.ImportMultiples(ctx, []model.IndustryMultiple{multiple(model.Classification{Industry: "30"}, "2026-01-01"), bad}, nil)
	require.Error(t, err)
	assert.Empty(t, rc.calls)

	stored, err = st.ListMultiples(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 4, "an invalid row rejects the whole import")
}
