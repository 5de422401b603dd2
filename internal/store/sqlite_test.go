package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedCompany(t *testing.T, st Store, id string, cls model.Classification) *model.Company {
	t.Helper()
	c := &model.Company{
		ID:             id,
		Name:           "Company " + id,
		Classification: cls,
		Core: model.CoreFactors{
			AnnualRevenue:    dec("8000000"),
			RevenueModel:     model.RevenueModelRecurring,
			GrossMargin:      model.GrossMarginHigh,
			LaborIntensity:   model.LaborIntensityModerate,
			AssetIntensity:   model.AssetIntensityLight,
			OwnerInvolvement: model.OwnerInvolvementModerate,
		},
	}
	require.NoError(t, st.UpsertCompany(context.Background(), c))
	return c
}

func seedQuestion(t *testing.T, st Store, id string, cat model.Category, points string) *model.Question {
	t.Helper()
	q := &model.Question{
		ID: id, Category: cat, Prompt: "Question " + id,
		MaxImpactPoints: dec(points), IsActive: true,
		Options: []model.Option{
			{ID: id + "-low", Label: "Low", ScoreValue: dec("0.25"), DisplayOrder: 1},
			{ID: id + "-mid", Label: "Mid", ScoreValue: dec("0.5"), DisplayOrder: 2},
			{ID: id + "-high", Label: "High", ScoreValue: dec("1"), DisplayOrder: 3},
		},
	}
	require.NoError(t, st.CreateQuestion(context.Background(), q))
	return q
}

var professionalServices = model.Classification{
	Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205020",
}

// --- Companies & financials ---

func TestSQLite_Company_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)

	got, err := st.GetCompany(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, "Company co-1", got.Name)
	assert.Equal(t, professionalServices, got.Classification)
	assert.True(t, dec("8000000").Equal(got.Core.AnnualRevenue))
	assert.Equal(t, model.RevenueModelRecurring, got.Core.RevenueModel)
	assert.Equal(t, model.OwnerInvolvementModerate, got.Core.OwnerInvolvement)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = st.GetCompany(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListCompanyIDsByClassification(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-a", professionalServices)
	seedCompany(t, st, "co-b", model.Classification{Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205030"})
	seedCompany(t, st, "co-c", model.Classification{Industry: "10", SuperSector: "1010", Sector: "101010", SubSector: "10101015"})

	ids, err := st.ListCompanyIDsByClassification(ctx, model.LevelSubSector, "50205020")
	require.NoError(t, err)
	assert.Equal(t, []string{"co-a"}, ids)

	ids, err = st.ListCompanyIDsByClassification(ctx, model.LevelSector, "502050")
	require.NoError(t, err)
	assert.Equal(t, []string{"co-a", "co-b"}, ids)

	ids, err = st.ListCompanyIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = st.ListCompanyIDsByClassification(ctx, model.Level("region"), "x")
	assert.Error(t, err)
}

func TestSQLite_FinancialPeriods(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)

	require.NoError(t, st.UpsertFinancialPeriod(ctx, &model.FinancialPeriod{
		CompanyID: "co-1", PeriodEnd: day("2024-12-31"),
		AdjustedEBITDA: decimal.NewNullDecimal(dec("900000")),
	}))
	require.NoError(t, st.UpsertFinancialPeriod(ctx, &model.FinancialPeriod{
		CompanyID: "co-1", PeriodEnd: day("2025-12-31"),
		FreeCashFlow: decimal.NewNullDecimal(dec("700000")),
	}))

	periods, err := st.ListFinancialPeriods(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.True(t, periods[0].PeriodEnd.Equal(day("2025-12-31")))
	assert.False(t, periods[0].AdjustedEBITDA.Valid)
	assert.True(t, dec("700000").Equal(periods[0].FreeCashFlow.Decimal))
	assert.True(t, dec("900000").Equal(periods[1].AdjustedEBITDA.Decimal))
	assert.False(t, periods[1].FreeCashFlow.Valid)
}

// --- Assessment ---

func TestSQLite_EffectiveResponses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)
	seedQuestion(t, st, "q-fin", model.CategoryFinancial, "10")
	seedQuestion(t, st, "q-ops", model.CategoryOperational, "5")

	require.NoError(t, st.UpsertResponse(ctx, &model.AssessmentResponse{
		CompanyID: "co-1", QuestionID: "q-fin", SelectedOptionID: "q-fin-mid",
	}))
	require.NoError(t, st.UpsertResponse(ctx, &model.AssessmentResponse{
		CompanyID: "co-1", QuestionID: "q-ops", SelectedOptionID: "q-ops-low",
	}))

	rs, err := st.EffectiveResponses(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "q-fin", rs[0].QuestionID)
	assert.Equal(t, model.CategoryFinancial, rs[0].Category)
	assert.True(t, dec("10").Equal(rs[0].MaxImpactPoints))
	assert.True(t, rs[0].QuestionActive)
	assert.Equal(t, "q-fin-mid", rs[0].EffectiveOptionID)
	assert.True(t, dec("0.5").Equal(rs[0].EffectiveScore))
	assert.True(t, dec("0.25").Equal(rs[1].SelectedScore))
}

func TestSQLite_UpsertResponse_EnforcesEffectiveAtLeastSelected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)
	seedQuestion(t, st, "q-1", model.CategoryMarket, "8")
	seedQuestion(t, st, "q-2", model.CategoryMarket, "4")

	tests := []struct {
		name      string
		selected  string
		effective string
	}{
		{"effective below selected", "q-1-high", "q-1-low"},
		{"selected from another question", "q-2-mid", ""},
		{"effective from another question", "q-1-low", "q-2-high"},
		{"unknown option", "q-1-none", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.UpsertResponse(ctx, &model.AssessmentResponse{
				CompanyID: "co-1", QuestionID: "q-1",
				SelectedOptionID: tt.selected, EffectiveOptionID: tt.effective,
			})
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}

	_, err := st.GetResponse(ctx, "co-1", "q-1")
	assert.ErrorIs(t, err, ErrNotFound, "rejected answers are not written")

	require.NoError(t, st.UpsertResponse(ctx, &model.AssessmentResponse{
		CompanyID: "co-1", QuestionID: "q-1", SelectedOptionID: "q-1-low", EffectiveOptionID: "q-1-mid",
	}))
	resp, err := st.GetResponse(ctx, "co-1", "q-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1-mid", resp.EffectiveOptionID)
}

func TestSQLite_UpgradeEffectiveOption_CompareAndSet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)
	seedQuestion(t, st, "q-1", model.CategoryTransferability, "8")
	require.NoError(t, st.UpsertResponse(ctx, &model.AssessmentResponse{
		CompanyID: "co-1", QuestionID: "q-1", SelectedOptionID: "q-1-low",
	}))

	resp, err := st.GetResponse(ctx, "co-1", "q-1")
	require.NoError(t, err)

	ok, err := st.UpgradeEffectiveOption(ctx, resp.ID, "q-1-low", "q-1-high")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second writer with the stale previous value loses.
	ok, err = st.UpgradeEffectiveOption(ctx, resp.ID, "q-1-low", "q-1-mid")
	require.NoError(t, err)
	assert.False(t, ok)

	resp, err = st.GetResponse(ctx, "co-1", "q-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1-low", resp.SelectedOptionID)
	assert.Equal(t, "q-1-high", resp.EffectiveOptionID)

	opt, err := st.GetOption(ctx, "q-1-high")
	require.NoError(t, err)
	assert.Equal(t, "q-1", opt.QuestionID)
	assert.True(t, dec("1").Equal(opt.ScoreValue))
}

// --- Multiples ---

func TestSQLite_LatestMultiple(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old := &model.IndustryMultiple{
		Classification: professionalServices, EffectiveDate: day("2025-01-01"),
		RevenueLow: dec("0.8"), RevenueHigh: dec("1.4"), EBITDALow: dec("3.5"), EBITDAHigh: dec("5.5"),
	}
	current := &model.IndustryMultiple{
		Classification: professionalServices, EffectiveDate: day("2026-01-01"),
		RevenueLow: dec("0.9"), RevenueHigh: dec("1.6"), EBITDALow: dec("4.0"), EBITDAHigh: dec("6.0"),
	}
	future := &model.IndustryMultiple{
		Classification: professionalServices, EffectiveDate: day("2027-01-01"),
		RevenueLow: dec("1"), RevenueHigh: dec("2"), EBITDALow: dec("9"), EBITDAHigh: dec("10"),
	}
	sector := &model.IndustryMultiple{
		Classification: model.Classification{Industry: "50", SuperSector: "5020", Sector: "502050"},
		EffectiveDate:  day("2026-01-01"),
		RevenueLow:     dec("0.7"), RevenueHigh: dec("1.2"), EBITDALow: dec("5"), EBITDAHigh: dec("7"),
	}
	for _, m := range []*model.IndustryMultiple{old, current, future, sector} {
		require.NoError(t, st.InsertMultiple(ctx, m))
	}

	asOf := day("2026-06-01")
	got, err := st.LatestMultiple(ctx, model.LevelSubSector, "50205020", asOf)
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
	assert.True(t, dec("4").Equal(got.EBITDALow))

	// A sector lookup must not pick up sub-sector rows that share the sector code.
	got, err = st.LatestMultiple(ctx, model.LevelSector, "502050", asOf)
	require.NoError(t, err)
	assert.Equal(t, sector.ID, got.ID)

	_, err = st.LatestMultiple(ctx, model.LevelIndustry, "50", asOf)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := st.DeleteMultiple(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, professionalServices, deleted.Classification)

	got, err = st.LatestMultiple(ctx, model.LevelSubSector, "50205020", asOf)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	_, err = st.DeleteMultiple(ctx, current.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_InsertMultiple_Invalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.InsertMultiple(context.Background(), &model.IndustryMultiple{
		Classification: professionalServices, EffectiveDate: day("2026-01-01"),
		RevenueLow: dec("2"), RevenueHigh: dec("1"), EBITDALow: dec("4"), EBITDAHigh: dec("6"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revenue low")
}

func TestSQLite_ReplaceMultiples(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertMultiple(ctx, &model.IndustryMultiple{
		Classification: model.Classification{Industry: "99"}, EffectiveDate: day("2020-01-01"),
		RevenueLow: dec("1"), RevenueHigh: dec("1"), EBITDALow: dec("1"), EBITDAHigh: dec("1"),
	}))

	defaults, err := DefaultMultiples()
	require.NoError(t, err)
	require.NoError(t, st.ReplaceMultiples(ctx, defaults))

	all, err := st.ListMultiples(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defaults))
	for _, m := range all {
		assert.NotEqual(t, "99", m.Classification.Industry)
	}
}

// --- Snapshots ---

func testSnapshot(companyID string, at time.Time, bri string) *model.ValuationSnapshot {
	return &model.ValuationSnapshot{
		CompanyID: companyID, CreatedAt: at, Reason: "test",
		AdjustedEBITDA: dec("1000000"), IndustryMultipleID: "m-1",
		MultipleLow: dec("4"), MultipleHigh: dec("6"), CoreScore: dec("60"),
		CategoryScores: map[model.Category]decimal.NullDecimal{
			model.CategoryFinancial: decimal.NewNullDecimal(dec("0.5")),
			model.CategoryMarket:    decimal.NewNullDecimal(dec("0.75")),
		},
		BRIScore: dec(bri), Alpha: dec("1.4"), BaseMultiple: dec("4.8"),
		DiscountFraction: dec("0.1767490943"), FinalMultiple: dec("4.481852"),
		CurrentValue: dec("4481851.63"), PotentialValue: dec("4800000"), ValueGap: dec("318148.37"),
	}
}

func TestSQLite_Snapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)

	actor := "user-7"
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	first := testSnapshot("co-1", t0, "0.6")
	first.ActorUserID = &actor
	second := testSnapshot("co-1", t0.Add(48*time.Hour), "0.71")
	second.EBITDAEstimated = true
	require.NoError(t, st.InsertSnapshot(ctx, first))
	require.NoError(t, st.InsertSnapshot(ctx, second))

	latest, err := st.LatestSnapshot(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.EBITDAEstimated)
	assert.Nil(t, latest.ActorUserID)
	assert.True(t, latest.SameValuation(second))

	got, err := st.GetSnapshot(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ActorUserID)
	assert.Equal(t, "user-7", *got.ActorUserID)
	score, ok := got.CategoryScore(model.CategoryFinancial)
	assert.True(t, ok)
	assert.True(t, dec("0.5").Equal(score))
	_, ok = got.CategoryScore(model.CategoryPersonal)
	assert.False(t, ok, "unassessed category stays null")
	assert.True(t, dec("318148.37").Equal(got.ValueGap))

	before, err := st.SnapshotAtOrBefore(ctx, "co-1", t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, before.ID)

	_, err = st.SnapshotAtOrBefore(ctx, "co-1", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	earliest, err := st.EarliestSnapshotBetween(ctx, "co-1", t0.Add(time.Hour), t0.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.ID, earliest.ID)

	list, err := st.ListSnapshots(ctx, "co-1", SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	list, err = st.ListSnapshots(ctx, "co-1", SnapshotFilter{Until: t0.Add(time.Hour), Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = st.LatestSnapshot(ctx, "co-none")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Tasks ---

func TestSQLite_Tasks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	task := &model.Task{
		CompanyID: "co-1", Title: "Document SOPs", LinkedQuestionID: "q-1",
		UpgradesFromOptionID: "q-1-low", UpgradesToOptionID: "q-1-high",
		RawImpact: dec("12000"), TemplateKey: "sop-docs", CreatedAt: t0,
	}
	created, err := st.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &model.Task{CompanyID: "co-1", Title: "Document SOPs again", RawImpact: dec("1"), TemplateKey: "sop-docs"}
	created, err = st.CreateTask(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created, "template key already materialized")

	plain := &model.Task{CompanyID: "co-1", Title: "Ad hoc", RawImpact: dec("3000"), CreatedAt: t0.Add(time.Hour)}
	created, err = st.CreateTask(ctx, plain)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.Status)
	assert.True(t, got.HasUpgrade())
	assert.Nil(t, got.CompletedAt)

	done := t0.Add(24 * time.Hour)
	got, err = st.UpdateTaskStatus(ctx, task.ID, model.TaskCompleted, done)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	_, err = st.UpdateTaskStatus(ctx, "missing", model.TaskCompleted, done)
	assert.ErrorIs(t, err, ErrNotFound)

	open, err := st.ListOpenTasks(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, plain.ID, open[0].ID)
	assert.Empty(t, open[0].LinkedQuestionID)

	require.NoError(t, st.UpdateNormalizedValues(ctx, map[string]decimal.Decimal{plain.ID: dec("1")}))
	got, err = st.GetTask(ctx, plain.ID)
	require.NoError(t, err)
	assert.True(t, dec("1").Equal(got.NormalizedValue))
	assert.True(t, dec("3000").Equal(got.RawImpact))

	n, err := st.CountTasksCompleted(ctx, "co-1", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = st.CountTasksAdded(ctx, "co-1", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Signals & drift ---

func TestSQLite_DriftReport_MarkViewedOnce(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedCompany(t, st, "co-1", professionalServices)
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sig := &model.Signal{
		CompanyID: "co-1", Kind: model.SignalBRIDrift, Severity: model.SeverityHigh,
		Title: "BRI dropped", CreatedAt: t0.Add(time.Hour),
	}
	require.NoError(t, st.InsertSignal(ctx, sig))
	n, err := st.CountSignals(ctx, "co-1", t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report := &model.DriftReport{
		CompanyID: "co-1", PeriodStart: t0, PeriodEnd: t0.Add(30 * 24 * time.Hour),
		StartSnapshotID: "s-1", EndSnapshotID: "s-2",
		BRIStart: dec("71"), BRIEnd: dec("64"), BRIDelta: dec("-7"),
		ValuationStart: dec("4481851.63"), ValuationEnd: dec("4300000"), ValuationDelta: dec("-181851.63"),
		CategoryDeltas: []model.CategoryDelta{
			{Category: model.CategoryFinancial, Start: dec("0.5"), End: dec("0.4"), Delta: dec("-0.1")},
		},
		SignalsCount: 1, Severity: model.SeverityHigh, SignalID: sig.ID,
	}
	require.NoError(t, st.InsertDriftReport(ctx, report))

	got, err := st.GetDriftReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ViewedAt)
	assert.Equal(t, sig.ID, got.SignalID)
	require.Len(t, got.CategoryDeltas, 1)
	assert.True(t, dec("-0.1").Equal(got.CategoryDeltas[0].Delta))
	assert.True(t, dec("-7").Equal(got.BRIDelta))

	firstView := t0.Add(40 * 24 * time.Hour)
	got, err = st.MarkDriftReportViewed(ctx, report.ID, firstView)
	require.NoError(t, err)
	require.NotNil(t, got.ViewedAt)
	assert.True(t, got.ViewedAt.Equal(firstView))

	got, err = st.MarkDriftReportViewed(ctx, report.ID, firstView.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, got.ViewedAt.Equal(firstView), "viewed_at is set once")

	_, err = st.MarkDriftReportViewed(ctx, "missing", firstView)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Transactions ---

func TestSQLite_InTx_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(ctx context.Context) error {
		if err := st.UpsertCompany(ctx, &model.Company{ID: "co-tx", Name: "Tx Co"}); err != nil {
			return err
		}
		return st.InTx(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetCompany(ctx, "co-tx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_InTx_Commits(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(ctx context.Context) error {
		return st.UpsertCompany(ctx, &model.Company{ID: "co-tx", Name: "Tx Co"})
	})
	require.NoError(t, err)

	got, err := st.GetCompany(ctx, "co-tx")
	require.NoError(t, err)
	assert.Equal(t, "Tx Co", got.Name)
}

func TestInTransaction(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	assert.False(t, InTransaction(ctx))

	err := st.InTx(ctx, func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		return nil
	})
	require.NoError(t, err)
}
