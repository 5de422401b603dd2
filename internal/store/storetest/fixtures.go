// Package storetest provides SQLite-backed fixtures for packages that test
// against a real store.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

// ProfessionalServices is a fully populated classification used across tests.
var ProfessionalServices = model.Classification{
	Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205020",
}

// NewSQLite opens a migrated SQLite store in a temp dir.
func NewSQLite(t testing.TB) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Day parses a YYYY-MM-DD date in UTC.
func Day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// SeedCompany inserts a company whose core factors score 60.
func SeedCompany(t testing.TB, st store.Store, id string, cls model.Classification) *model.Company {
	t.Helper()
	c := &model.Company{
		ID:             id,
		Name:           "Company " + id,
		Classification: cls,
		Core: model.CoreFactors{
			AnnualRevenue:    Dec("12000000"),
			RevenueModel:     model.RevenueModelTransactional,
			GrossMargin:      model.GrossMarginModerate,
			LaborIntensity:   model.LaborIntensityHigh,
			AssetIntensity:   model.AssetIntensityLight,
			OwnerInvolvement: model.OwnerInvolvementHigh,
		},
	}
	require.NoError(t, st.UpsertCompany(context.Background(), c))
	return c
}

// SeedQuestion inserts an active question with options <id>-low (0.25),
// <id>-mid (0.5) and <id>-high (1).
func SeedQuestion(t testing.TB, st store.Store, id string, cat model.Category, points string) *model.Question {
	t.Helper()
	q := &model.Question{
		ID: id, Category: cat, Prompt: "Question " + id,
		MaxImpactPoints: Dec(points), IsActive: true,
		Options: []model.Option{
			{ID: id + "-low", Label: "Low", ScoreValue: Dec("0.25"), DisplayOrder: 1},
			{ID: id + "-mid", Label: "Mid", ScoreValue: Dec("0.5"), DisplayOrder: 2},
			{ID: id + "-high", Label: "High", ScoreValue: Dec("1"), DisplayOrder: 3},
		},
	}
	require.NoError(t, st.CreateQuestion(context.Background(), q))
	return q
}

// Answer records optionID as the company's selected answer to questionID.
func Answer(t testing.TB, st store.Store, companyID, questionID, optionID string) *model.AssessmentResponse {
	t.Helper()
	r := &model.AssessmentResponse{CompanyID: companyID, QuestionID: questionID, SelectedOptionID: optionID}
	require.NoError(t, st.UpsertResponse(context.Background(), r))
	got, err := st.GetResponse(context.Background(), companyID, questionID)
	require.NoError(t, err)
	return got
}

// SeedEBITDA records a reported adjusted EBITDA for the period ending at end.
func SeedEBITDA(t testing.TB, st store.Store, companyID, amount string, end time.Time) {
	t.Helper()
	require.NoError(t, st.UpsertFinancialPeriod(context.Background(), &model.FinancialPeriod{
		CompanyID:      companyID,
		PeriodEnd:      end,
		AdjustedEBITDA: decimal.NewNullDecimal(Dec(amount)),
	}))
}

// SeedMultiple inserts an EBITDA multiple range for cls effective at eff.
func SeedMultiple(t testing.TB, st store.Store, cls model.Classification, low, high string, eff time.Time) *model.IndustryMultiple {
	t.Helper()
	m := &model.IndustryMultiple{
		Classification: cls,
		EffectiveDate:  eff,
		RevenueLow:     Dec("0.5"),
		RevenueHigh:    Dec("1.5"),
		EBITDALow:      Dec(low),
		EBITDAHigh:     Dec(high),
	}
	require.NoError(t, st.InsertMultiple(context.Background(), m))
	return m
}
