package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification_MostSpecific(t *testing.T) {
	tests := []struct {
		name      string
		c         Classification
		wantLevel Level
		wantValue string
		wantOK    bool
	}{
		{"sub-sector wins", Classification{Industry: "50", SuperSector: "5020", Sector: "502050", SubSector: "50205020"}, LevelSubSector, "50205020", true},
		{"sector", Classification{Industry: "50", Sector: "502050"}, LevelSector, "502050", true},
		{"industry only", Classification{Industry: "50"}, LevelIndustry, "50", true},
		{"empty", Classification{}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, v, ok := tt.c.MostSpecific()
			assert.Equal(t, tt.wantLevel, l)
			assert.Equal(t, tt.wantValue, v)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestIndustryMultiple_Validate(t *testing.T) {
	d := decimal.RequireFromString
	valid := IndustryMultiple{
		Classification: Classification{Sector: "502050"},
		RevenueLow:     d("0.5"), RevenueHigh: d("1.5"),
		EBITDALow: d("3"), EBITDAHigh: d("6"),
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, LevelSector, valid.Level())

	equal := valid
	equal.EBITDALow, equal.EBITDAHigh = d("4"), d("4")
	assert.NoError(t, equal.Validate(), "low == high is allowed")

	noKey := valid
	noKey.Classification = Classification{}
	assert.ErrorContains(t, noKey.Validate(), "classification key is empty")

	negative := valid
	negative.EBITDALow = d("-1")
	assert.ErrorContains(t, negative.Validate(), "non-negative")

	inverted := valid
	inverted.RevenueLow = d("2")
	assert.ErrorContains(t, inverted.Validate(), "revenue low")
}

func TestEnums(t *testing.T) {
	assert.True(t, CauseNoMultiple.Expected())
	assert.True(t, CauseNoAssessment.Expected())
	assert.False(t, CauseUnexpected.Expected())

	assert.False(t, SeverityInfo.Alerting())
	assert.True(t, SeverityHigh.Alerting())
	assert.True(t, SeverityCritical.Alerting())

	assert.True(t, TaskDeferred.Open())
	assert.False(t, TaskCancelled.Open())
	assert.False(t, TaskStatus("DONE").Valid())

	assert.False(t, CategoryPersonal.Monetized())
	assert.True(t, CategoryFinancial.Monetized())
	assert.False(t, Category("SOCIAL").Valid())
}

func TestValuationSnapshot_CategoryScoreAndSameValuation(t *testing.T) {
	a := &ValuationSnapshot{
		BRIScore: decimal.RequireFromString("0.71"),
		CategoryScores: map[Category]decimal.NullDecimal{
			CategoryFinancial: decimal.NewNullDecimal(decimal.RequireFromString("0.71")),
		},
	}
	v, ok := a.CategoryScore(CategoryFinancial)
	require.True(t, ok)
	assert.Equal(t, "0.71", v.String())
	_, ok = a.CategoryScore(CategoryMarket)
	assert.False(t, ok, "unassessed category")
	assert.Equal(t, "71", a.BRIPoints().String())

	b := &ValuationSnapshot{
		BRIScore: decimal.RequireFromString("0.710"),
		CategoryScores: map[Category]decimal.NullDecimal{
			CategoryFinancial: decimal.NewNullDecimal(decimal.RequireFromString("0.71")),
		},
	}
	assert.True(t, a.SameValuation(b))

	b.CategoryScores[CategoryMarket] = decimal.NewNullDecimal(decimal.Zero)
	assert.False(t, a.SameValuation(b), "zero is distinct from not assessed")
}

func TestEventFromTask(t *testing.T) {
	task := &Task{
		ID: "t-1", CompanyID: "co-1", Title: "Document SOPs", Status: TaskCompleted,
		LinkedQuestionID: "ops-a", UpgradesToOptionID: "ops-a-high",
	}
	assert.True(t, task.HasUpgrade())
	ev := EventFromTask(task)
	assert.Equal(t, "t-1", ev.TaskID)
	assert.Equal(t, TaskCompleted, ev.Status)
	assert.Equal(t, "ops-a-high", ev.UpgradesToOptionID)
}
