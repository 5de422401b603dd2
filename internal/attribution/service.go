package attribution

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/scoring"
)

// Store provides the snapshot and answers a breakdown is built from.
type Store interface {
	LatestSnapshot(ctx context.Context, companyID string) (*model.ValuationSnapshot, error)
	EffectiveResponses(ctx context.Context, companyID string) ([]model.EffectiveResponse, error)
}

// CategoryBreakdown is a category gap with its drivers.
type CategoryBreakdown struct {
	CategoryGap
	Drivers []DriverGap `json:"drivers"`
}

// Breakdown is the value gap of a company's latest snapshot split by
// category and driver.
type Breakdown struct {
	CompanyID  string              `json:"company_id"`
	SnapshotID string              `json:"snapshot_id"`
	ValueGap   decimal.Decimal     `json:"value_gap"`
	Attributed decimal.Decimal     `json:"attributed"`
	Categories []CategoryBreakdown `json:"categories"`
}

// Service builds value gap breakdowns.
type Service struct {
	store   Store
	weights scoring.Weights
}

// NewService creates a Service.
func NewService(st Store, w scoring.Weights) *Service {
	return &Service{store: st, weights: w}
}

// Breakdown attributes the latest snapshot's value gap. Categories come
// from the snapshot; drivers come from the current effective answers of
// active questions, so they may reflect answers newer than the snapshot.
func (s *Service) Breakdown(ctx context.Context, companyID string) (*Breakdown, error) {
	snap, err := s.store.LatestSnapshot(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "attribution: latest snapshot %s", companyID)
	}
	responses, err := s.store.EffectiveResponses(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "attribution: responses %s", companyID)
	}

	drivers := make(map[model.Category][]DriverInput)
	for _, r := range responses {
		if !r.QuestionActive {
			continue
		}
		drivers[r.Category] = append(drivers[r.Category], DriverInput{
			QuestionID:      r.QuestionID,
			MaxImpactPoints: r.MaxImpactPoints,
			EffectiveScore:  r.EffectiveScore,
		})
	}

	gaps := DistributeByCategory(CategoryInputsFromSnapshot(snap, s.weights), snap.ValueGap)
	out := &Breakdown{
		CompanyID:  companyID,
		SnapshotID: snap.ID,
		ValueGap:   snap.ValueGap,
		Attributed: SumDollars(gaps),
		Categories: make([]CategoryBreakdown, 0, len(gaps)),
	}
	for _, g := range gaps {
		out.Categories = append(out.Categories, CategoryBreakdown{
			CategoryGap: g,
			Drivers:     DistributeByDriver(drivers[g.Category], g.DollarImpact),
		})
	}
	return out, nil
}
