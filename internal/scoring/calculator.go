package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

// CategoryScore is a category's points-weighted answer quality. A category
// with no answered active questions is not assessed; Score is then zero and
// must not be read as a real score.
type CategoryScore struct {
	Score    decimal.Decimal `json:"score"`
	Assessed bool            `json:"assessed"`
	Answered int             `json:"answered"`
}

// Scores is the output of Calculator.Compute.
type Scores struct {
	CoreScore  decimal.Decimal                  `json:"core_score"` // 0-100
	Categories map[model.Category]CategoryScore `json:"categories"` // 0-1 each
	BRI        decimal.Decimal                  `json:"bri"`        // 0-1
	// BRIAssessed is false when no category has an answered question.
	BRIAssessed bool `json:"bri_assessed"`
}

// NullCategoryScores converts category scores to the nullable form stored on
// a snapshot.
func (s Scores) NullCategoryScores() map[model.Category]decimal.NullDecimal {
	out := make(map[model.Category]decimal.NullDecimal, len(model.Categories))
	for _, c := range model.Categories {
		cs := s.Categories[c]
		out[c] = decimal.NullDecimal{Decimal: cs.Score, Valid: cs.Assessed}
	}
	return out
}

// Calculator computes scores with a fixed weight configuration.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a Calculator.
func NewCalculator(w Weights) *Calculator {
	return &Calculator{weights: w}
}

// Weights returns the calculator's weight configuration.
func (c *Calculator) Weights() Weights {
	return c.weights
}

// Compute scores a company from its structural factors and effective
// responses. It is deterministic and side-effect free.
func (c *Calculator) Compute(company *model.Company, responses []model.EffectiveResponse) Scores {
	categories := CategoryScores(responses)
	bri, ok := c.BRI(categories)
	return Scores{
		CoreScore:   c.weights.CoreScore(company.Core),
		Categories:  categories,
		BRI:         bri,
		BRIAssessed: ok,
	}
}

// CategoryScores computes sum(effective score * max points) / sum(max points)
// per category over answered, active questions, rounded to four places.
// Each question counts once; later duplicates are ignored.
func CategoryScores(responses []model.EffectiveResponse) map[model.Category]CategoryScore {
	type acc struct {
		points   decimal.Decimal
		weighted decimal.Decimal
		answered int
	}
	sums := make(map[model.Category]*acc, len(model.Categories))
	for _, c := range model.Categories {
		sums[c] = &acc{}
	}

	seen := make(map[string]bool, len(responses))
	for _, r := range responses {
		if !r.QuestionActive || seen[r.QuestionID] || !r.MaxImpactPoints.IsPositive() {
			continue
		}
		a, ok := sums[r.Category]
		if !ok {
			continue
		}
		seen[r.QuestionID] = true
		a.points = a.points.Add(r.MaxImpactPoints)
		a.weighted = a.weighted.Add(clampUnit(r.EffectiveScore).Mul(r.MaxImpactPoints))
		a.answered++
	}

	out := make(map[model.Category]CategoryScore, len(model.Categories))
	for _, c := range model.Categories {
		a := sums[c]
		if a.answered == 0 {
			out[c] = CategoryScore{}
			continue
		}
		out[c] = CategoryScore{
			Score:    a.weighted.Div(a.points).Round(4),
			Assessed: true,
			Answered: a.answered,
		}
	}
	return out
}

// BRI returns sum(score * weight) over assessed categories, renormalized by
// the assessed weight so unassessed categories neither help nor hurt.
// ok is false when no category is assessed.
func (c *Calculator) BRI(categories map[model.Category]CategoryScore) (decimal.Decimal, bool) {
	total := decimal.Zero
	weight := decimal.Zero
	for _, cat := range model.Categories {
		cs, found := categories[cat]
		if !found || !cs.Assessed {
			continue
		}
		w := c.weights.Category(cat)
		total = total.Add(cs.Score.Mul(w))
		weight = weight.Add(w)
	}
	if !weight.IsPositive() {
		return decimal.Zero, false
	}
	return total.Div(weight).Round(4), true
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}
