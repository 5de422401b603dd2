package upgrade

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

const normalizedPlaces = 4

// Normalize scores each open task as rawImpact / max(rawImpact) over the
// open tasks, rounded to four places. Completed and cancelled tasks are
// skipped. When no open task has a positive impact every value is zero.
func Normalize(tasks []model.Task) map[string]decimal.Decimal {
	maxImpact := decimal.Zero
	for _, t := range tasks {
		if t.Status.Open() && t.RawImpact.GreaterThan(maxImpact) {
			maxImpact = t.RawImpact
		}
	}

	out := make(map[string]decimal.Decimal, len(tasks))
	for _, t := range tasks {
		if !t.Status.Open() {
			continue
		}
		if !maxImpact.IsPositive() || !t.RawImpact.IsPositive() {
			out[t.ID] = decimal.Zero
			continue
		}
		out[t.ID] = t.RawImpact.Div(maxImpact).Round(normalizedPlaces)
	}
	return out
}
