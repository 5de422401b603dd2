package export

import (
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Sheet names.
const (
	SheetSnapshots      = "Snapshots"
	SheetDrift          = "Drift"
	SheetCategoryDeltas = "Category Deltas"
	SheetMultiples      = "Multiples"
)

var snapshotHeader = []string{
	"snapshot_id", "created_at", "reason", "actor_user_id",
	"adjusted_ebitda", "ebitda_estimated", "multiple_low", "multiple_high",
	"core_score", "financial", "transferability", "operational",
	"market", "legal_tax", "personal", "bri",
	"alpha", "base_multiple", "discount_fraction", "final_multiple",
	"current_value", "potential_value", "value_gap",
}

func addDecimal(row *xlsx.Row, d decimal.Decimal) {
	f, _ := d.Float64()
	row.AddCell().SetFloat(f)
}

func addTime(row *xlsx.Row, t time.Time) {
	row.AddCell().SetString(t.UTC().Format(time.RFC3339))
}

// WriteSnapshots writes snapshot history, one row per snapshot in the
// given order. Unassessed category cells are left empty; BRI is written on
// the 0-100 scale.
func WriteSnapshots(out io.Writer, snaps []model.ValuationSnapshot) error {
	f := xlsx.NewFile()
	w, err := addSheet(f, SheetSnapshots, snapshotHeader)
	if err != nil {
		return err
	}

	for i := range snaps {
		s := &snaps[i]
		row := w.row()
		row.AddCell().SetString(s.ID)
		addTime(row, s.CreatedAt)
		row.AddCell().SetString(s.Reason)
		actor := ""
		if s.ActorUserID != nil {
			actor = *s.ActorUserID
		}
		row.AddCell().SetString(actor)
		addDecimal(row, s.AdjustedEBITDA)
		row.AddCell().SetBool(s.EBITDAEstimated)
		addDecimal(row, s.MultipleLow)
		addDecimal(row, s.MultipleHigh)
		addDecimal(row, s.CoreScore)
		for _, c := range model.Categories {
			if v, ok := s.CategoryScore(c); ok {
				addDecimal(row, v)
			} else {
				row.AddCell().SetString("")
			}
		}
		addDecimal(row, s.BRIPoints())
		for _, d := range []decimal.Decimal{
			s.Alpha, s.BaseMultiple, s.DiscountFraction, s.FinalMultiple,
			s.CurrentValue, s.PotentialValue, s.ValueGap,
		} {
			addDecimal(row, d)
		}
	}
	return save(f, out)
}

// WriteDriftReport writes a report summary sheet and a per-category sheet.
func WriteDriftReport(out io.Writer, r *model.DriftReport) error {
	f := xlsx.NewFile()
	w, err := addSheet(f, SheetDrift, []string{"field", "value"})
	if err != nil {
		return err
	}

	text := func(k, v string) { w.strings(k, v) }
	num := func(k string, d decimal.Decimal) {
		row := w.row()
		row.AddCell().SetString(k)
		addDecimal(row, d)
	}
	text("report_id", r.ID)
	text("company_id", r.CompanyID)
	text("period_start", r.PeriodStart.UTC().Format("2006-01-02"))
	text("period_end", r.PeriodEnd.UTC().Format("2006-01-02"))
	text("severity", string(r.Severity))
	num("bri_start", r.BRIStart)
	num("bri_end", r.BRIEnd)
	num("bri_delta", r.BRIDelta)
	num("valuation_start", r.ValuationStart)
	num("valuation_end", r.ValuationEnd)
	num("valuation_delta", r.ValuationDelta)
	text("signals", strconv.Itoa(r.SignalsCount))
	text("tasks_completed", strconv.Itoa(r.TasksCompletedCount))
	text("tasks_added", strconv.Itoa(r.TasksAddedCount))

	cw, err := addSheet(f, SheetCategoryDeltas, []string{"category", "start", "end", "delta"})
	if err != nil {
		return err
	}
	for _, d := range r.CategoryDeltas {
		row := cw.row()
		row.AddCell().SetString(string(d.Category))
		addDecimal(row, d.Start)
		addDecimal(row, d.End)
		addDecimal(row, d.Delta)
	}
	return save(f, out)
}
