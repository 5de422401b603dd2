package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/attribution"
	"github.com/sells-group/valuation-cli/internal/batch"
	"github.com/sells-group/valuation-cli/internal/estimate"
	"github.com/sells-group/valuation-cli/internal/model"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func printSnapshots(out io.Writer, snaps []model.ValuationSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tBRI\tCURRENT\tPOTENTIAL\tGAP\tREASON")
	_, _ = fmt.Fprintln(w, "--\t-------\t---\t-------\t---------\t---\t------")
	for _, s := range snaps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.CreatedAt.Format("2006-01-02 15:04"),
			estimate.FormatPoints(s.BRIPoints()),
			estimate.FormatCurrency(s.CurrentValue),
			estimate.FormatCurrency(s.PotentialValue),
			estimate.FormatCurrency(s.ValueGap),
			s.Reason,
		)
	}
	_ = w.Flush()
}

func printBreakdown(out io.Writer, b *attribution.Breakdown) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Snapshot:\t%s\n", b.SnapshotID)
	_, _ = fmt.Fprintf(w, "Value gap:\t%s (%s)\n\n", estimate.FormatCurrency(b.ValueGap), estimate.FormatCompact(b.ValueGap))
	_, _ = fmt.Fprintln(w, "CATEGORY\tGAP\tDRIVER\tDRIVER GAP")
	for _, c := range b.Categories {
		_, _ = fmt.Fprintf(w, "%s\t%s\t\t\n", c.Category, estimate.FormatCurrency(c.DollarImpact))
		for _, d := range c.Drivers {
			_, _ = fmt.Fprintf(w, "\t\t%s\t%s\n", d.QuestionID, estimate.FormatCurrency(d.DollarImpact))
		}
	}
	_ = w.Flush()
}

func printBatch(out io.Writer, res batch.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", res.Total)
	_, _ = fmt.Fprintf(w, "Successful:\t%d\n", res.Successful)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", res.Failed)
	if res.NotStarted > 0 {
		_, _ = fmt.Fprintf(w, "Not started:\t%d\n", res.NotStarted)
	}
	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(w, "  %s:\t%s %s\n", f.CompanyID, f.Cause, f.Error)
	}
	_ = w.Flush()
}

// writeFile creates path and passes it to write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}
