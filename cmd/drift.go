package main

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/export"
)

var (
	driftCompany string
	driftStart   string
	driftEnd     string
	driftOut     string
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Generate a readiness drift report for a period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		start, end, err := driftPeriod(driftStart, driftEnd, time.Now())
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Drift.Generate(ctx, driftCompany, start, end)
		if err != nil {
			return err
		}
		if driftOut != "" {
			if err := writeFile(driftOut, func(w io.Writer) error { return export.WriteDriftReport(w, report) }); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// driftPeriod parses the period flags. An empty start means 30 days before
// end; an empty end means now.
func driftPeriod(startFlag, endFlag string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if endFlag != "" {
		t, err := time.Parse(time.DateOnly, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrap(err, "parse --end")
		}
		end = t
	}
	start := end.AddDate(0, 0, -30)
	if startFlag != "" {
		t, err := time.Parse(time.DateOnly, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrap(err, "parse --start")
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.New("--end is before --start")
	}
	return start, end, nil
}

func init() {
	driftCmd.Flags().StringVar(&driftCompany, "company", "", "company ID (required)")
	driftCmd.Flags().StringVar(&driftStart, "start", "", "period start, YYYY-MM-DD (default 30 days before end)")
	driftCmd.Flags().StringVar(&driftEnd, "end", "", "period end, YYYY-MM-DD (default now)")
	driftCmd.Flags().StringVar(&driftOut, "out", "", "also write the report to this XLSX path")
	_ = driftCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(driftCmd)
}
