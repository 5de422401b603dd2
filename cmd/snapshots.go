package main

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/export"
	"github.com/sells-group/valuation-cli/internal/store"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect valuation snapshot history",
	Long:  "Commands for listing and exporting a company's valuation snapshots.",
}

// -- snapshots list --

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a company's snapshots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companyID, _ := cmd.Flags().GetString("company")
		asJSON, _ := cmd.Flags().GetBool("json")
		filter, err := snapshotFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snaps, err := env.Reader.List(ctx, companyID, filter)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), snaps)
		}
		printSnapshots(cmd.OutOrStdout(), snaps)
		return nil
	},
}

// -- snapshots export --

var snapshotsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a company's snapshots to an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companyID, _ := cmd.Flags().GetString("company")
		out, _ := cmd.Flags().GetString("out")
		filter, err := snapshotFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snaps, err := env.Reader.List(ctx, companyID, filter)
		if err != nil {
			return err
		}
		if out == "" {
			out = "snapshots-" + companyID + ".xlsx"
		}
		return writeFile(out, func(w io.Writer) error { return export.WriteSnapshots(w, snaps) })
	},
}

func snapshotFilterFromFlags(cmd *cobra.Command) (store.SnapshotFilter, error) {
	var f store.SnapshotFilter
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	f.Limit, _ = cmd.Flags().GetInt("limit")

	var err error
	if since != "" {
		if f.Since, err = time.Parse(time.DateOnly, since); err != nil {
			return f, eris.Wrap(err, "parse --since")
		}
	}
	if until != "" {
		if f.Until, err = time.Parse(time.DateOnly, until); err != nil {
			return f, eris.Wrap(err, "parse --until")
		}
	}
	return f, nil
}

func init() {
	for _, c := range []*cobra.Command{snapshotsListCmd, snapshotsExportCmd} {
		c.Flags().String("company", "", "company ID (required)")
		c.Flags().String("since", "", "only snapshots at or after this date (YYYY-MM-DD)")
		c.Flags().String("until", "", "only snapshots at or before this date (YYYY-MM-DD)")
		c.Flags().Int("limit", 0, "max snapshots (0 = all)")
		_ = c.MarkFlagRequired("company")
	}
	snapshotsListCmd.Flags().Bool("json", false, "print JSON instead of a table")
	snapshotsExportCmd.Flags().String("out", "", "output XLSX path (default snapshots-<company>.xlsx)")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsExportCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
