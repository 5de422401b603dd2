package main

import (
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/batch"
	"github.com/sells-group/valuation-cli/internal/export"
	"github.com/sells-group/valuation-cli/internal/model"
)

var multiplesCmd = &cobra.Command{
	Use:   "multiples",
	Short: "Manage industry multiples",
	Long:  "Commands for recalculating after a multiple change, restoring defaults, and importing or exporting multiples.",
}

// -- multiples recalc --

var multiplesRecalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recalculate companies under a classification after its multiple changed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		change, err := changeFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Batch.RecalcForMultipleChange(ctx, change)
		printBatch(cmd.OutOrStdout(), res)
		return err
	},
}

func changeFromFlags(cmd *cobra.Command) (batch.MultipleChange, error) {
	f := cmd.Flags()
	industry, _ := f.GetString("industry")
	superSector, _ := f.GetString("super-sector")
	sector, _ := f.GetString("sector")
	subSector, _ := f.GetString("sub-sector")
	mt, _ := f.GetString("type")
	actor, _ := f.GetString("actor")

	change := batch.MultipleChange{
		Industry:     industry,
		SuperSector:  superSector,
		Sector:       sector,
		SubSector:    subSector,
		MultipleType: model.MultipleType(mt),
		ActorUserID:  optionalString(actor),
	}
	if _, _, ok := change.Classification().MostSpecific(); !ok {
		return change, eris.New("one of --industry, --super-sector, --sector or --sub-sector is required")
	}
	switch change.MultipleType {
	case model.MultipleEBITDA, model.MultipleRevenue:
	default:
		return change, eris.Errorf("unknown multiple type %q (EBITDA or REVENUE)", mt)
	}
	return change, nil
}

// -- multiples restore-defaults --

var multiplesRestoreCmd = &cobra.Command{
	Use:   "restore-defaults",
	Short: "Replace all multiples with the defaults and recalculate every company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		res, err := env.Batch.RestoreDefaults(ctx, optionalString(actor))
		printBatch(cmd.OutOrStdout(), res)
		return err
	},
}

// -- multiples import --

var multiplesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import multiples from an XLSX file and recalculate affected companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, _ := cmd.Flags().GetString("file")
		actor, _ := cmd.Flags().GetString("actor")

		ms, err := export.ReadMultiples(path)
		if err != nil {
			return eris.Wrap(err, "read multiples")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		total, err := env.Batch.ImportMultiples(ctx, ms, optionalString(actor))
		if err != nil {
			printBatch(cmd.OutOrStdout(), total)
			return eris.Wrap(err, "import multiples")
		}
		zap.L().Info("import complete",
			zap.Int("multiples", len(ms)),
			zap.String("file", path),
		)
		printBatch(cmd.OutOrStdout(), total)
		return nil
	},
}

// -- multiples export --

var multiplesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored multiples to an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ms, err := env.Store.ListMultiples(ctx)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("out")
		return writeFile(path, func(w io.Writer) error { return export.WriteMultiples(w, ms) })
	},
}

func init() {
	multiplesRecalcCmd.Flags().String("industry", "", "industry code")
	multiplesRecalcCmd.Flags().String("super-sector", "", "super-sector code")
	multiplesRecalcCmd.Flags().String("sector", "", "sector code")
	multiplesRecalcCmd.Flags().String("sub-sector", "", "sub-sector code")
	multiplesRecalcCmd.Flags().String("type", string(model.MultipleEBITDA), "multiple type that changed (EBITDA or REVENUE)")
	multiplesRecalcCmd.Flags().String("actor", "", "acting user ID")

	multiplesRestoreCmd.Flags().String("actor", "", "acting user ID")

	multiplesImportCmd.Flags().String("file", "", "path to XLSX file (required)")
	multiplesImportCmd.Flags().String("actor", "", "acting user ID")
	_ = multiplesImportCmd.MarkFlagRequired("file")

	multiplesExportCmd.Flags().String("out", "industry-multiples.xlsx", "output XLSX path")

	multiplesCmd.AddCommand(multiplesRecalcCmd, multiplesRestoreCmd, multiplesImportCmd, multiplesExportCmd)
	rootCmd.AddCommand(multiplesCmd)
}
