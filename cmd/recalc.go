package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/recalc"
)

var (
	recalcCompanies []string
	recalcReason    string
	recalcActor     string
	recalcEstimate  bool
)

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recalculate valuation snapshots for companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := runRecalc(ctx, env.Recalc, recalcCompanies, recalcReason, optionalString(recalcActor), recalcEstimate)
		var failed int
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("%d of %d companies could not be valued", failed, len(results))
		}
		return nil
	},
}

type recalcOutput struct {
	CompanyID string `json:"company_id"`
	recalc.Result
	Error string `json:"error,omitempty"`
}

type companyRecalculator interface {
	Recalc(ctx context.Context, companyID, reason string, actorUserID *string, opts ...recalc.Option) recalc.Result
}

func runRecalc(ctx context.Context, rc companyRecalculator, ids []string, reason string, actor *string, estimate bool) []recalcOutput {
	var opts []recalc.Option
	if estimate {
		opts = append(opts, recalc.WithEstimatedEBITDA())
	}
	out := make([]recalcOutput, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res := rc.Recalc(ctx, id, reason, actor, opts...)
		o := recalcOutput{CompanyID: id, Result: res}
		if res.Err != nil {
			o.Error = res.Err.Error()
		}
		if !res.Success {
			zap.L().Warn("recalc: company not valued",
				zap.String("company_id", id),
				zap.String("cause", string(res.Cause)),
			)
		}
		out = append(out, o)
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	recalcCmd.Flags().StringSliceVar(&recalcCompanies, "company", nil, "company ID (repeatable)")
	recalcCmd.Flags().StringVar(&recalcReason, "reason", "Manual recalculation", "snapshot reason")
	recalcCmd.Flags().StringVar(&recalcActor, "actor", "", "acting user ID")
	recalcCmd.Flags().BoolVar(&recalcEstimate, "estimate-ebitda", false, "estimate EBITDA from free cash flow when none is reported")
	_ = recalcCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(recalcCmd)
}
