// Package recalc produces valuation snapshots. Every trigger (an answer
// change, a completed task, a multiple update) funnels through
// Recalculator.Recalc, which appends a new immutable snapshot.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/estimate"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/internal/scoring"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/valuation"
)

// Store is the persistence a Recalculator reads from and appends to.
type Store interface {
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	LatestMultiple(ctx context.Context, level model.Level, code string, asOf time.Time) (*model.IndustryMultiple, error)
	ListFinancialPeriods(ctx context.Context, companyID string) ([]model.FinancialPeriod, error)
	EffectiveResponses(ctx context.Context, companyID string) ([]model.EffectiveResponse, error)
	InsertSnapshot(ctx context.Context, s *model.ValuationSnapshot) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Result is the outcome of one recalculation. On success Snapshot is set
// and Cause is empty. Expected causes (NO_MULTIPLE, NO_FINANCIALS,
// NO_ASSESSMENT) carry no Err.
type Result struct {
	Success  bool                     `json:"success"`
	Snapshot *model.ValuationSnapshot `json:"snapshot,omitempty"`
	Cause    model.FailureCause       `json:"cause,omitempty"`
	Err      error                    `json:"-"`
}

// Option adjusts a single Recalc call.
type Option func(*options)

type options struct {
	estimateEBITDA bool
}

// WithEstimatedEBITDA lets the run fall back to free cash flow when no
// adjusted EBITDA is reported. The snapshot is flagged as estimated.
func WithEstimatedEBITDA() Option {
	return func(o *options) { o.estimateEBITDA = true }
}

// Recalculator computes and appends valuation snapshots.
type Recalculator struct {
	store    Store
	calc     *scoring.Calculator
	alpha    decimal.Decimal
	fcfRatio decimal.Decimal
	estimate bool
	retry    resilience.RetryConfig
	locks    *keyedMutex
	now      func() time.Time
}

// New creates a Recalculator. Alpha and the FCF ratio come from cfg; a zero
// value falls back to 1.4 and 0.70 respectively.
func New(st Store, calc *scoring.Calculator, cfg config.ValuationConfig, retry resilience.RetryConfig) (*Recalculator, error) {
	alpha := decimal.RequireFromString("1.4")
	if cfg.Alpha != 0 {
		alpha = decimal.NewFromFloat(cfg.Alpha)
	}
	if alpha.LessThan(valuation.MinAlpha) || alpha.GreaterThan(valuation.MaxAlpha) {
		return nil, eris.Wrapf(config.ErrInvalidConfig, "recalc: alpha %s outside [%s, %s]", alpha, valuation.MinAlpha, valuation.MaxAlpha)
	}
	ratio := estimate.DefaultFCFRatio
	if cfg.FCFToEBITDARatio != 0 {
		ratio = decimal.NewFromFloat(cfg.FCFToEBITDARatio)
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("recalc", "snapshot")
	}
	return &Recalculator{
		store:    st,
		calc:     calc,
		alpha:    alpha,
		fcfRatio: ratio,
		estimate: cfg.AllowEstimatedEBITDA,
		retry:    retry,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}, nil
}

// Alpha returns the buyer-skepticism exponent in use.
func (r *Recalculator) Alpha() decimal.Decimal {
	return r.alpha
}

// Recalc computes a fresh valuation for the company and appends a snapshot
// tagged with reason. It never returns a Go error or panics: failures are
// classified in Result.Cause. Calls for the same company are serialized, so
// snapshots persist in the order their triggers arrived.
func (r *Recalculator) Recalc(ctx context.Context, companyID, reason string, actorUserID *string, opts ...Option) (res Result) {
	o := options{estimateEBITDA: r.estimate}
	for _, opt := range opts {
		opt(&o)
	}
	log := zap.L().With(
		zap.String("company_id", companyID),
		zap.String("reason", reason),
	)

	defer func() {
		if p := recover(); p != nil {
			err := eris.Errorf("recalc: panic: %v", p)
			log.Error("recalc: recovered panic", zap.Error(err))
			res = Result{Cause: model.CauseUnexpected, Err: err}
		}
	}()

	unlock := r.locks.Lock(companyID)
	defer unlock()

	var (
		snap  *model.ValuationSnapshot
		cause model.FailureCause
	)
	// An aborted outer transaction cannot be retried from here; the caller
	// that owns it retries the whole unit.
	retry := r.retry
	if store.InTransaction(ctx) {
		retry.MaxAttempts = 1
	}
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		snap, cause = nil, ""
		return r.store.InTx(ctx, func(ctx context.Context) error {
			s, c, err := r.compute(ctx, companyID, reason, actorUserID, o)
			if err != nil {
				return err
			}
			if c != "" {
				cause = c
				return nil
			}
			if err := r.store.InsertSnapshot(ctx, s); err != nil {
				return err
			}
			snap = s
			return nil
		})
	})

	switch {
	case err != nil:
		log.Error("recalc: snapshot failed", zap.Error(err))
		return Result{Cause: model.CauseUnexpected, Err: err}
	case cause != "":
		log.Info("recalc: company cannot be valued yet", zap.String("cause", string(cause)))
		return Result{Cause: cause}
	}

	log.Info("recalc: snapshot written",
		zap.String("snapshot_id", snap.ID),
		zap.String("current_value", snap.CurrentValue.String()),
		zap.String("value_gap", snap.ValueGap.String()),
		zap.String("bri", snap.BRIScore.String()),
	)
	return Result{Success: true, Snapshot: snap}
}

// compute builds the snapshot without persisting it. An expected failure is
// reported as a cause with a nil error.
func (r *Recalculator) compute(ctx context.Context, companyID, reason string, actorUserID *string, o options) (*model.ValuationSnapshot, model.FailureCause, error) {
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, "", eris.Wrapf(err, "recalc: load company %s", companyID)
	}

	now := r.now().UTC()
	multiple, err := r.applicableMultiple(ctx, company.Classification, now)
	if err != nil {
		return nil, "", err
	}
	if multiple == nil {
		return nil, model.CauseNoMultiple, nil
	}

	periods, err := r.store.ListFinancialPeriods(ctx, companyID)
	if err != nil {
		return nil, "", eris.Wrapf(err, "recalc: load financials %s", companyID)
	}
	ebitda, err := estimate.Resolve(periods, o.estimateEBITDA, r.fcfRatio)
	if errors.Is(err, estimate.ErrNoFinancials) {
		return nil, model.CauseNoFinancials, nil
	}
	if err != nil {
		return nil, "", eris.Wrapf(err, "recalc: resolve ebitda %s", companyID)
	}

	responses, err := r.store.EffectiveResponses(ctx, companyID)
	if err != nil {
		return nil, "", eris.Wrapf(err, "recalc: load responses %s", companyID)
	}
	scores := r.calc.Compute(company, responses)
	if !scores.BRIAssessed {
		return nil, model.CauseNoAssessment, nil
	}

	derived, err := valuation.Derive(valuation.Inputs{
		Low:       multiple.EBITDALow,
		High:      multiple.EBITDAHigh,
		CoreScore: scores.CoreScore,
		BRI:       scores.BRI.Mul(decimal.NewFromInt(100)),
		Alpha:     r.alpha,
		EBITDA:    ebitda.Amount,
	})
	if err != nil {
		return nil, "", eris.Wrapf(err, "recalc: derive %s", companyID)
	}

	return &model.ValuationSnapshot{
		CompanyID:          companyID,
		CreatedAt:          now,
		Reason:             reason,
		ActorUserID:        actorUserID,
		AdjustedEBITDA:     ebitda.Amount,
		EBITDAEstimated:    ebitda.Estimated(),
		IndustryMultipleID: multiple.ID,
		MultipleLow:        multiple.EBITDALow,
		MultipleHigh:       multiple.EBITDAHigh,
		CoreScore:          scores.CoreScore,
		CategoryScores:     scores.NullCategoryScores(),
		BRIScore:           scores.BRI,
		Alpha:              r.alpha,
		BaseMultiple:       derived.BaseMultiple,
		DiscountFraction:   derived.DiscountFraction,
		FinalMultiple:      derived.FinalMultiple,
		CurrentValue:       derived.CurrentValue,
		PotentialValue:     derived.PotentialValue,
		ValueGap:           derived.ValueGap,
	}, "", nil
}

// applicableMultiple walks the classification from sub-sector up to
// industry and returns the latest multiple effective at asOf for the first
// level that has one. A nil multiple means none applies.
func (r *Recalculator) applicableMultiple(ctx context.Context, cls model.Classification, asOf time.Time) (*model.IndustryMultiple, error) {
	for _, level := range model.Levels {
		code := cls.Value(level)
		if code == "" {
			continue
		}
		m, err := r.store.LatestMultiple(ctx, level, code, asOf)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "recalc: multiple for %s %s", level, code)
		}
		return m, nil
	}
	return nil, nil
}

// TaskCompletedReason is the snapshot reason recorded for a completed task.
func TaskCompletedReason(title string) string {
	return fmt.Sprintf("Task completed: %s", title)
}

// AnswerUpdatedReason is the snapshot reason recorded when an assessment
// answer changes.
func AnswerUpdatedReason(questionID string) string {
	return fmt.Sprintf("Assessment answer updated: %s", questionID)
}

// MultipleUpdatedReason is the snapshot reason recorded by batch runs.
func MultipleUpdatedReason(key string, mt model.MultipleType) string {
	return fmt.Sprintf("Industry multiple updated: %s (%s)", key, mt)
}
