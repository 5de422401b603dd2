// Package batch recalculates every company affected by an industry multiple
// change, with bounded concurrency.
package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/monitoring"
	"github.com/sells-group/valuation-cli/internal/recalc"
)

const defaultConcurrency = 5

// RestoreDefaultsReason tags snapshots written by RestoreDefaults.
const RestoreDefaultsReason = "Industry multiples restored to defaults"

// Store is the persistence the coordinator needs.
type Store interface {
	ListCompanyIDs(ctx context.Context) ([]string, error)
	ListCompanyIDsByClassification(ctx context.Context, level model.Level, code string) ([]string, error)
	InsertMultiple(ctx context.Context, m *model.IndustryMultiple) error
	DeleteMultiple(ctx context.Context, id string) (*model.IndustryMultiple, error)
	ReplaceMultiples(ctx context.Context, ms []model.IndustryMultiple) error
	UpsertMultiples(ctx context.Context, ms []model.IndustryMultiple) (int64, error)
}

// Recalculator appends a snapshot for a company.
type Recalculator interface {
	Recalc(ctx context.Context, companyID, reason string, actorUserID *string, opts ...recalc.Option) recalc.Result
}

// MultipleChange identifies the classification whose multiple changed.
// Companies are matched at the most specific non-empty level.
type MultipleChange struct {
	SubSector    string             `json:"sub_sector,omitempty"`
	Sector       string             `json:"sector,omitempty"`
	SuperSector  string             `json:"super_sector,omitempty"`
	Industry     string             `json:"industry,omitempty"`
	MultipleType model.MultipleType `json:"multiple_type"`
	ActorUserID  *string            `json:"actor_user_id,omitempty"`
}

// Classification returns the change's key.
func (m MultipleChange) Classification() model.Classification {
	return model.Classification{
		Industry:    m.Industry,
		SuperSector: m.SuperSector,
		Sector:      m.Sector,
		SubSector:   m.SubSector,
	}
}

// ChangeFor describes a change to multiple m.
func ChangeFor(m *model.IndustryMultiple, mt model.MultipleType, actorUserID *string) MultipleChange {
	return MultipleChange{
		SubSector:    m.Classification.SubSector,
		Sector:       m.Classification.Sector,
		SuperSector:  m.Classification.SuperSector,
		Industry:     m.Classification.Industry,
		MultipleType: mt,
		ActorUserID:  actorUserID,
	}
}

// Failure is one company that did not get a snapshot.
type Failure struct {
	CompanyID string             `json:"company_id"`
	Cause     model.FailureCause `json:"cause"`
	Error     string             `json:"error,omitempty"`
}

// Result summarizes a batch run. Companies never started because the
// context ended are counted in NotStarted, not Failed.
type Result struct {
	Total      int64     `json:"total"`
	Successful int64     `json:"successful"`
	Failed     int64     `json:"failed"`
	NotStarted int64     `json:"not_started,omitempty"`
	Failures   []Failure `json:"failures,omitempty"`
}

func (r *Result) add(o Result) {
	r.Total += o.Total
	r.Successful += o.Successful
	r.Failed += o.Failed
	r.NotStarted += o.NotStarted
	r.Failures = append(r.Failures, o.Failures...)
}

// Coordinator fans recalculations out across companies.
type Coordinator struct {
	store       Store
	recalc      Recalculator
	alerter     *monitoring.Alerter
	concurrency int
	limiter     *rate.Limiter
	defaults    func() ([]model.IndustryMultiple, error)
}

// New creates a Coordinator. defaults supplies the multiples RestoreDefaults
// installs. alerter may be nil.
func New(st Store, rc Recalculator, alerter *monitoring.Alerter, cfg config.BatchConfig, defaults func() ([]model.IndustryMultiple, error)) *Coordinator {
	concurrency := cfg.MaxConcurrentCompanies
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Coordinator{
		store:       st,
		recalc:      rc,
		alerter:     alerter,
		concurrency: concurrency,
		limiter:     limiter,
		defaults:    defaults,
	}
}

// RecalcForMultipleChange recalculates every company classified under the
// change's most specific non-empty key.
func (c *Coordinator) RecalcForMultipleChange(ctx context.Context, change MultipleChange) (Result, error) {
	if change.MultipleType == "" {
		change.MultipleType = model.MultipleEBITDA
	}
	level, code, ok := change.Classification().MostSpecific()
	if !ok {
		return Result{}, eris.New("batch: multiple change has an empty classification key")
	}
	ids, err := c.store.ListCompanyIDsByClassification(ctx, level, code)
	if err != nil {
		return Result{}, eris.Wrapf(err, "batch: list companies for %s %s", level, code)
	}
	trigger := string(level) + ":" + code
	return c.run(ctx, trigger, ids, recalc.MultipleUpdatedReason(code, change.MultipleType), change.ActorUserID)
}

// RestoreDefaults replaces every stored multiple with the defaults and
// recalculates all companies.
func (c *Coordinator) RestoreDefaults(ctx context.Context, actorUserID *string) (Result, error) {
	if c.defaults == nil {
		return Result{}, eris.New("batch: no default multiples configured")
	}
	ms, err := c.defaults()
	if err != nil {
		return Result{}, eris.Wrap(err, "batch: load default multiples")
	}
	if err := c.store.ReplaceMultiples(ctx, ms); err != nil {
		return Result{}, eris.Wrap(err, "batch: replace multiples")
	}
	zap.L().Info("batch: default multiples restored", zap.Int("multiples", len(ms)))

	ids, err := c.store.ListCompanyIDs(ctx)
	if err != nil {
		return Result{}, eris.Wrap(err, "batch: list companies")
	}
	return c.run(ctx, "restore_defaults", ids, RestoreDefaultsReason, actorUserID)
}

// OnMultipleCreated stores m and recalculates the companies under its key.
func (c *Coordinator) OnMultipleCreated(ctx context.Context, m *model.IndustryMultiple, actorUserID *string) (Result, error) {
	if err := c.store.InsertMultiple(ctx, m); err != nil {
		return Result{}, eris.Wrap(err, "batch: insert multiple")
	}
	return c.RecalcForMultipleChange(ctx, ChangeFor(m, model.MultipleEBITDA, actorUserID))
}

// ImportMultiples upserts ms in one write and then recalculates once per
// distinct classification key, in input order.
func (c *Coordinator) ImportMultiples(ctx context.Context, ms []model.IndustryMultiple, actorUserID *string) (Result, error) {
	var total Result
	n, err := c.store.UpsertMultiples(ctx, ms)
	if err != nil {
		return total, eris.Wrap(err, "batch: upsert multiples")
	}
	zap.L().Info("batch: multiples imported", zap.Int("multiples", len(ms)), zap.Int64("rows_affected", n))

	seen := make(map[string]bool, len(ms))
	for i := range ms {
		level, code, _ := ms[i].Classification.MostSpecific()
		key := string(level) + ":" + code
		if seen[key] {
			continue
		}
		seen[key] = true
		res, err := c.RecalcForMultipleChange(ctx, ChangeFor(&ms[i], model.MultipleEBITDA, actorUserID))
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// OnMultipleDeleted removes a multiple and recalculates the companies that
// may have been valued with it.
func (c *Coordinator) OnMultipleDeleted(ctx context.Context, id string, actorUserID *string) (Result, error) {
	m, err := c.store.DeleteMultiple(ctx, id)
	if err != nil {
		return Result{}, eris.Wrapf(err, "batch: delete multiple %s", id)
	}
	return c.RecalcForMultipleChange(ctx, ChangeFor(m, model.MultipleEBITDA, actorUserID))
}

// run recalculates ids. A failing company never stops its siblings; a done
// context stops new companies from starting while in-flight ones finish.
func (c *Coordinator) run(ctx context.Context, trigger string, ids []string, reason string, actorUserID *string) (Result, error) {
	log := zap.L().With(zap.String("trigger", trigger), zap.Int("companies", len(ids)))
	log.Info("batch: recalculation started")

	var (
		successful atomic.Int64
		failed     atomic.Int64
		skipped    atomic.Int64
		scheduled  int64
		mu         sync.Mutex
		failures   []Failure
	)

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				break
			}
		}
		scheduled++
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			res := c.recalc.Recalc(ctx, id, reason, actorUserID)
			if res.Success {
				successful.Add(1)
				return nil
			}
			failed.Add(1)
			f := Failure{CompanyID: id, Cause: res.Cause}
			if res.Err != nil {
				f.Error = res.Err.Error()
			}
			log.Warn("batch: company recalculation failed",
				zap.String("company_id", id),
				zap.String("cause", string(res.Cause)),
				zap.Error(res.Err),
			)
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Total:      int64(len(ids)),
		Successful: successful.Load(),
		Failed:     failed.Load(),
		NotStarted: int64(len(ids)) - scheduled + skipped.Load(),
		Failures:   failures,
	}
	log.Info("batch: recalculation finished",
		zap.Int64("successful", res.Successful),
		zap.Int64("failed", res.Failed),
		zap.Int64("not_started", res.NotStarted),
	)

	if c.alerter.Enabled() {
		if alert, ok := c.alerter.EvaluateBatch(trigger, res.Total, res.Failed); ok {
			if err := c.alerter.Send(ctx, alert); err != nil {
				log.Error("batch: failed to send failure alert", zap.Error(err))
			}
		}
	}

	if err := ctx.Err(); err != nil && res.NotStarted > 0 {
		return res, eris.Wrap(err, "batch: cancelled")
	}
	return res, nil
}
