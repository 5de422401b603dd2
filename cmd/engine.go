package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/api"
	"github.com/sells-group/valuation-cli/internal/attribution"
	"github.com/sells-group/valuation-cli/internal/batch"
	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/drift"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/monitoring"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/internal/scoring"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/upgrade"
)

// engine holds the store and every service the commands use.
type engine struct {
	Store       store.Store
	Recalc      *recalc.Recalculator
	Reader      *recalc.Reader
	Batch       *batch.Coordinator
	Attribution *attribution.Service
	Drift       *drift.Reporter
	Tasks       *upgrade.Propagator
	Alerter     *monitoring.Alerter
}

// Close releases the store.
func (e *engine) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Services returns the engine as the API's dependency set.
func (e *engine) Services() api.Services {
	return api.Services{
		Store:       e.Store,
		Recalc:      e.Recalc,
		Reader:      e.Reader,
		Batch:       e.Batch,
		Attribution: e.Attribution,
		Drift:       e.Drift,
		Tasks:       e.Tasks,
	}
}

// initEngine opens and migrates the store and wires the services. Callers
// should defer env.Close().
func initEngine(ctx context.Context) (*engine, error) {
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	env, err := newEngine(st, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

func newEngine(st store.Store, c *config.Config) (*engine, error) {
	weights, err := scoring.NewWeights(c.Valuation)
	if err != nil {
		return nil, err
	}
	retry := resilience.FromConfig(c.Retry)

	rc, err := recalc.New(st, scoring.NewCalculator(weights), c.Valuation, retry)
	if err != nil {
		return nil, err
	}

	tiers, err := upgrade.LoadTierMap(c.Valuation.TaskTiersFile)
	if err != nil {
		return nil, err
	}

	defaults := store.DefaultMultiples
	if path := c.Valuation.DefaultMultiplesFile; path != "" {
		defaults = func() ([]model.IndustryMultiple, error) { return store.LoadMultiples(path) }
	}

	alerter := monitoring.NewAlerter(c.Monitoring, retry)
	if alerter.Enabled() {
		zap.L().Info("alert webhook enabled")
	}

	return &engine{
		Store:       st,
		Recalc:      rc,
		Reader:      recalc.NewReader(st),
		Batch:       batch.New(st, rc, alerter, c.Batch, defaults),
		Attribution: attribution.NewService(st, weights),
		Drift:       drift.NewReporter(st, alerter),
		Tasks:       upgrade.NewPropagator(st, rc, tiers),
		Alerter:     alerter,
	}, nil
}
