// Package upgrade reacts to task status changes: completing a task can
// upgrade the effective answer of its linked question, which triggers a
// recalculation and may unlock follow-up tasks.
package upgrade

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/store"
)

// ErrInvalidStatus is returned for an unknown task status.
var ErrInvalidStatus = errors.New("upgrade: invalid task status")

// Store is the persistence the propagator needs.
type Store interface {
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	UpsertResponse(ctx context.Context, r *model.AssessmentResponse) error
	GetResponse(ctx context.Context, companyID, questionID string) (*model.AssessmentResponse, error)
	GetOption(ctx context.Context, optionID string) (*model.Option, error)
	UpgradeEffectiveOption(ctx context.Context, responseID, fromOptionID, toOptionID string) (bool, error)

	CreateTask(ctx context.Context, t *model.Task) (bool, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, at time.Time) (*model.Task, error)
	ListOpenTasks(ctx context.Context, companyID string) ([]model.Task, error)
	UpdateNormalizedValues(ctx context.Context, values map[string]decimal.Decimal) error
}

// Recalculator appends a snapshot for a company.
type Recalculator interface {
	Recalc(ctx context.Context, companyID, reason string, actorUserID *string, opts ...recalc.Option) recalc.Result
}

// UnlockCandidate is a task template that became relevant because the
// company now holds OptionID.
type UnlockCandidate struct {
	CompanyID string       `json:"company_id"`
	OptionID  string       `json:"option_id"`
	Template  TaskTemplate `json:"template"`
}

// Outcome reports what a task event changed.
type Outcome struct {
	Upgraded bool              `json:"upgraded"`
	Recalc   *recalc.Result    `json:"recalc,omitempty"`
	Unlocks  []UnlockCandidate `json:"unlocks,omitempty"`
	Created  []model.Task      `json:"created,omitempty"`
}

// Propagator applies task events to answers, snapshots and task priority.
type Propagator struct {
	store        Store
	recalc       Recalculator
	tiers        TierMap
	materializer *Materializer
	now          func() time.Time
}

// NewPropagator creates a Propagator. A nil tier map unlocks nothing.
func NewPropagator(st Store, rc Recalculator, tiers TierMap) *Propagator {
	if tiers == nil {
		tiers = TierMap{}
	}
	return &Propagator{
		store:        st,
		recalc:       rc,
		tiers:        tiers,
		materializer: NewMaterializer(st),
		now:          time.Now,
	}
}

// OnTaskCompleted upgrades the linked answer when the task declares an
// upgrade pair and the target option scores strictly higher than the
// current effective option, then recalculates the company. Unlock
// candidates are returned, not created.
func (p *Propagator) OnTaskCompleted(ctx context.Context, ev model.TaskEvent) (Outcome, error) {
	log := zap.L().With(
		zap.String("company_id", ev.CompanyID),
		zap.String("task_id", ev.TaskID),
	)

	var out Outcome
	if ev.LinkedQuestionID != "" && ev.UpgradesToOptionID != "" {
		upgraded, err := p.upgradeAnswer(ctx, ev)
		if err != nil {
			return out, err
		}
		out.Upgraded = upgraded
		if upgraded {
			log.Info("upgrade: effective answer upgraded",
				zap.String("question_id", ev.LinkedQuestionID),
				zap.String("option_id", ev.UpgradesToOptionID),
			)
		}
		if out.Unlocks, err = p.unlocksFor(ctx, ev); err != nil {
			return out, err
		}
	}

	res := p.recalc.Recalc(ctx, ev.CompanyID, recalc.TaskCompletedReason(ev.Title), ev.ActorUserID)
	out.Recalc = &res
	if !res.Success {
		log.Warn("upgrade: recalc after task completion did not produce a snapshot",
			zap.String("cause", string(res.Cause)),
		)
	}

	// The completed task no longer competes, so the rest rebalance.
	if err := p.Renormalize(ctx, ev.CompanyID); err != nil {
		return out, err
	}
	return out, nil
}

// unlocksFor returns the candidates unlocked by the task's target option
// when the company's effective answer currently is that option, whether or
// not this event moved it there. A replayed completion offers them again.
func (p *Propagator) unlocksFor(ctx context.Context, ev model.TaskEvent) ([]UnlockCandidate, error) {
	if ev.LinkedQuestionID == "" || ev.UpgradesToOptionID == "" {
		return nil, nil
	}
	templates := p.tiers.Unlocks(ev.UpgradesToOptionID)
	if len(templates) == 0 {
		return nil, nil
	}
	resp, err := p.store.GetResponse(ctx, ev.CompanyID, ev.LinkedQuestionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "upgrade: load response")
	}
	if resp.EffectiveOptionID != ev.UpgradesToOptionID {
		return nil, nil
	}

	out := make([]UnlockCandidate, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, UnlockCandidate{
			CompanyID: ev.CompanyID,
			OptionID:  ev.UpgradesToOptionID,
			Template:  tmpl,
		})
	}
	return out, nil
}

// upgradeAnswer moves the response's effective option to the task's target
// with a compare-and-set guarded by the effective option it read. It never
// downgrades.
func (p *Propagator) upgradeAnswer(ctx context.Context, ev model.TaskEvent) (bool, error) {
	resp, err := p.store.GetResponse(ctx, ev.CompanyID, ev.LinkedQuestionID)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Debug("upgrade: question not answered, nothing to upgrade",
			zap.String("company_id", ev.CompanyID),
			zap.String("question_id", ev.LinkedQuestionID),
		)
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "upgrade: load response")
	}
	if resp.EffectiveOptionID == ev.UpgradesToOptionID {
		return false, nil
	}

	target, err := p.store.GetOption(ctx, ev.UpgradesToOptionID)
	if err != nil {
		return false, eris.Wrapf(err, "upgrade: load target option %s", ev.UpgradesToOptionID)
	}
	if target.QuestionID != ev.LinkedQuestionID {
		return false, eris.Errorf("upgrade: option %s does not belong to question %s", target.ID, ev.LinkedQuestionID)
	}
	current, err := p.store.GetOption(ctx, resp.EffectiveOptionID)
	if err != nil {
		return false, eris.Wrapf(err, "upgrade: load effective option %s", resp.EffectiveOptionID)
	}
	if !target.ScoreValue.GreaterThan(current.ScoreValue) {
		return false, nil
	}

	ok, err := p.store.UpgradeEffectiveOption(ctx, resp.ID, current.ID, target.ID)
	if err != nil {
		return false, eris.Wrap(err, "upgrade: set effective option")
	}
	if !ok {
		zap.L().Info("upgrade: effective option changed concurrently, skipping",
			zap.String("response_id", resp.ID),
		)
	}
	return ok, nil
}

// OnTaskCancelled renormalizes the remaining open tasks of the company.
func (p *Propagator) OnTaskCancelled(ctx context.Context, companyID string) error {
	return p.Renormalize(ctx, companyID)
}

// Renormalize recomputes NormalizedValue for every open task of the
// company. RawImpact is never modified.
func (p *Propagator) Renormalize(ctx context.Context, companyID string) error {
	open, err := p.store.ListOpenTasks(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "upgrade: list open tasks")
	}
	if len(open) == 0 {
		return nil
	}
	return eris.Wrap(p.store.UpdateNormalizedValues(ctx, Normalize(open)), "upgrade: update normalized values")
}

// Handle dispatches a task event on its status. Unlock candidates from a
// completion are materialized.
func (p *Propagator) Handle(ctx context.Context, ev model.TaskEvent) (Outcome, error) {
	switch ev.Status {
	case model.TaskCompleted:
		out, err := p.OnTaskCompleted(ctx, ev)
		if err != nil {
			return out, err
		}
		out.Created, err = p.materialize(ctx, ev.CompanyID, out.Unlocks)
		return out, err
	case model.TaskCancelled:
		return Outcome{}, p.OnTaskCancelled(ctx, ev.CompanyID)
	}
	return Outcome{}, nil
}

func (p *Propagator) materialize(ctx context.Context, companyID string, unlocks []UnlockCandidate) ([]model.Task, error) {
	if len(unlocks) == 0 {
		return nil, nil
	}
	created, err := p.materializer.Materialize(ctx, unlocks)
	if err != nil {
		return created, err
	}
	if len(created) > 0 {
		if err := p.Renormalize(ctx, companyID); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Transition moves a task to status and handles the resulting event.
// Setting a task to the status it already has does not recalculate; for a
// completed task it only materializes unlocks that are still missing.
func (p *Propagator) Transition(ctx context.Context, taskID string, status model.TaskStatus, actorUserID *string) (*model.Task, Outcome, error) {
	if !status.Valid() {
		return nil, Outcome{}, eris.Wrapf(ErrInvalidStatus, "upgrade: %q", status)
	}
	current, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, Outcome{}, eris.Wrapf(err, "upgrade: load task %s", taskID)
	}
	if current.Status == status {
		if status != model.TaskCompleted {
			return current, Outcome{}, nil
		}
		out, err := p.resumeUnlocks(ctx, model.EventFromTask(current))
		return current, out, err
	}

	updated, err := p.store.UpdateTaskStatus(ctx, taskID, status, p.now().UTC())
	if err != nil {
		return nil, Outcome{}, eris.Wrapf(err, "upgrade: update task %s", taskID)
	}
	ev := model.EventFromTask(updated)
	ev.ActorUserID = actorUserID
	out, err := p.Handle(ctx, ev)
	return updated, out, err
}

func (p *Propagator) resumeUnlocks(ctx context.Context, ev model.TaskEvent) (Outcome, error) {
	var out Outcome
	var err error
	if out.Unlocks, err = p.unlocksFor(ctx, ev); err != nil {
		return out, err
	}
	out.Created, err = p.materialize(ctx, ev.CompanyID, out.Unlocks)
	return out, err
}
