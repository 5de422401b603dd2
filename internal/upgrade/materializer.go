package upgrade

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

// TaskCreator inserts tasks, skipping template keys the company already has.
type TaskCreator interface {
	CreateTask(ctx context.Context, t *model.Task) (bool, error)
}

// Materializer turns unlock candidates into tasks. Running it twice with
// the same candidates creates nothing the second time.
type Materializer struct {
	store TaskCreator
}

// NewMaterializer creates a Materializer.
func NewMaterializer(st TaskCreator) *Materializer {
	return &Materializer{store: st}
}

// Materialize creates a PENDING task per candidate and returns the ones
// actually created.
func (m *Materializer) Materialize(ctx context.Context, candidates []UnlockCandidate) ([]model.Task, error) {
	var created []model.Task
	for _, c := range candidates {
		t := model.Task{
			CompanyID:            c.CompanyID,
			Title:                c.Template.Title,
			Status:               model.TaskPending,
			LinkedQuestionID:     c.Template.LinkedQuestionID,
			UpgradesFromOptionID: c.Template.UpgradesFromOptionID,
			UpgradesToOptionID:   c.Template.UpgradesToOptionID,
			RawImpact:            c.Template.RawImpact,
			TemplateKey:          c.Template.Key,
		}
		ok, err := m.store.CreateTask(ctx, &t)
		if err != nil {
			return created, eris.Wrapf(err, "upgrade: materialize %s", c.Template.Key)
		}
		if !ok {
			continue
		}
		zap.L().Info("upgrade: task unlocked",
			zap.String("company_id", c.CompanyID),
			zap.String("template_key", c.Template.Key),
			zap.String("task_id", t.ID),
		)
		created = append(created, t)
	}
	return created, nil
}
