package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

const taskColumns = `id, company_id, title, status, linked_question_id,
	upgrades_from_option_id, upgrades_to_option_id,
	CAST(raw_impact AS TEXT), CAST(normalized_value AS TEXT),
	template_key, created_at, completed_at`

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                  model.Task
		status, raw, norm  string
		question, from, to *string
		templateKey        *string
	)
	if err := row.Scan(&t.ID, &t.CompanyID, &t.Title, &status, &question, &from, &to,
		&raw, &norm, &templateKey, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.LinkedQuestionID = derefStr(question)
	t.UpgradesFromOptionID = derefStr(from)
	t.UpgradesToOptionID = derefStr(to)
	t.TemplateKey = derefStr(templateKey)
	if err := decs(&t.RawImpact, raw, &t.NormalizedValue, norm); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts a task. It reports false without error when a task
// with the same template key already exists for the company.
func (s *sqlStore) CreateTask(ctx context.Context, t *model.Task) (bool, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	n, err := s.q.exec(ctx,
		`INSERT INTO tasks (id, company_id, title, status, linked_question_id,
			upgrades_from_option_id, upgrades_to_option_id, raw_impact, normalized_value,
			template_key, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, template_key) DO NOTHING`,
		t.ID, t.CompanyID, t.Title, string(t.Status), nullStrArg(t.LinkedQuestionID),
		nullStrArg(t.UpgradesFromOptionID), nullStrArg(t.UpgradesToOptionID),
		decArg(t.RawImpact), decArg(t.NormalizedValue),
		nullStrArg(t.TemplateKey), t.CreatedAt.UTC(), t.CompletedAt,
	)
	if err != nil {
		return false, s.wrap(err, "create task")
	}
	return n == 1, nil
}

func (s *sqlStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(s.q.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, s.wrap(err, "get task "+id)
	}
	return t, nil
}

// UpdateTaskStatus sets a task's status. Moving to COMPLETED stamps
// completed_at with at; other transitions leave it unchanged.
func (s *sqlStore) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, at time.Time) (*model.Task, error) {
	var completedAt any
	if status == model.TaskCompleted {
		completedAt = at.UTC()
	}
	n, err := s.q.exec(ctx,
		`UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		string(status), completedAt, id,
	)
	if err != nil {
		return nil, s.wrap(err, "update task status "+id)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTask(ctx, id)
}

// ListOpenTasks returns tasks not yet completed or cancelled.
func (s *sqlStore) ListOpenTasks(ctx context.Context, companyID string) ([]model.Task, error) {
	rows, err := s.q.query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE company_id = ? AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, s.wrap(err, "list open tasks")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, s.wrap(err, "scan task")
		}
		out = append(out, *t)
	}
	return out, s.wrap(rows.Err(), "list open tasks")
}

// UpdateNormalizedValues writes each task's normalized value.
func (s *sqlStore) UpdateNormalizedValues(ctx context.Context, values map[string]decimal.Decimal) error {
	for id, v := range values {
		if _, err := s.q.exec(ctx,
			`UPDATE tasks SET normalized_value = ? WHERE id = ?`, decArg(v), id,
		); err != nil {
			return s.wrap(err, "update normalized value "+id)
		}
	}
	return nil
}

func (s *sqlStore) CountTasksCompleted(ctx context.Context, companyID string, start, end time.Time) (int, error) {
	return s.count(ctx, "count completed tasks",
		`SELECT COUNT(*) FROM tasks
		WHERE company_id = ? AND status = 'COMPLETED' AND completed_at >= ? AND completed_at <= ?`,
		companyID, start.UTC(), end.UTC())
}

func (s *sqlStore) CountTasksAdded(ctx context.Context, companyID string, start, end time.Time) (int, error) {
	return s.count(ctx, "count added tasks",
		`SELECT COUNT(*) FROM tasks WHERE company_id = ? AND created_at >= ? AND created_at <= ?`,
		companyID, start.UTC(), end.UTC())
}
