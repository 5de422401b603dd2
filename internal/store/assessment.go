package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// CreateQuestion inserts a question and its options. Callers wanting
// atomicity run it inside InTx.
func (s *sqlStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if _, err := s.q.exec(ctx,
		`INSERT INTO questions (id, category, prompt, max_impact_points, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		q.ID, string(q.Category), q.Prompt, decArg(q.MaxImpactPoints), q.IsActive,
	); err != nil {
		return s.wrap(err, "insert question "+q.ID)
	}

	for i := range q.Options {
		o := &q.Options[i]
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		o.QuestionID = q.ID
		if _, err := s.q.exec(ctx,
			`INSERT INTO question_options (id, question_id, label, score_value, display_order)
			VALUES (?, ?, ?, ?, ?)`,
			o.ID, o.QuestionID, o.Label, decArg(o.ScoreValue), o.DisplayOrder,
		); err != nil {
			return s.wrap(err, "insert option "+o.ID)
		}
	}
	return nil
}

func (s *sqlStore) GetOption(ctx context.Context, optionID string) (*model.Option, error) {
	var o model.Option
	var score string
	err := s.q.queryRow(ctx,
		`SELECT id, question_id, label, CAST(score_value AS TEXT), display_order
		FROM question_options WHERE id = ?`, optionID,
	).Scan(&o.ID, &o.QuestionID, &o.Label, &score, &o.DisplayOrder)
	if err != nil {
		return nil, s.wrap(err, "get option "+optionID)
	}
	if o.ScoreValue, err = parseDec(score); err != nil {
		return nil, s.wrap(err, "get option "+optionID)
	}
	return &o, nil
}

// UpsertResponse records an answer. A re-answer replaces both the selected
// and effective option; the response keeps its original ID. Both options
// must belong to the question and the effective option may not score below
// the selected one.
func (s *sqlStore) UpsertResponse(ctx context.Context, r *model.AssessmentResponse) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.EffectiveOptionID == "" {
		r.EffectiveOptionID = r.SelectedOptionID
	}
	if err := s.checkResponse(ctx, r); err != nil {
		return err
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO assessment_responses (id, company_id, question_id, selected_option_id, effective_option_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, question_id) DO UPDATE SET
			selected_option_id = excluded.selected_option_id,
			effective_option_id = excluded.effective_option_id,
			updated_at = excluded.updated_at`,
		r.ID, r.CompanyID, r.QuestionID, r.SelectedOptionID, r.EffectiveOptionID, time.Now().UTC(),
	)
	return s.wrap(err, "upsert response")
}

func (s *sqlStore) checkResponse(ctx context.Context, r *model.AssessmentResponse) error {
	selected, err := s.responseOption(ctx, r.SelectedOptionID)
	if err != nil {
		return err
	}
	effective := selected
	if r.EffectiveOptionID != r.SelectedOptionID {
		if effective, err = s.responseOption(ctx, r.EffectiveOptionID); err != nil {
			return err
		}
	}
	if selected.QuestionID != r.QuestionID || effective.QuestionID != r.QuestionID {
		return eris.Wrapf(ErrInvalidResponse, "options must belong to question %s", r.QuestionID)
	}
	if effective.ScoreValue.LessThan(selected.ScoreValue) {
		return eris.Wrapf(ErrInvalidResponse, "effective option %s scores below selected option %s",
			effective.ID, selected.ID)
	}
	return nil
}

func (s *sqlStore) responseOption(ctx context.Context, optionID string) (*model.Option, error) {
	o, err := s.GetOption(ctx, optionID)
	if eris.Is(err, ErrNotFound) {
		return nil, eris.Wrapf(ErrInvalidResponse, "unknown option %s", optionID)
	}
	return o, err
}

func (s *sqlStore) GetResponse(ctx context.Context, companyID, questionID string) (*model.AssessmentResponse, error) {
	var r model.AssessmentResponse
	err := s.q.queryRow(ctx,
		`SELECT id, company_id, question_id, selected_option_id, effective_option_id
		FROM assessment_responses WHERE company_id = ? AND question_id = ?`, companyID, questionID,
	).Scan(&r.ID, &r.CompanyID, &r.QuestionID, &r.SelectedOptionID, &r.EffectiveOptionID)
	if err != nil {
		return nil, s.wrap(err, "get response")
	}
	return &r, nil
}

// EffectiveResponses joins a company's responses with question and option
// data for scoring. Inactive questions are included and flagged.
func (s *sqlStore) EffectiveResponses(ctx context.Context, companyID string) ([]model.EffectiveResponse, error) {
	rows, err := s.q.query(ctx,
		`SELECT r.id, r.question_id, q.category, CAST(q.max_impact_points AS TEXT), q.is_active,
			r.selected_option_id, CAST(so.score_value AS TEXT),
			r.effective_option_id, CAST(eo.score_value AS TEXT)
		FROM assessment_responses r
		JOIN questions q ON q.id = r.question_id
		JOIN question_options so ON so.id = r.selected_option_id
		JOIN question_options eo ON eo.id = r.effective_option_id
		WHERE r.company_id = ?
		ORDER BY r.question_id`, companyID)
	if err != nil {
		return nil, s.wrap(err, "effective responses")
	}
	defer rows.Close()

	var out []model.EffectiveResponse
	for rows.Next() {
		var e model.EffectiveResponse
		var category, points, selected, effective string
		if err := rows.Scan(&e.ResponseID, &e.QuestionID, &category, &points, &e.QuestionActive,
			&e.SelectedOptionID, &selected, &e.EffectiveOptionID, &effective); err != nil {
			return nil, s.wrap(err, "scan effective response")
		}
		e.Category = model.Category(category)
		if err := decs(&e.MaxImpactPoints, points, &e.SelectedScore, selected, &e.EffectiveScore, effective); err != nil {
			return nil, s.wrap(err, "scan effective response")
		}
		out = append(out, e)
	}
	return out, s.wrap(rows.Err(), "effective responses")
}

// UpgradeEffectiveOption moves a response's effective option from
// fromOptionID to toOptionID. It reports false when the effective option is
// no longer fromOptionID, so concurrent upgrades apply at most once.
func (s *sqlStore) UpgradeEffectiveOption(ctx context.Context, responseID, fromOptionID, toOptionID string) (bool, error) {
	n, err := s.q.exec(ctx,
		`UPDATE assessment_responses SET effective_option_id = ?, updated_at = ?
		WHERE id = ? AND effective_option_id = ?`,
		toOptionID, time.Now().UTC(), responseID, fromOptionID,
	)
	if err != nil {
		return false, s.wrap(err, "upgrade effective option")
	}
	return n == 1, nil
}
