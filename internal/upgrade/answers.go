package upgrade

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/store"
)

// AnswerOutcome is a recorded answer and the recalculation it triggered.
type AnswerOutcome struct {
	Response *model.AssessmentResponse `json:"response"`
	Recalc   recalc.Result             `json:"recalc"`
}

// RecordAnswer stores optionID as the company's selected answer to
// questionID and recalculates the company.
//
// An effective option that a completed task moved above the previous
// selection survives the re-answer when it still scores at or above the
// new selection. Otherwise the effective option follows the selection.
func (p *Propagator) RecordAnswer(ctx context.Context, companyID, questionID, optionID string, actorUserID *string) (AnswerOutcome, error) {
	var out AnswerOutcome
	if _, err := p.store.GetCompany(ctx, companyID); err != nil {
		return out, eris.Wrapf(err, "upgrade: load company %s", companyID)
	}

	r := &model.AssessmentResponse{CompanyID: companyID, QuestionID: questionID, SelectedOptionID: optionID}
	prev, err := p.store.GetResponse(ctx, companyID, questionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return out, eris.Wrap(err, "upgrade: load response")
	default:
		r.ID = prev.ID
		if prev.EffectiveOptionID != prev.SelectedOptionID {
			keep, err := p.keepsEffective(ctx, prev.EffectiveOptionID, optionID)
			if err != nil {
				return out, err
			}
			if keep {
				r.EffectiveOptionID = prev.EffectiveOptionID
			}
		}
	}

	if err := p.store.UpsertResponse(ctx, r); err != nil {
		return out, eris.Wrap(err, "upgrade: record answer")
	}
	if out.Response, err = p.store.GetResponse(ctx, companyID, questionID); err != nil {
		return out, eris.Wrap(err, "upgrade: reload response")
	}

	out.Recalc = p.recalc.Recalc(ctx, companyID, recalc.AnswerUpdatedReason(questionID), actorUserID)
	if !out.Recalc.Success {
		zap.L().Warn("upgrade: recalc after answer did not produce a snapshot",
			zap.String("company_id", companyID),
			zap.String("question_id", questionID),
			zap.String("cause", string(out.Recalc.Cause)),
		)
	}
	return out, nil
}

// keepsEffective reports whether an upgraded effective option still scores
// at or above the newly selected one.
func (p *Propagator) keepsEffective(ctx context.Context, effectiveID, selectedID string) (bool, error) {
	if effectiveID == selectedID {
		return true, nil
	}
	selected, err := p.store.GetOption(ctx, selectedID)
	if errors.Is(err, store.ErrNotFound) {
		return false, eris.Wrapf(store.ErrInvalidResponse, "unknown option %s", selectedID)
	}
	if err != nil {
		return false, eris.Wrapf(err, "upgrade: load option %s", selectedID)
	}
	effective, err := p.store.GetOption(ctx, effectiveID)
	if err != nil {
		return false, eris.Wrapf(err, "upgrade: load option %s", effectiveID)
	}
	if effective.QuestionID != selected.QuestionID {
		return false, nil
	}
	return effective.ScoreValue.GreaterThanOrEqual(selected.ScoreValue), nil
}
