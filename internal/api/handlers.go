package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/batch"
	"github.com/sells-group/valuation-cli/internal/export"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/upgrade"
)

// ManualReason tags snapshots requested without an explicit reason.
const ManualReason = "Manual recalculation"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type recalcRequest struct {
	Reason               string  `json:"reason"`
	ActorUserID          *string `json:"actor_user_id"`
	AllowEstimatedEBITDA bool    `json:"allow_estimated_ebitda"`
}

func (s *Server) recalcCompany(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.Reason == "" {
		req.Reason = ManualReason
	}
	var opts []recalc.Option
	if req.AllowEstimatedEBITDA {
		opts = append(opts, recalc.WithEstimatedEBITDA())
	}

	res := s.svc.Recalc.Recalc(r.Context(), chi.URLParam(r, "companyID"), req.Reason, req.ActorUserID, opts...)
	switch {
	case res.Success:
		writeJSON(w, http.StatusCreated, res.Snapshot)
	case res.Cause.Expected():
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: "company cannot be valued yet",
			Cause: string(res.Cause),
		})
	default:
		status := statusFor(res.Err)
		if status == http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorBody{Error: errString(res.Err), Cause: string(res.Cause)})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func snapshotFilter(r *http.Request) (store.SnapshotFilter, error) {
	var f store.SnapshotFilter
	q := r.URL.Query()
	var err error
	if v := q.Get("since"); v != "" {
		if f.Since, err = parseTime(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("until"); v != "" {
		if f.Until, err = parseTime(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Wrapf(errBadRequest, "invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(errBadRequest, "invalid time %q", v)
	}
	return t, nil
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	f, err := snapshotFilter(r)
	if err != nil {
		fail(w, err)
		return
	}
	snaps, err := s.svc.Reader.List(r.Context(), chi.URLParam(r, "companyID"), f)
	if err != nil {
		fail(w, err)
		return
	}
	if snaps == nil {
		snaps = []model.ValuationSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Reader.Latest(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Reader.Get(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "snapshotID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) exportSnapshots(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	f, err := snapshotFilter(r)
	if err != nil {
		fail(w, err)
		return
	}
	snaps, err := s.svc.Reader.List(r.Context(), companyID, f)
	if err != nil {
		fail(w, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("snapshots-%s.xlsx", companyID), func(buf *bytes.Buffer) error {
		return export.WriteSnapshots(buf, snaps)
	})
}

func writeXLSX(w http.ResponseWriter, filename string, write func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) valueGap(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Attribution.Breakdown(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type driftRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (s *Server) generateDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	start, err := parseTime(req.PeriodStart)
	if err != nil {
		fail(w, err)
		return
	}
	end, err := parseTime(req.PeriodEnd)
	if err != nil {
		fail(w, err)
		return
	}
	if end.Before(start) {
		fail(w, eris.Wrap(errBadRequest, "period_end is before period_start"))
		return
	}
	report, err := s.svc.Drift.Generate(r.Context(), chi.URLParam(r, "companyID"), start, end)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) getDriftReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Drift.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) viewDriftReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Drift.MarkViewed(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) exportDriftReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Drift.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("drift-%s.xlsx", report.ID), func(buf *bytes.Buffer) error {
		return export.WriteDriftReport(buf, report)
	})
}

func (s *Server) listMultiples(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.Store.ListMultiples(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if ms == nil {
		ms = []model.IndustryMultiple{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) exportMultiples(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.Store.ListMultiples(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeXLSX(w, "industry-multiples.xlsx", func(buf *bytes.Buffer) error {
		return export.WriteMultiples(buf, ms)
	})
}

type batchResponse struct {
	Multiple *model.IndustryMultiple `json:"multiple,omitempty"`
	Result   batch.Result            `json:"result"`
}

// writeBatch reports a batch run. A run cut short by the request context
// still returns its partial counts.
func writeBatch(w http.ResponseWriter, status int, m *model.IndustryMultiple, res batch.Result, err error) {
	if err != nil && res.Total == 0 {
		fail(w, err)
		return
	}
	writeJSON(w, status, batchResponse{Multiple: m, Result: res})
}

type createMultipleRequest struct {
	model.IndustryMultiple
	ActorUserID *string `json:"actor_user_id"`
}

func (s *Server) createMultiple(w http.ResponseWriter, r *http.Request) {
	var req createMultipleRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	m := req.IndustryMultiple
	if err := m.Validate(); err != nil {
		fail(w, eris.Wrap(errBadRequest, err.Error()))
		return
	}
	res, err := s.svc.Batch.OnMultipleCreated(r.Context(), &m, req.ActorUserID)
	writeBatch(w, http.StatusCreated, &m, res, err)
}

type actorRequest struct {
	ActorUserID *string `json:"actor_user_id"`
}

func (s *Server) deleteMultiple(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	res, err := s.svc.Batch.OnMultipleDeleted(r.Context(), chi.URLParam(r, "multipleID"), req.ActorUserID)
	writeBatch(w, http.StatusOK, nil, res, err)
}

func (s *Server) recalcMultiples(w http.ResponseWriter, r *http.Request) {
	var change batch.MultipleChange
	if err := decode(r, &change); err != nil {
		fail(w, err)
		return
	}
	if _, _, ok := change.Classification().MostSpecific(); !ok {
		fail(w, eris.Wrap(errBadRequest, "a classification code is required"))
		return
	}
	switch change.MultipleType {
	case "", model.MultipleEBITDA, model.MultipleRevenue:
	default:
		fail(w, eris.Wrapf(errBadRequest, "unknown multiple_type %q", change.MultipleType))
		return
	}
	res, err := s.svc.Batch.RecalcForMultipleChange(r.Context(), change)
	writeBatch(w, http.StatusOK, nil, res, err)
}

func (s *Server) restoreDefaults(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	res, err := s.svc.Batch.RestoreDefaults(r.Context(), req.ActorUserID)
	writeBatch(w, http.StatusOK, nil, res, err)
}

type taskStatusRequest struct {
	Status      model.TaskStatus `json:"status"`
	ActorUserID *string          `json:"actor_user_id"`
}

type taskStatusResponse struct {
	Task    *model.Task     `json:"task"`
	Outcome upgrade.Outcome `json:"outcome"`
}

func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request) {
	var req taskStatusRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	task, outcome, err := s.svc.Tasks.Transition(r.Context(), chi.URLParam(r, "taskID"), req.Status, req.ActorUserID)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse{Task: task, Outcome: outcome})
}

type answerRequest struct {
	QuestionID  string  `json:"question_id"`
	OptionID    string  `json:"option_id"`
	ActorUserID *string `json:"actor_user_id"`
}

func (s *Server) recordAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.QuestionID == "" || req.OptionID == "" {
		fail(w, eris.Wrap(errBadRequest, "question_id and option_id are required"))
		return
	}
	out, err := s.svc.Tasks.RecordAnswer(r.Context(), chi.URLParam(r, "companyID"), req.QuestionID, req.OptionID, req.ActorUserID)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
