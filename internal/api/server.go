// Package api exposes the valuation engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/attribution"
	"github.com/sells-group/valuation-cli/internal/batch"
	"github.com/sells-group/valuation-cli/internal/drift"
	"github.com/sells-group/valuation-cli/internal/recalc"
	"github.com/sells-group/valuation-cli/internal/store"
	"github.com/sells-group/valuation-cli/internal/upgrade"
)

// Services are the engine components the handlers call.
type Services struct {
	Store       store.Store
	Recalc      *recalc.Recalculator
	Reader      *recalc.Reader
	Batch       *batch.Coordinator
	Attribution *attribution.Service
	Drift       *drift.Reporter
	Tasks       *upgrade.Propagator
}

// Server holds the HTTP handlers.
type Server struct {
	svc            Services
	allowedOrigins []string
}

// New creates a Server. An empty allowedOrigins list allows any origin.
func New(svc Services, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{svc: svc, allowedOrigins: allowedOrigins}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.Post("/recalc", s.recalcCompany)
		r.Get("/snapshots", s.listSnapshots)
		r.Get("/snapshots/latest", s.latestSnapshot)
		r.Get("/snapshots/export", s.exportSnapshots)
		r.Get("/snapshots/{snapshotID}", s.getSnapshot)
		r.Get("/value-gap", s.valueGap)
		r.Post("/drift", s.generateDrift)
		r.Post("/responses", s.recordAnswer)
	})

	r.Route("/drift-reports/{reportID}", func(r chi.Router) {
		r.Get("/", s.getDriftReport)
		r.Post("/view", s.viewDriftReport)
		r.Get("/export", s.exportDriftReport)
	})

	r.Route("/multiples", func(r chi.Router) {
		r.Get("/", s.listMultiples)
		r.Post("/", s.createMultiple)
		r.Get("/export", s.exportMultiples)
		r.Post("/recalc", s.recalcMultiples)
		r.Post("/restore-defaults", s.restoreDefaults)
		r.Delete("/{multipleID}", s.deleteMultiple)
	})

	r.Post("/tasks/{taskID}/status", s.taskStatus)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps store and domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, drift.ErrNoSnapshots):
		return http.StatusNotFound
	case errors.Is(err, upgrade.ErrInvalidStatus), errors.Is(err, store.ErrInvalidResponse), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrapf(errBadRequest, "decode body: %v", err)
	}
	return nil
}
