// Package handler wires the aggregation report endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradenorm/internal/aggregation/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/httputil"
	"gradenorm/pkg/requestcontext"
)

// Service defines the aggregation operations the handler exposes.
type Service interface {
	Average(ctx context.Context, country string, institutionID *id.InstitutionID, targetSystem string) (*models.AggregateResult, error)
	AverageBySubject(ctx context.Context, country string, institutionID *id.InstitutionID, targetSystem string) ([]models.AggregateResult, error)
}

// Handler wires report endpoints to the aggregation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an aggregation handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts report endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reports/averages", h.HandleAverage)
	r.Get("/reports/averages/subjects", h.HandleAverageBySubject)
}

// HandleAverage handles GET /reports/averages?country&institutionId&system.
func (h *Handler) HandleAverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Average(ctx, scope.country, scope.institutionID, scope.target)
	if err != nil {
		h.logger.ErrorContext(ctx, "aggregation failed",
			"request_id", requestID,
			"country", scope.country,
			"target_system", scope.target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "average computed",
		"request_id", requestID,
		"country", scope.country,
		"exams_read", result.ExamsRead,
		"exams_used", result.ExamsUsedInAverage,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleAverageBySubject handles GET /reports/averages/subjects.
func (h *Handler) HandleAverageBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	scope, err := scopeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	results, err := h.service.AverageBySubject(ctx, scope.country, scope.institutionID, scope.target)
	if err != nil {
		h.logger.ErrorContext(ctx, "per-subject aggregation failed",
			"request_id", requestID,
			"country", scope.country,
			"target_system", scope.target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": results})
}

type reportScope struct {
	country       string
	institutionID *id.InstitutionID
	target        string
}

func scopeFromQuery(r *http.Request) (reportScope, error) {
	q := r.URL.Query()
	scope := reportScope{
		country: q.Get("country"),
		target:  q.Get("system"),
	}
	if scope.country == "" {
		return reportScope{}, dErrors.New(dErrors.CodeBadRequest, "query parameter 'country' is required")
	}
	if scope.target == "" {
		return reportScope{}, dErrors.New(dErrors.CodeBadRequest, "query parameter 'system' is required")
	}
	if raw := q.Get("institutionId"); raw != "" {
		instID, err := id.ParseInstitutionID(raw)
		if err != nil {
			return reportScope{}, err
		}
		scope.institutionID = &instID
	}
	return scope, nil
}
