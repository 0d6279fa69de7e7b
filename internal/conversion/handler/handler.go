// Package handler wires the conversion endpoints: convert, trail, and
// latest-conversion lookup.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradenorm/internal/conversion/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/httputil"
	"gradenorm/pkg/requestcontext"
)

// Service defines the conversion operations the handler exposes.
type Service interface {
	Convert(ctx context.Context, examID id.ExamID, toSystem string, rule models.RuleContext) (*models.ConversionRecord, error)
	Trail(ctx context.Context, examID id.ExamID) ([]models.ConversionRecord, error)
	LatestConversion(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, error)
}

// Handler wires conversion endpoints to the conversion service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a conversion handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts conversion endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/grades/convert", h.HandleConvert)
	r.Get("/grades/{examID}/conversions", h.HandleTrail)
	r.Get("/grades/{examID}/conversions/latest", h.HandleLatest)
}

type convertRequest struct {
	ExamID   string             `json:"exam_id"`
	ToSystem string             `json:"to_system"`
	Rule     models.RuleContext `json:"rule"`
}

// HandleConvert handles POST /grades/convert requests.
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[convertRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	examID, err := id.ParseExamID(req.ExamID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Convert(ctx, examID, req.ToSystem, req.Rule)
	if err != nil {
		h.logger.ErrorContext(ctx, "grade conversion failed",
			"request_id", requestID,
			"exam_id", examID,
			"to_system", req.ToSystem,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "grade converted",
		"request_id", requestID,
		"exam_id", examID,
		"to_system", req.ToSystem,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// HandleTrail handles GET /grades/{examID}/conversions requests.
func (h *Handler) HandleTrail(w http.ResponseWriter, r *http.Request) {
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recs, err := h.service.Trail(r.Context(), examID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": recs})
}

// HandleLatest handles GET /grades/{examID}/conversions/latest?toSystem=ID.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	toSystem := r.URL.Query().Get("toSystem")
	if toSystem == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "query parameter 'toSystem' is required"))
		return
	}
	rec, err := h.service.LatestConversion(r.Context(), examID, toSystem)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
