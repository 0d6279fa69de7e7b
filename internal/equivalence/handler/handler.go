// Package handler wires the equivalence graph endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gradenorm/internal/equivalence/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/httputil"
	"gradenorm/pkg/requestcontext"
)

// Service defines the equivalence operations the handler exposes.
type Service interface {
	AddEquivalence(ctx context.Context, a, b id.SubjectID, stage id.LevelStage) error
	RemoveFromCycle(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) error
	EquivalentsOf(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) ([]id.SubjectID, error)
	Edges(ctx context.Context, stage id.LevelStage) ([]models.Edge, error)
}

// Handler wires equivalence endpoints to the equivalence service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an equivalence handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts equivalence endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/equivalences", h.HandleAdd)
	r.Get("/equivalences", h.HandleEdges)
	r.Get("/equivalences/{subjectID}", h.HandleEquivalents)
	r.Delete("/equivalences/{subjectID}", h.HandleRemove)
}

type addEquivalenceRequest struct {
	SubjectA   string `json:"subject_a"`
	SubjectB   string `json:"subject_b"`
	LevelStage int    `json:"level_stage"`
}

// HandleAdd handles POST /equivalences requests.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[addEquivalenceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := id.ParseSubjectID(req.SubjectA)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := id.ParseSubjectID(req.SubjectB)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stage, err := id.ParseLevelStage(req.LevelStage)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AddEquivalence(ctx, a, b, stage); err != nil {
		h.logger.ErrorContext(ctx, "equivalence addition failed",
			"request_id", requestID,
			"subject_a", a,
			"subject_b", b,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemove handles DELETE /equivalences/{subjectID}?levelStage=N requests.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	subjectID, stage, err := subjectAndStage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveFromCycle(r.Context(), subjectID, stage); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEquivalents handles GET /equivalences/{subjectID}?levelStage=N requests.
func (h *Handler) HandleEquivalents(w http.ResponseWriter, r *http.Request) {
	subjectID, stage, err := subjectAndStage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	equivalents, err := h.service.EquivalentsOf(r.Context(), subjectID, stage)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if equivalents == nil {
		equivalents = []id.SubjectID{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id":  subjectID,
		"level_stage": stage.Int(),
		"equivalents": equivalents,
	})
}

// HandleEdges handles GET /equivalences?levelStage=N requests.
func (h *Handler) HandleEdges(w http.ResponseWriter, r *http.Request) {
	stage, err := stageFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	edges, err := h.service.Edges(r.Context(), stage)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if edges == nil {
		edges = []models.Edge{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": edges})
}

func subjectAndStage(r *http.Request) (id.SubjectID, id.LevelStage, error) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		return id.SubjectID{}, 0, err
	}
	stage, err := stageFromQuery(r)
	if err != nil {
		return id.SubjectID{}, 0, err
	}
	return subjectID, stage, nil
}

func stageFromQuery(r *http.Request) (id.LevelStage, error) {
	raw := r.URL.Query().Get("levelStage")
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "query parameter 'levelStage' is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid level stage %q", raw)
	}
	return id.ParseLevelStage(n)
}
