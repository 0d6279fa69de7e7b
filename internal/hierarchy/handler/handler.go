// Package handler wires the hierarchy endpoints: institution and subject
// registries, enrollments, exams, and the student history view.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/httputil"
	"gradenorm/pkg/requestcontext"
)

// Service defines the hierarchy operations the handler exposes.
type Service interface {
	RegisterInstitution(ctx context.Context, name, countryISO3, systemID string) (*models.Institution, error)
	GetInstitution(ctx context.Context, instID id.InstitutionID) (*models.Institution, error)
	ListInstitutions(ctx context.Context) ([]models.Institution, error)
	ListInstitutionsByCountry(ctx context.Context, iso3 string) ([]models.Institution, error)

	RegisterSubject(ctx context.Context, name string, stage id.LevelStage) (*models.Subject, error)
	GetSubject(ctx context.Context, subjID id.SubjectID) (*models.Subject, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)

	EnrollInstitution(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, start time.Time, end *time.Time) (*models.InstitutionEnrollment, error)
	EnrollSubject(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, subjectID id.SubjectID, start time.Time, end *time.Time) (*models.SubjectEnrollment, error)
	RecordExam(ctx context.Context, seID id.SubjectEnrollmentID, name string, examType models.ExamType, originSystem string, originValue id.GradeValue, date time.Time) (*models.ExamInstance, error)
	GetExam(ctx context.Context, examID id.ExamID) (*models.ExamInstance, error)
	ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamInstance, error)
	History(ctx context.Context, studentID id.StudentID) ([]models.HistoryYear, error)
}

// Handler wires hierarchy endpoints to the hierarchy service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a hierarchy handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts hierarchy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/institutions", h.HandleRegisterInstitution)
	r.Get("/institutions", h.HandleListInstitutions)
	r.Get("/institutions/{institutionID}", h.HandleGetInstitution)

	r.Post("/subjects", h.HandleRegisterSubject)
	r.Get("/subjects", h.HandleListSubjects)
	r.Get("/subjects/{subjectID}", h.HandleGetSubject)

	r.Post("/enrollments", h.HandleEnrollInstitution)
	r.Post("/enrollments/subjects", h.HandleEnrollSubject)

	r.Post("/exams", h.HandleRecordExam)
	r.Get("/exams", h.HandleListExams)
	r.Get("/exams/{examID}", h.HandleGetExam)

	r.Get("/students/{studentID}/history", h.HandleHistory)
}

// HandleRegisterInstitution handles POST /institutions requests.
func (h *Handler) HandleRegisterInstitution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerInstitutionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	inst, err := h.service.RegisterInstitution(ctx, req.Name, req.CountryISO3, req.SystemID)
	if err != nil {
		h.logger.ErrorContext(ctx, "institution registration failed",
			"request_id", requestID,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inst)
}

// HandleListInstitutions handles GET /institutions, optionally filtered by
// ?country=ISO3.
func (h *Handler) HandleListInstitutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		out []models.Institution
		err error
	)
	if country := r.URL.Query().Get("country"); country != "" {
		out, err = h.service.ListInstitutionsByCountry(ctx, country)
	} else {
		out, err = h.service.ListInstitutions(ctx)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[models.Institution]{Items: out})
}

func (h *Handler) HandleGetInstitution(w http.ResponseWriter, r *http.Request) {
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "institutionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inst, err := h.service.GetInstitution(r.Context(), instID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

// HandleRegisterSubject handles POST /subjects requests.
func (h *Handler) HandleRegisterSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerSubjectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	stage, err := id.ParseLevelStage(req.LevelStage)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subj, err := h.service.RegisterSubject(ctx, req.Name, stage)
	if err != nil {
		h.logger.ErrorContext(ctx, "subject registration failed",
			"request_id", requestID,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, subj)
}

func (h *Handler) HandleListSubjects(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListSubjects(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[models.Subject]{Items: out})
}

func (h *Handler) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	subjID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subj, err := h.service.GetSubject(r.Context(), subjID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subj)
}

// HandleEnrollInstitution handles POST /enrollments requests.
func (h *Handler) HandleEnrollInstitution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[enrollInstitutionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	parsed, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.service.EnrollInstitution(ctx, parsed.studentID, parsed.institutionID, parsed.start, parsed.end)
	if err != nil {
		h.logger.ErrorContext(ctx, "institution enrollment failed",
			"request_id", requestID,
			"student_id", parsed.studentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

// HandleEnrollSubject handles POST /enrollments/subjects requests.
func (h *Handler) HandleEnrollSubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[enrollSubjectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	parsed, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	se, err := h.service.EnrollSubject(ctx, parsed.studentID, parsed.institutionID, parsed.subjectID, parsed.start, parsed.end)
	if err != nil {
		h.logger.ErrorContext(ctx, "subject enrollment failed",
			"request_id", requestID,
			"student_id", parsed.studentID,
			"subject_id", parsed.subjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, se)
}

// HandleRecordExam handles POST /exams requests.
func (h *Handler) HandleRecordExam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[recordExamRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	parsed, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	exam, err := h.service.RecordExam(ctx, parsed.subjectEnrollmentID, req.Name,
		models.ExamType(req.Type), req.OriginSystem, parsed.value, parsed.date)
	if err != nil {
		h.logger.ErrorContext(ctx, "exam recording failed",
			"request_id", requestID,
			"subject_enrollment_id", parsed.subjectEnrollmentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, exam)
}

// HandleListExams handles GET /exams with student, subject, institution,
// from, and to query parameters.
func (h *Handler) HandleListExams(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.ListExams(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[models.ExamInstance]{Items: out})
}

func (h *Handler) HandleGetExam(w http.ResponseWriter, r *http.Request) {
	examID, err := id.ParseExamID(chi.URLParam(r, "examID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	exam, err := h.service.GetExam(r.Context(), examID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, exam)
}

// HandleHistory handles GET /students/{studentID}/history requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	studentID, err := id.ParseStudentID(chi.URLParam(r, "studentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	years, err := h.service.History(r.Context(), studentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{StudentID: studentID, Years: years})
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type historyResponse struct {
	StudentID id.StudentID         `json:"student_id"`
	Years     []models.HistoryYear `json:"years"`
}

func filterFromQuery(r *http.Request) (models.ExamFilter, error) {
	q := r.URL.Query()
	var filter models.ExamFilter

	if raw := q.Get("student"); raw != "" {
		studentID, err := id.ParseStudentID(raw)
		if err != nil {
			return models.ExamFilter{}, err
		}
		filter.StudentID = &studentID
	}
	if raw := q.Get("subject"); raw != "" {
		subjectID, err := id.ParseSubjectID(raw)
		if err != nil {
			return models.ExamFilter{}, err
		}
		filter.SubjectID = &subjectID
	}
	if raw := q.Get("institution"); raw != "" {
		instID, err := id.ParseInstitutionID(raw)
		if err != nil {
			return models.ExamFilter{}, err
		}
		filter.InstitutionID = &instID
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseDate(raw, "from")
		if err != nil {
			return models.ExamFilter{}, err
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseDate(raw, "to")
		if err != nil {
			return models.ExamFilter{}, err
		}
		filter.To = &to
	}
	return filter, nil
}

func parseDate(raw, field string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"invalid %s date %q, expected YYYY-MM-DD", field, raw)
	}
	return t, nil
}
