// Package service implements the temporal hierarchy: the containment tree
// binding institution enrollments, subject enrollments, and exam instances.
//
// Containment is checked strictly at write time. Once a record is accepted
// it is trusted by every read path, which keeps range queries cheap and
// concentrates consistency enforcement at the write boundary.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradenorm/internal/audit"
	"gradenorm/internal/catalog"
	hmetrics "gradenorm/internal/hierarchy/metrics"
	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/requestcontext"
)

// Store is the persistence contract for the containment tree. Overlap-checked
// writes must be atomic and serialized per student by the implementation.
type Store interface {
	CreateInstitution(ctx context.Context, inst *models.Institution) error
	GetInstitution(ctx context.Context, instID id.InstitutionID) (*models.Institution, error)
	ListInstitutions(ctx context.Context) ([]models.Institution, error)
	ListInstitutionsByCountry(ctx context.Context, iso3 string) ([]models.Institution, error)

	CreateSubject(ctx context.Context, subj *models.Subject) error
	GetSubject(ctx context.Context, subjID id.SubjectID) (*models.Subject, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)

	CreateEnrollmentIfNoOverlap(ctx context.Context, e *models.InstitutionEnrollment) error
	FindCoveringEnrollment(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, iv models.Interval) (*models.InstitutionEnrollment, error)

	CreateSubjectEnrollment(ctx context.Context, se *models.SubjectEnrollment) error
	GetSubjectEnrollment(ctx context.Context, seID id.SubjectEnrollmentID) (*models.SubjectEnrollment, error)
	ListSubjectEnrollments(ctx context.Context, studentID id.StudentID) ([]models.SubjectEnrollment, error)
	ListSubjectEnrollmentsBySubject(ctx context.Context, studentID id.StudentID, subjectID id.SubjectID) ([]models.SubjectEnrollment, error)

	CreateExam(ctx context.Context, e *models.ExamInstance) error
	GetExam(ctx context.Context, examID id.ExamID) (*models.ExamInstance, error)
	ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamInstance, error)
}

// Service orchestrates hierarchy writes and reads.
type Service struct {
	store   Store
	catalog *catalog.Catalog
	logger  *slog.Logger
	metrics *hmetrics.Metrics
	audit   audit.Publisher
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *hmetrics.Metrics
	audit   audit.Publisher
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *hmetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(c *serviceConfig) { c.audit = p }
}

func New(store Store, cat *catalog.Catalog, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Service{
		store:   store,
		catalog: cat,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		audit:   cfg.audit,
	}
}

// RegisterInstitution adds an institution to the registry. The native system
// must exist in the catalog and be one of the country's systems.
func (s *Service) RegisterInstitution(ctx context.Context, name, countryISO3, systemID string) (*models.Institution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "institution name is required")
	}
	countrySystems := s.catalog.SystemsForCountry(countryISO3)
	if len(countrySystems) == 0 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown country %q", countryISO3)
	}
	if systemID == "" {
		systemID = countrySystems[0]
	}
	if _, err := s.catalog.Require(systemID); err != nil {
		return nil, err
	}

	inst := &models.Institution{
		ID:          id.InstitutionID(uuid.New()),
		Name:        name,
		CountryISO3: countryISO3,
		SystemID:    systemID,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.store.CreateInstitution(ctx, inst); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "institution name %q is taken", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create institution")
	}
	s.emit(ctx, audit.Event{
		Operation:  audit.OpInstitutionCreated,
		EntityType: "institution",
		EntityID:   inst.ID.String(),
	})
	return inst, nil
}

// RegisterSubject adds a subject at a level stage.
func (s *Service) RegisterSubject(ctx context.Context, name string, stage id.LevelStage) (*models.Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject name is required")
	}
	if _, err := id.ParseLevelStage(stage.Int()); err != nil {
		return nil, err
	}

	subj := &models.Subject{
		ID:         id.SubjectID(uuid.New()),
		Name:       name,
		LevelStage: stage,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.CreateSubject(ctx, subj); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"subject %q already exists at level stage %d", name, stage.Int())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subject")
	}
	s.emit(ctx, audit.Event{
		Operation:  audit.OpSubjectCreated,
		EntityType: "subject",
		EntityID:   subj.ID.String(),
	})
	return subj, nil
}

func (s *Service) GetInstitution(ctx context.Context, instID id.InstitutionID) (*models.Institution, error) {
	inst, err := s.store.GetInstitution(ctx, instID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "institution %s not found", instID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	return inst, nil
}

func (s *Service) ListInstitutions(ctx context.Context) ([]models.Institution, error) {
	out, err := s.store.ListInstitutions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list institutions")
	}
	return out, nil
}

func (s *Service) ListInstitutionsByCountry(ctx context.Context, iso3 string) ([]models.Institution, error) {
	out, err := s.store.ListInstitutionsByCountry(ctx, iso3)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list institutions")
	}
	return out, nil
}

func (s *Service) GetSubject(ctx context.Context, subjID id.SubjectID) (*models.Subject, error) {
	subj, err := s.store.GetSubject(ctx, subjID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "subject %s not found", subjID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return subj, nil
}

func (s *Service) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	out, err := s.store.ListSubjects(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list subjects")
	}
	return out, nil
}

// EnrollInstitution creates an institution enrollment for a student. Fails
// with invalid_range on an inverted interval and with overlap when an
// enrollment for the same (student, institution) intersects it.
func (s *Service) EnrollInstitution(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, start time.Time, end *time.Time) (*models.InstitutionEnrollment, error) {
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "student id is required")
	}
	iv := models.Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		s.rejection(dErrors.CodeOf(err))
		return nil, err
	}
	if _, err := s.GetInstitution(ctx, instID); err != nil {
		return nil, err
	}

	e := &models.InstitutionEnrollment{
		ID:            id.EnrollmentID(uuid.New()),
		StudentID:     studentID,
		InstitutionID: instID,
		Interval:      iv,
		CreatedAt:     requestcontext.Now(ctx),
	}
	if err := s.store.CreateEnrollmentIfNoOverlap(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.rejection(dErrors.CodeOverlap)
			return nil, dErrors.Newf(dErrors.CodeOverlap,
				"student %s already has an enrollment at institution %s overlapping %s",
				studentID, instID, formatInterval(iv))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create enrollment")
	}

	s.incEnrollments()
	s.emit(ctx, audit.Event{
		Operation:  audit.OpInstitutionEnrolled,
		EntityType: "institution_enrollment",
		EntityID:   e.ID.String(),
		Detail: map[string]string{
			"student_id":     studentID.String(),
			"institution_id": instID.String(),
		},
	})
	return e, nil
}

// EnrollSubject creates a subject enrollment owned by the institution
// enrollment that covers its interval. Fails with no_institution_coverage
// when no such enrollment exists.
func (s *Service) EnrollSubject(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, subjectID id.SubjectID, start time.Time, end *time.Time) (*models.SubjectEnrollment, error) {
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "student id is required")
	}
	iv := models.Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		s.rejection(dErrors.CodeOf(err))
		return nil, err
	}
	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	owner, err := s.store.FindCoveringEnrollment(ctx, studentID, instID, iv)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.rejection(dErrors.CodeNoInstitutionCoverage)
			return nil, dErrors.Newf(dErrors.CodeNoInstitutionCoverage,
				"no enrollment of student %s at institution %s covers %s",
				studentID, instID, formatInterval(iv))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve covering enrollment")
	}

	se := &models.SubjectEnrollment{
		ID:            id.SubjectEnrollmentID(uuid.New()),
		StudentID:     studentID,
		InstitutionID: instID,
		SubjectID:     subjectID,
		EnrollmentID:  owner.ID,
		Interval:      iv,
		CreatedAt:     requestcontext.Now(ctx),
	}
	if err := s.store.CreateSubjectEnrollment(ctx, se); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subject enrollment")
	}

	s.incSubjectEnrollments()
	s.emit(ctx, audit.Event{
		Operation:  audit.OpSubjectEnrolled,
		EntityType: "subject_enrollment",
		EntityID:   se.ID.String(),
		Detail: map[string]string{
			"student_id": studentID.String(),
			"subject_id": subjectID.String(),
		},
	})
	return se, nil
}

// RecordExam captures a grade against a subject enrollment. The exam date
// must fall inside the enrollment's interval; an open end stands in for
// today. An empty origin system defaults to the institution's native system.
func (s *Service) RecordExam(ctx context.Context, seID id.SubjectEnrollmentID, name string, examType models.ExamType, originSystem string, originValue id.GradeValue, date time.Time) (*models.ExamInstance, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "exam name is required")
	}

	se, err := s.store.GetSubjectEnrollment(ctx, seID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "subject enrollment %s not found", seID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject enrollment")
	}

	today := requestcontext.Now(ctx)
	if !se.Interval.ContainsDate(date, today) {
		s.rejection(dErrors.CodeDateOutOfRange)
		return nil, dErrors.Newf(dErrors.CodeDateOutOfRange,
			"exam date %s outside subject enrollment %s interval %s",
			date.Format(time.DateOnly), seID, formatInterval(se.Interval))
	}

	if originSystem == "" {
		inst, err := s.GetInstitution(ctx, se.InstitutionID)
		if err != nil {
			return nil, err
		}
		originSystem = inst.SystemID
	}
	system, err := s.catalog.Require(originSystem)
	if err != nil {
		return nil, err
	}
	// Grade field typing only: ordinal systems take labels, the rest take
	// numbers. Whether the value is inside the system's domain is decided at
	// conversion time, not capture time.
	if originValue.IsLabel() != (system.Kind == catalog.KindOrdinal) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"grade value %s does not fit the %s system %s", originValue, system.Kind, originSystem)
	}

	exam := &models.ExamInstance{
		ID:                  id.ExamID(uuid.New()),
		StudentID:           se.StudentID,
		SubjectEnrollmentID: se.ID,
		SubjectID:           se.SubjectID,
		InstitutionID:       se.InstitutionID,
		Name:                name,
		Type:                examType,
		OriginSystem:        originSystem,
		OriginValue:         originValue,
		Date:                date,
		CreatedAt:           today,
	}
	if err := s.store.CreateExam(ctx, exam); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record exam")
	}

	s.incExams()
	s.emit(ctx, audit.Event{
		Operation:  audit.OpExamRecorded,
		EntityType: "exam_instance",
		EntityID:   exam.ID.String(),
		Detail: map[string]string{
			"student_id":    se.StudentID.String(),
			"subject_id":    se.SubjectID.String(),
			"origin_system": originSystem,
		},
	})
	return exam, nil
}

func (s *Service) GetExam(ctx context.Context, examID id.ExamID) (*models.ExamInstance, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "exam %s not found", examID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load exam")
	}
	return e, nil
}

// --- nil-safe helpers ---

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"operation", string(event.Operation),
			"entity_id", event.EntityID,
			"error", err)
	}
}

func (s *Service) incEnrollments() {
	if s.metrics != nil {
		s.metrics.EnrollmentsCreated.Inc()
	}
}

func (s *Service) incSubjectEnrollments() {
	if s.metrics != nil {
		s.metrics.SubjectEnrollmentsCreated.Inc()
	}
}

func (s *Service) incExams() {
	if s.metrics != nil {
		s.metrics.ExamsRecorded.Inc()
	}
}

func (s *Service) rejection(code dErrors.Code) {
	if s.metrics != nil {
		s.metrics.IncrementRejection(string(code))
	}
}

func formatInterval(iv models.Interval) string {
	if iv.End == nil {
		return "[" + iv.Start.Format(time.DateOnly) + ", ongoing)"
	}
	return "[" + iv.Start.Format(time.DateOnly) + ", " + iv.End.Format(time.DateOnly) + "]"
}
