// Package store provides the persistence backends for the temporal
// hierarchy. The memory store backs unit tests and single-node deployments;
// the postgres store is the production backend.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
)

// InMemory keeps the containment tree in maps. Overlap-checked enrollment
// writes are serialized per student so two racing enrollments cannot both
// pass validation.
type InMemory struct {
	mu           sync.RWMutex
	institutions map[id.InstitutionID]models.Institution
	subjects     map[id.SubjectID]models.Subject
	enrollments  map[id.EnrollmentID]models.InstitutionEnrollment
	subjEnrolls  map[id.SubjectEnrollmentID]models.SubjectEnrollment
	exams        map[id.ExamID]models.ExamInstance

	studentMu sync.Mutex
	students  map[id.StudentID]*sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		institutions: make(map[id.InstitutionID]models.Institution),
		subjects:     make(map[id.SubjectID]models.Subject),
		enrollments:  make(map[id.EnrollmentID]models.InstitutionEnrollment),
		subjEnrolls:  make(map[id.SubjectEnrollmentID]models.SubjectEnrollment),
		exams:        make(map[id.ExamID]models.ExamInstance),
		students:     make(map[id.StudentID]*sync.Mutex),
	}
}

// studentLock returns the per-student write lock, creating it on first use.
func (s *InMemory) studentLock(studentID id.StudentID) *sync.Mutex {
	s.studentMu.Lock()
	defer s.studentMu.Unlock()
	if l, ok := s.students[studentID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.students[studentID] = l
	return l
}

func (s *InMemory) CreateInstitution(_ context.Context, inst *models.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.institutions {
		if strings.EqualFold(existing.Name, inst.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.institutions[inst.ID] = *inst
	return nil
}

func (s *InMemory) GetInstitution(_ context.Context, instID id.InstitutionID) (*models.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.institutions[instID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &inst, nil
}

func (s *InMemory) ListInstitutions(_ context.Context) ([]models.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Institution, 0, len(s.institutions))
	for _, inst := range s.institutions {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b models.Institution) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *InMemory) ListInstitutionsByCountry(_ context.Context, iso3 string) ([]models.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Institution
	for _, inst := range s.institutions {
		if inst.CountryISO3 == iso3 {
			out = append(out, inst)
		}
	}
	slices.SortFunc(out, func(a, b models.Institution) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *InMemory) CreateSubject(_ context.Context, subj *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subjects {
		if strings.EqualFold(existing.Name, subj.Name) && existing.LevelStage == subj.LevelStage {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.subjects[subj.ID] = *subj
	return nil
}

func (s *InMemory) GetSubject(_ context.Context, subjID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[subjID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &subj, nil
}

func (s *InMemory) ListSubjects(_ context.Context) ([]models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		out = append(out, subj)
	}
	slices.SortFunc(out, func(a, b models.Subject) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// CreateEnrollmentIfNoOverlap inserts an institution enrollment unless one
// for the same (student, institution) intersects its interval. Check and
// insert happen under the student's write lock.
func (s *InMemory) CreateEnrollmentIfNoOverlap(_ context.Context, e *models.InstitutionEnrollment) error {
	lock := s.studentLock(e.StudentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.enrollments {
		if existing.StudentID == e.StudentID &&
			existing.InstitutionID == e.InstitutionID &&
			existing.Interval.Overlaps(e.Interval) {
			return sentinel.ErrConflict
		}
	}
	s.enrollments[e.ID] = *e
	return nil
}

// FindCoveringEnrollment returns the (student, institution) enrollment whose
// interval covers iv, or ErrNotFound.
func (s *InMemory) FindCoveringEnrollment(_ context.Context, studentID id.StudentID, instID id.InstitutionID, iv models.Interval) (*models.InstitutionEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.InstitutionID == instID && e.Interval.Covers(iv) {
			found := e
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateSubjectEnrollment(_ context.Context, se *models.SubjectEnrollment) error {
	lock := s.studentLock(se.StudentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjEnrolls[se.ID] = *se
	return nil
}

func (s *InMemory) GetSubjectEnrollment(_ context.Context, seID id.SubjectEnrollmentID) (*models.SubjectEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.subjEnrolls[seID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &se, nil
}

func (s *InMemory) ListSubjectEnrollments(_ context.Context, studentID id.StudentID) ([]models.SubjectEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SubjectEnrollment
	for _, se := range s.subjEnrolls {
		if se.StudentID == studentID {
			out = append(out, se)
		}
	}
	slices.SortFunc(out, func(a, b models.SubjectEnrollment) int {
		return a.Interval.Start.Compare(b.Interval.Start)
	})
	return out, nil
}

// ListSubjectEnrollmentsBySubject returns a student's enrollments in one
// subject, oldest first. Used for window clamping in exam listings.
func (s *InMemory) ListSubjectEnrollmentsBySubject(_ context.Context, studentID id.StudentID, subjectID id.SubjectID) ([]models.SubjectEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SubjectEnrollment
	for _, se := range s.subjEnrolls {
		if se.StudentID == studentID && se.SubjectID == subjectID {
			out = append(out, se)
		}
	}
	slices.SortFunc(out, func(a, b models.SubjectEnrollment) int {
		return a.Interval.Start.Compare(b.Interval.Start)
	})
	return out, nil
}

func (s *InMemory) CreateExam(_ context.Context, e *models.ExamInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = *e
	return nil
}

func (s *InMemory) GetExam(_ context.Context, examID id.ExamID) (*models.ExamInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exams[examID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

// ListExams returns matching exams ordered by date ascending, then creation
// time for a stable tiebreak.
func (s *InMemory) ListExams(_ context.Context, filter models.ExamFilter) ([]models.ExamInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExamInstance
	for _, e := range s.exams {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b models.ExamInstance) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	out = page(out, filter.Offset, filter.Limit)
	return out, nil
}

func page[T any](in []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
