package service

import (
	"context"
	"iter"
	"slices"
	"time"

	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

// examSeqPageSize bounds how many exams one store round trip fetches while
// iterating lazily.
const examSeqPageSize = 200

// ListExams returns matching exams ordered by date ascending. When the query
// names a student and subject, the caller's window is clamped to each of the
// student's subject enrollments, so a window wider than the enrollment never
// leaks exams that would be out of bounds for it.
func (s *Service) ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamInstance, error) {
	start := time.Now()
	defer s.observeList(start)

	filters, err := s.clampedFilters(ctx, filter)
	if err != nil {
		return nil, err
	}

	var out []models.ExamInstance
	for _, f := range filters {
		exams, err := s.store.ListExams(ctx, f)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exams")
		}
		out = append(out, exams...)
	}
	// Enrollments in the same subject may run concurrently at different
	// institutions, so the per-enrollment slices can interleave in time.
	if len(filters) > 1 {
		slices.SortFunc(out, compareExams)
	}
	return out, nil
}

func compareExams(a, b models.ExamInstance) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// ExamSeq returns a lazy, finite, restartable sequence over the same
// selection as ListExams, in the same order. Each iteration re-pages through
// the store, so a restart observes a fresh read; nothing is cached here.
// With several subject enrollments in play the per-enrollment page streams
// are merged by (date, creation time) as they are consumed.
func (s *Service) ExamSeq(ctx context.Context, filter models.ExamFilter) iter.Seq2[models.ExamInstance, error] {
	return func(yield func(models.ExamInstance, error) bool) {
		filters, err := s.clampedFilters(ctx, filter)
		if err != nil {
			yield(models.ExamInstance{}, err)
			return
		}

		cursors := make([]*examCursor, 0, len(filters))
		for _, f := range filters {
			f.Limit = examSeqPageSize
			f.Offset = 0
			c := &examCursor{filter: f}
			if err := c.refill(ctx, s.store); err != nil {
				yield(models.ExamInstance{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exams"))
				return
			}
			cursors = append(cursors, c)
		}

		for {
			best := -1
			for i, c := range cursors {
				h := c.head()
				if h == nil {
					continue
				}
				if best == -1 || compareExams(*h, *cursors[best].head()) < 0 {
					best = i
				}
			}
			if best == -1 {
				return
			}
			c := cursors[best]
			e := *c.head()
			if err := c.advance(ctx, s.store); err != nil {
				yield(models.ExamInstance{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exams"))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// examCursor pages through one store filter, exposing the next unconsumed
// exam so streams can be merged without buffering more than a page each.
type examCursor struct {
	filter models.ExamFilter
	page   []models.ExamInstance
	pos    int
	done   bool
}

func (c *examCursor) head() *models.ExamInstance {
	if c.pos >= len(c.page) {
		return nil
	}
	return &c.page[c.pos]
}

func (c *examCursor) advance(ctx context.Context, store Store) error {
	c.pos++
	if c.pos >= len(c.page) && !c.done {
		return c.refill(ctx, store)
	}
	return nil
}

func (c *examCursor) refill(ctx context.Context, store Store) error {
	page, err := store.ListExams(ctx, c.filter)
	if err != nil {
		return err
	}
	c.page = page
	c.pos = 0
	c.filter.Offset += examSeqPageSize
	if len(page) < examSeqPageSize {
		c.done = true
	}
	return nil
}

// clampedFilters expands a caller filter into one store filter per relevant
// subject enrollment, window-clamped to the enrollment's own bounds. Without
// a (student, subject) pair there is nothing to clamp against and the filter
// passes through unchanged.
func (s *Service) clampedFilters(ctx context.Context, filter models.ExamFilter) ([]models.ExamFilter, error) {
	if filter.StudentID == nil || filter.SubjectID == nil {
		return []models.ExamFilter{filter}, nil
	}

	enrollments, err := s.store.ListSubjectEnrollmentsBySubject(ctx, *filter.StudentID, *filter.SubjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject enrollments")
	}

	var out []models.ExamFilter
	for _, se := range enrollments {
		if filter.InstitutionID != nil && se.InstitutionID != *filter.InstitutionID {
			continue
		}
		f := filter
		seID := se.ID
		f.SubjectEnrollmentID = &seID

		from := se.Interval.Start
		if f.From != nil && f.From.After(from) {
			from = *f.From
		}
		f.From = &from

		if se.Interval.End != nil {
			to := *se.Interval.End
			if f.To == nil || f.To.After(to) {
				f.To = &to
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// History groups a student's subject enrollments by starting year, each with
// its exams, oldest year first. This is the read model behind the academic
// history view.
func (s *Service) History(ctx context.Context, studentID id.StudentID) ([]models.HistoryYear, error) {
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "student id is required")
	}
	enrollments, err := s.store.ListSubjectEnrollments(ctx, studentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list subject enrollments")
	}

	byYear := make(map[int][]models.HistorySubject)
	var years []int
	for _, se := range enrollments {
		seID := se.ID
		exams, err := s.store.ListExams(ctx, models.ExamFilter{SubjectEnrollmentID: &seID})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list exams")
		}
		year := se.Interval.Start.Year()
		if _, seen := byYear[year]; !seen {
			years = append(years, year)
		}
		byYear[year] = append(byYear[year], models.HistorySubject{Enrollment: se, Exams: exams})
	}

	out := make([]models.HistoryYear, 0, len(years))
	for _, year := range years {
		out = append(out, models.HistoryYear{Year: year, Subjects: byYear[year]})
	}
	return out, nil
}

func (s *Service) observeList(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveListExams(start)
	}
}
