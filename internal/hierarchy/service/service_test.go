package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gradenorm/internal/audit"
	auditstore "gradenorm/internal/audit/store"
	"gradenorm/internal/catalog"
	"gradenorm/internal/hierarchy/models"
	hstore "gradenorm/internal/hierarchy/store"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/requestcontext"
)

type HierarchySuite struct {
	suite.Suite
	store   *hstore.InMemory
	events  *auditstore.InMemory
	service *Service

	student id.StudentID
	inst    *models.Institution
	subject *models.Subject
}

func TestHierarchySuite(t *testing.T) {
	suite.Run(t, new(HierarchySuite))
}

func (s *HierarchySuite) SetupTest() {
	s.store = hstore.NewInMemory()
	s.events = auditstore.NewInMemory()
	s.service = New(s.store, catalog.Default(),
		WithAuditPublisher(audit.NewStorePublisher(s.events)))

	ctx := context.Background()
	s.student = id.StudentID(uuid.New())

	var err error
	s.inst, err = s.service.RegisterInstitution(ctx, "Universidad de Buenos Aires", "ARG", "")
	s.Require().NoError(err)
	s.subject, err = s.service.RegisterSubject(ctx, "Mathematics", 13)
	s.Require().NoError(err)
}

func d(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dp(year int, month time.Month, day int) *time.Time {
	t := d(year, month, day)
	return &t
}

func (s *HierarchySuite) TestRegisterInstitution() {
	ctx := context.Background()

	s.Run("defaults to the country's first system", func() {
		s.Equal("ARG_1_10", s.inst.SystemID)
	})

	s.Run("unknown country rejected", func() {
		_, err := s.service.RegisterInstitution(ctx, "Nowhere Tech", "XXX", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown system rejected", func() {
		_, err := s.service.RegisterInstitution(ctx, "Eton", "GBR", "FRA_0_20")
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedSystem))
	})

	s.Run("duplicate name conflicts", func() {
		_, err := s.service.RegisterInstitution(ctx, "universidad de buenos aires", "ARG", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *HierarchySuite) TestEnrollInstitution() {
	ctx := context.Background()

	s.Run("inverted interval returns invalid_range and persists nothing", func() {
		_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
			d(2023, 6, 1), dp(2023, 1, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRange))

		enrollments, err := s.store.ListSubjectEnrollments(ctx, s.student)
		s.NoError(err)
		s.Empty(enrollments)
	})

	s.Run("open-ended enrollment succeeds", func() {
		e, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID, d(2023, 1, 1), nil)
		s.Require().NoError(err)
		s.Nil(e.Interval.End)
	})

	s.Run("overlapping enrollment at the same institution conflicts", func() {
		_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
			d(2024, 1, 1), dp(2024, 12, 31))
		s.True(dErrors.HasCode(err, dErrors.CodeOverlap),
			"open-ended enrollments extend to +infinity for overlap checks")
	})

	s.Run("other students are not affected", func() {
		other := id.StudentID(uuid.New())
		_, err := s.service.EnrollInstitution(ctx, other, s.inst.ID, d(2023, 1, 1), nil)
		s.NoError(err)
	})
}

func (s *HierarchySuite) TestEnrollSubject() {
	ctx := context.Background()
	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
		d(2023, 1, 1), dp(2023, 12, 31))
	s.Require().NoError(err)

	s.Run("covered interval succeeds and records the owner", func() {
		se, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
			d(2023, 2, 1), dp(2023, 11, 30))
		s.Require().NoError(err)
		s.False(se.EnrollmentID.IsNil())
		s.True(!se.Interval.Start.Before(d(2023, 1, 1)))
	})

	s.Run("interval outside any enrollment fails with no_institution_coverage", func() {
		_, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
			d(2024, 2, 1), dp(2024, 6, 30))
		s.True(dErrors.HasCode(err, dErrors.CodeNoInstitutionCoverage))
	})

	s.Run("open subject enrollment needs an open institution enrollment", func() {
		_, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
			d(2023, 2, 1), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNoInstitutionCoverage),
			"a closed enrollment cannot cover an open-ended subject")
	})

	s.Run("inverted interval fails before any store access", func() {
		_, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
			d(2023, 6, 1), dp(2023, 2, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRange))
	})
}

func (s *HierarchySuite) TestRecordExam() {
	ctx := context.Background()
	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
		d(2023, 1, 1), dp(2023, 12, 31))
	s.Require().NoError(err)
	se, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 2, 1), dp(2023, 11, 30))
	s.Require().NoError(err)

	s.Run("date inside the subject enrollment succeeds", func() {
		exam, err := s.service.RecordExam(ctx, se.ID, "Midterm", models.ExamWritten,
			"", id.NumericGrade(8), d(2023, 6, 1))
		s.Require().NoError(err)
		s.Equal("ARG_1_10", exam.OriginSystem, "defaults to the institution's system")
		s.Equal(s.student, exam.StudentID)
	})

	s.Run("date outside the interval fails with date_out_of_range", func() {
		_, err := s.service.RecordExam(ctx, se.ID, "Late final", models.ExamFinal,
			"", id.NumericGrade(9), d(2023, 12, 15))
		s.True(dErrors.HasCode(err, dErrors.CodeDateOutOfRange))
	})

	s.Run("label grade against a numeric system is rejected", func() {
		_, err := s.service.RecordExam(ctx, se.ID, "Oral", models.ExamOral,
			"", id.LabelGrade("A"), d(2023, 6, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("out-of-domain numeric value is accepted at capture", func() {
		exam, err := s.service.RecordExam(ctx, se.ID, "Bonus exam", models.ExamWritten,
			"", id.NumericGrade(11), d(2023, 6, 2))
		s.NoError(err, "domain checks happen at conversion time, not capture time")
		s.NotNil(exam)
	})

	s.Run("unknown subject enrollment", func() {
		_, err := s.service.RecordExam(ctx, id.SubjectEnrollmentID(uuid.New()), "Ghost",
			models.ExamWritten, "", id.NumericGrade(5), d(2023, 6, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *HierarchySuite) TestRecordExamOpenEndedUsesToday() {
	_, err := s.service.EnrollInstitution(context.Background(), s.student, s.inst.ID,
		d(2023, 1, 1), nil)
	s.Require().NoError(err)
	se, err := s.service.EnrollSubject(context.Background(), s.student, s.inst.ID,
		s.subject.ID, d(2023, 2, 1), nil)
	s.Require().NoError(err)

	// Freeze "today" so the open end has a deterministic boundary.
	today := d(2023, 7, 1)
	ctx := requestcontext.WithTime(context.Background(), today)

	_, err = s.service.RecordExam(ctx, se.ID, "On time", models.ExamWritten,
		"", id.NumericGrade(7), d(2023, 6, 30))
	s.NoError(err)

	_, err = s.service.RecordExam(ctx, se.ID, "From the future", models.ExamWritten,
		"", id.NumericGrade(7), d(2023, 7, 2))
	s.True(dErrors.HasCode(err, dErrors.CodeDateOutOfRange),
		"an open end stands in for today, not forever")
}

func (s *HierarchySuite) TestListExamsClampsToEnrollmentBounds() {
	ctx := context.Background()
	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
		d(2023, 1, 1), dp(2023, 12, 31))
	s.Require().NoError(err)
	se, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 3, 1), dp(2023, 9, 30))
	s.Require().NoError(err)

	for month := time.March; month <= time.September; month++ {
		_, err := s.service.RecordExam(ctx, se.ID, "Monthly", models.ExamWritten,
			"", id.NumericGrade(float64(month)), d(2023, month, 15))
		s.Require().NoError(err)
	}

	from := d(2023, 1, 1)
	to := d(2023, 12, 31)
	exams, err := s.service.ListExams(ctx, models.ExamFilter{
		StudentID: &s.student,
		SubjectID: &s.subject.ID,
		From:      &from,
		To:        &to,
	})
	s.Require().NoError(err)
	s.Len(exams, 7, "window wider than the enrollment clamps to its bounds")
	for i := 1; i < len(exams); i++ {
		s.False(exams[i].Date.Before(exams[i-1].Date), "ordered by date ascending")
	}

	narrowFrom := d(2023, 5, 1)
	narrowTo := d(2023, 6, 30)
	exams, err = s.service.ListExams(ctx, models.ExamFilter{
		StudentID: &s.student,
		SubjectID: &s.subject.ID,
		From:      &narrowFrom,
		To:        &narrowTo,
	})
	s.Require().NoError(err)
	s.Len(exams, 2, "narrower window wins over the enrollment bounds")
}

func (s *HierarchySuite) TestListExamsMergesConcurrentEnrollments() {
	ctx := context.Background()

	// Same subject at two institutions with overlapping intervals. Overlap
	// is only rejected per (student, institution), so both are legal.
	other, err := s.service.RegisterInstitution(ctx, "Universidad Nacional de Córdoba", "ARG", "")
	s.Require().NoError(err)

	_, err = s.service.EnrollInstitution(ctx, s.student, s.inst.ID, d(2023, 1, 1), nil)
	s.Require().NoError(err)
	_, err = s.service.EnrollInstitution(ctx, s.student, other.ID, d(2023, 2, 1), nil)
	s.Require().NoError(err)

	seA, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 1, 1), dp(2023, 12, 31))
	s.Require().NoError(err)
	seB, err := s.service.EnrollSubject(ctx, s.student, other.ID, s.subject.ID,
		d(2023, 2, 1), dp(2023, 12, 31))
	s.Require().NoError(err)

	// Recorded so the two enrollments interleave in time.
	_, err = s.service.RecordExam(ctx, seA.ID, "First midterm", models.ExamWritten,
		"", id.NumericGrade(6), d(2023, 3, 1))
	s.Require().NoError(err)
	_, err = s.service.RecordExam(ctx, seB.ID, "Entrance exam", models.ExamWritten,
		"", id.NumericGrade(7), d(2023, 2, 15))
	s.Require().NoError(err)
	_, err = s.service.RecordExam(ctx, seB.ID, "June final", models.ExamFinal,
		"", id.NumericGrade(8), d(2023, 6, 15))
	s.Require().NoError(err)
	_, err = s.service.RecordExam(ctx, seA.ID, "May quiz", models.ExamWritten,
		"", id.NumericGrade(9), d(2023, 5, 1))
	s.Require().NoError(err)

	filter := models.ExamFilter{StudentID: &s.student, SubjectID: &s.subject.ID}

	exams, err := s.service.ListExams(ctx, filter)
	s.Require().NoError(err)
	s.Require().Len(exams, 4)
	for i := 1; i < len(exams); i++ {
		s.False(exams[i].Date.Before(exams[i-1].Date),
			"exams from concurrent enrollments merge date ascending")
	}
	s.Equal("Entrance exam", exams[0].Name)
	s.Equal("June final", exams[3].Name)

	var seqNames []string
	for e, err := range s.service.ExamSeq(ctx, filter) {
		s.Require().NoError(err)
		seqNames = append(seqNames, e.Name)
	}
	s.Equal([]string{"Entrance exam", "First midterm", "May quiz", "June final"}, seqNames,
		"the lazy sequence merges the per-enrollment streams in the same order")
}

func (s *HierarchySuite) TestExamSeqIsRestartable() {
	ctx := context.Background()
	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID,
		d(2023, 1, 1), dp(2023, 12, 31))
	s.Require().NoError(err)
	se, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 2, 1), dp(2023, 11, 30))
	s.Require().NoError(err)
	for i := range 5 {
		_, err := s.service.RecordExam(ctx, se.ID, "Quiz", models.ExamWritten,
			"", id.NumericGrade(float64(i+1)), d(2023, 6, i+1))
		s.Require().NoError(err)
	}

	seq := s.service.ExamSeq(ctx, models.ExamFilter{StudentID: &s.student, SubjectID: &s.subject.ID})

	count := func() int {
		n := 0
		for _, err := range seq {
			s.Require().NoError(err)
			n++
		}
		return n
	}
	s.Equal(5, count())
	s.Equal(5, count(), "a second iteration observes a fresh read")

	// Early break must not poison later iterations.
	for range seq {
		break
	}
	s.Equal(5, count())
}

func (s *HierarchySuite) TestHistoryGroupsByStartYear() {
	ctx := context.Background()
	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID, d(2022, 1, 1), nil)
	s.Require().NoError(err)

	se2022, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2022, 2, 1), dp(2022, 11, 30))
	s.Require().NoError(err)
	_, err = s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 2, 1), dp(2023, 11, 30))
	s.Require().NoError(err)

	_, err = s.service.RecordExam(ctx, se2022.ID, "Final", models.ExamFinal,
		"", id.NumericGrade(9), d(2022, 11, 1))
	s.Require().NoError(err)

	years, err := s.service.History(ctx, s.student)
	s.Require().NoError(err)
	s.Require().Len(years, 2)
	s.Equal(2022, years[0].Year)
	s.Equal(2023, years[1].Year)
	s.Len(years[0].Subjects[0].Exams, 1)
	s.Empty(years[1].Subjects[0].Exams)
}

func (s *HierarchySuite) TestAuditTrail() {
	ctx := context.Background()
	e, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID, d(2023, 1, 1), nil)
	s.Require().NoError(err)

	events, err := s.events.ListByEntity(ctx, e.ID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.OpInstitutionEnrolled, events[0].Operation)
	s.Equal(s.student.String(), events[0].Detail["student_id"])
}

func (s *HierarchySuite) TestEndToEndScenario() {
	ctx := context.Background()

	_, err := s.service.EnrollInstitution(ctx, s.student, s.inst.ID, d(2023, 1, 1), nil)
	s.Require().NoError(err)

	se, err := s.service.EnrollSubject(ctx, s.student, s.inst.ID, s.subject.ID,
		d(2023, 2, 1), dp(2023, 11, 30))
	s.Require().NoError(err)

	_, err = s.service.RecordExam(ctx, se.ID, "December final", models.ExamFinal,
		"ARG_1_10", id.NumericGrade(8), d(2023, 12, 15))
	s.True(dErrors.HasCode(err, dErrors.CodeDateOutOfRange))

	exam, err := s.service.RecordExam(ctx, se.ID, "June final", models.ExamFinal,
		"ARG_1_10", id.NumericGrade(8), d(2023, 6, 1))
	s.Require().NoError(err)
	s.Equal(id.NumericGrade(8), exam.OriginValue)
}
