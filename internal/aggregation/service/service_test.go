package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gradenorm/internal/catalog"
	cmodels "gradenorm/internal/conversion/models"
	cservice "gradenorm/internal/conversion/service"
	cstore "gradenorm/internal/conversion/store"
	hmodels "gradenorm/internal/hierarchy/models"
	hservice "gradenorm/internal/hierarchy/service"
	hstore "gradenorm/internal/hierarchy/store"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

type AggregationSuite struct {
	suite.Suite
	hierarchy *hservice.Service
	converter *cservice.Service
	service   *Service

	inst    *hmodels.Institution
	math    *hmodels.Subject
	history *hmodels.Subject
	student id.StudentID
}

func TestAggregationSuite(t *testing.T) {
	suite.Run(t, new(AggregationSuite))
}

func (s *AggregationSuite) SetupTest() {
	ctx := context.Background()
	cat := catalog.Default()

	s.hierarchy = hservice.New(hstore.NewInMemory(), cat)
	s.converter = cservice.New(cstore.NewInMemory(), s.hierarchy, cat)
	s.service = New(s.hierarchy, s.converter, cat)

	var err error
	s.inst, err = s.hierarchy.RegisterInstitution(ctx, "Universidad de Buenos Aires", "ARG", "")
	s.Require().NoError(err)
	s.math, err = s.hierarchy.RegisterSubject(ctx, "Mathematics", 13)
	s.Require().NoError(err)
	s.history, err = s.hierarchy.RegisterSubject(ctx, "History", 13)
	s.Require().NoError(err)

	s.student = id.StudentID(uuid.New())
	_, err = s.hierarchy.EnrollInstitution(ctx, s.student, s.inst.ID,
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	s.Require().NoError(err)
}

// recordExams enrolls the student in the subject and captures one exam per
// value, a day apart.
func (s *AggregationSuite) recordExams(subject *hmodels.Subject, values ...float64) []*hmodels.ExamInstance {
	ctx := context.Background()
	se, err := s.hierarchy.EnrollSubject(ctx, s.student, s.inst.ID, subject.ID,
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	s.Require().NoError(err)

	out := make([]*hmodels.ExamInstance, 0, len(values))
	for i, v := range values {
		exam, err := s.hierarchy.RecordExam(ctx, se.ID, "Quiz", hmodels.ExamWritten,
			"", id.NumericGrade(v), time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i))
		s.Require().NoError(err)
		out = append(out, exam)
	}
	return out
}

func (s *AggregationSuite) TestAverage() {
	ctx := context.Background()
	// 8 convertible exams plus 2 whose values sit outside the origin system's
	// 1..10 domain. The positions of 2..9 on the canonical axis average to 0.5.
	s.recordExams(s.math, 2, 3, 4, 5, 6, 7, 8, 9, 11, 12)

	result, err := s.service.Average(ctx, "ARG", nil, "ZA")
	s.Require().NoError(err)

	s.Equal(10, result.ExamsRead)
	s.Equal(8, result.ExamsUsedInAverage, "unconvertible exams are dropped, not fatal")
	s.Equal("ZA", result.DisplaySystem)
	s.InDelta(50.0, result.DisplayValue.Numeric, 1e-9)
	s.Equal("ARG", result.Scope.Country)
}

func (s *AggregationSuite) TestAverageScoping() {
	ctx := context.Background()
	s.recordExams(s.math, 8)

	s.Run("named institution", func() {
		result, err := s.service.Average(ctx, "ARG", &s.inst.ID, "ZA")
		s.Require().NoError(err)
		s.Equal(1, result.ExamsRead)
		s.Require().NotNil(result.Scope.InstitutionID)
		s.Equal(s.inst.ID, *result.Scope.InstitutionID)
	})

	s.Run("institution outside the scope country", func() {
		_, err := s.service.Average(ctx, "ZAF", &s.inst.ID, "ZA")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("missing country", func() {
		_, err := s.service.Average(ctx, "", nil, "ZA")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown display system", func() {
		_, err := s.service.Average(ctx, "ARG", nil, "FRA_0_20")
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedSystem))
	})

	s.Run("empty population", func() {
		result, err := s.service.Average(ctx, "ZAF", nil, "ZA")
		s.Require().NoError(err)
		s.Zero(result.ExamsRead)
		s.Zero(result.ExamsUsedInAverage)
	})
}

func (s *AggregationSuite) TestAverageReusesLatestConversions() {
	ctx := context.Background()
	exams := s.recordExams(s.math, 4, 6)

	// Pre-convert the first exam so the aggregation finds it in the batch
	// lookup and only the second pays for an on-demand conversion.
	_, err := s.converter.Convert(ctx, exams[0].ID, "ZA",
		cmodels.RuleContext{Authority: "demo", Version: "v1", Method: "linear"})
	s.Require().NoError(err)

	_, err = s.service.Average(ctx, "ARG", nil, "ZA")
	s.Require().NoError(err)

	trail, err := s.converter.Trail(ctx, exams[0].ID)
	s.Require().NoError(err)
	s.Len(trail, 1, "the existing conversion is reused as-is")
	s.Equal("demo", trail[0].Rule.Authority)

	trail, err = s.converter.Trail(ctx, exams[1].ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(DefaultRule, trail[0].Rule, "on-demand conversions carry the default rule")
}

func (s *AggregationSuite) TestAverageBySubject() {
	ctx := context.Background()
	s.recordExams(s.math, 9, 10)
	s.recordExams(s.history, 4, 5, 11)

	results, err := s.service.AverageBySubject(ctx, "ARG", nil, "ZA")
	s.Require().NoError(err)
	s.Require().Len(results, 2)

	s.Run("ordered by display value descending", func() {
		s.Equal(s.math.ID, *results[0].Scope.SubjectID)
		s.Equal(s.history.ID, *results[1].Scope.SubjectID)
		s.Greater(results[0].DisplayValue.Numeric, results[1].DisplayValue.Numeric)
	})

	s.Run("per-subject accounting", func() {
		s.Equal(2, results[0].ExamsRead)
		s.Equal(2, results[0].ExamsUsedInAverage)
		s.Equal(3, results[1].ExamsRead)
		s.Equal(2, results[1].ExamsUsedInAverage)
	})

	s.Run("ordinal display system averages on the canonical axis", func() {
		letters, err := s.service.AverageBySubject(ctx, "ARG", nil, "USA_LETTER_A_F")
		s.Require().NoError(err)
		s.Require().Len(letters, 2)
		s.Equal("A", letters[0].DisplayValue.Label)
	})
}
