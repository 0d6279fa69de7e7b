//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/testutil/containers"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(year int, month time.Month, d int) *time.Time {
	t := day(year, month, d)
	return &t
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, pc.Apply(ctx, Schema()), "the shipped DDL must apply on a fresh database")

	store := NewPostgres(pc.Pool)
	now := time.Now().UTC().Truncate(time.Second)
	studentID := id.StudentID(uuid.New())

	inst := &models.Institution{
		ID:          id.InstitutionID(uuid.New()),
		Name:        "Universidad de Buenos Aires",
		CountryISO3: "ARG",
		SystemID:    "ARG_1_10",
		CreatedAt:   now,
	}
	subj := &models.Subject{
		ID:         id.SubjectID(uuid.New()),
		Name:       "Mathematics",
		LevelStage: 13,
		CreatedAt:  now,
	}

	t.Run("institution names are unique case-insensitively", func(t *testing.T) {
		require.NoError(t, store.CreateInstitution(ctx, inst))

		dup := *inst
		dup.ID = id.InstitutionID(uuid.New())
		dup.Name = "UNIVERSIDAD DE BUENOS AIRES"
		assert.ErrorIs(t, store.CreateInstitution(ctx, &dup), sentinel.ErrAlreadyUsed)

		got, err := store.GetInstitution(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, "ARG", got.CountryISO3)
		assert.Equal(t, "ARG_1_10", got.SystemID)
	})

	t.Run("subject names are unique per level stage", func(t *testing.T) {
		require.NoError(t, store.CreateSubject(ctx, subj))

		dup := *subj
		dup.ID = id.SubjectID(uuid.New())
		dup.Name = "mathematics"
		assert.ErrorIs(t, store.CreateSubject(ctx, &dup), sentinel.ErrAlreadyUsed)

		otherStage := *subj
		otherStage.ID = id.SubjectID(uuid.New())
		otherStage.LevelStage = 14
		assert.NoError(t, store.CreateSubject(ctx, &otherStage),
			"the same name at another stage is a different subject")
	})

	enrollment := &models.InstitutionEnrollment{
		ID:            id.EnrollmentID(uuid.New()),
		StudentID:     studentID,
		InstitutionID: inst.ID,
		Interval:      models.Interval{Start: day(2023, 1, 1), End: dayPtr(2023, 12, 31)},
		CreatedAt:     now,
	}

	t.Run("enrollment insert rejects overlaps per student and institution", func(t *testing.T) {
		require.NoError(t, store.CreateEnrollmentIfNoOverlap(ctx, enrollment))

		overlapping := &models.InstitutionEnrollment{
			ID:            id.EnrollmentID(uuid.New()),
			StudentID:     studentID,
			InstitutionID: inst.ID,
			Interval:      models.Interval{Start: day(2023, 6, 1), End: nil},
			CreatedAt:     now,
		}
		assert.ErrorIs(t, store.CreateEnrollmentIfNoOverlap(ctx, overlapping), sentinel.ErrConflict)

		otherStudent := &models.InstitutionEnrollment{
			ID:            id.EnrollmentID(uuid.New()),
			StudentID:     id.StudentID(uuid.New()),
			InstitutionID: inst.ID,
			Interval:      models.Interval{Start: day(2023, 6, 1), End: nil},
			CreatedAt:     now,
		}
		assert.NoError(t, store.CreateEnrollmentIfNoOverlap(ctx, otherStudent),
			"other students never contend")
	})

	t.Run("covering enrollment lookup honors the interval", func(t *testing.T) {
		covered := models.Interval{Start: day(2023, 2, 1), End: dayPtr(2023, 11, 30)}
		owner, err := store.FindCoveringEnrollment(ctx, studentID, inst.ID, covered)
		require.NoError(t, err)
		assert.Equal(t, enrollment.ID, owner.ID)

		uncovered := models.Interval{Start: day(2024, 2, 1), End: dayPtr(2024, 6, 30)}
		_, err = store.FindCoveringEnrollment(ctx, studentID, inst.ID, uncovered)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	se := &models.SubjectEnrollment{
		ID:            id.SubjectEnrollmentID(uuid.New()),
		StudentID:     studentID,
		InstitutionID: inst.ID,
		SubjectID:     subj.ID,
		EnrollmentID:  enrollment.ID,
		Interval:      models.Interval{Start: day(2023, 2, 1), End: dayPtr(2023, 11, 30)},
		CreatedAt:     now,
	}

	t.Run("subject enrollment round trips with its owner", func(t *testing.T) {
		require.NoError(t, store.CreateSubjectEnrollment(ctx, se))

		got, err := store.GetSubjectEnrollment(ctx, se.ID)
		require.NoError(t, err)
		assert.Equal(t, enrollment.ID, got.EnrollmentID)
		require.NotNil(t, got.Interval.End)
		assert.True(t, got.Interval.End.Equal(day(2023, 11, 30)))

		bySubject, err := store.ListSubjectEnrollmentsBySubject(ctx, studentID, subj.ID)
		require.NoError(t, err)
		require.Len(t, bySubject, 1)
	})

	t.Run("exams round trip and list date ascending", func(t *testing.T) {
		newExam := func(name string, value id.GradeValue, date time.Time) *models.ExamInstance {
			return &models.ExamInstance{
				ID:                  id.ExamID(uuid.New()),
				StudentID:           studentID,
				SubjectEnrollmentID: se.ID,
				SubjectID:           subj.ID,
				InstitutionID:       inst.ID,
				Name:                name,
				Type:                models.ExamWritten,
				OriginSystem:        "ARG_1_10",
				OriginValue:         value,
				Date:                date,
				CreatedAt:           now,
			}
		}
		require.NoError(t, store.CreateExam(ctx, newExam("June final", id.NumericGrade(8), day(2023, 6, 1))))
		require.NoError(t, store.CreateExam(ctx, newExam("March quiz", id.NumericGrade(6), day(2023, 3, 15))))

		labeled := newExam("Oral", id.LabelGrade("B"), day(2023, 5, 1))
		labeled.OriginSystem = "USA_LETTER_A_F"
		require.NoError(t, store.CreateExam(ctx, labeled))

		got, err := store.GetExam(ctx, labeled.ID)
		require.NoError(t, err)
		assert.True(t, got.OriginValue.IsLabel())
		assert.Equal(t, "B", got.OriginValue.Label)

		exams, err := store.ListExams(ctx, models.ExamFilter{StudentID: &studentID, SubjectID: &subj.ID})
		require.NoError(t, err)
		require.Len(t, exams, 3)
		assert.Equal(t, "March quiz", exams[0].Name)
		assert.Equal(t, "Oral", exams[1].Name)
		assert.Equal(t, "June final", exams[2].Name)

		from := day(2023, 4, 1)
		windowed, err := store.ListExams(ctx, models.ExamFilter{StudentID: &studentID, From: &from})
		require.NoError(t, err)
		assert.Len(t, windowed, 2)
	})
}
