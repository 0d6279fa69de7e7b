// Package models defines the temporal containment tree: institutions,
// subjects, enrollments, and exam instances. Containment is validated when
// records are written; read paths trust what the store returns.
package models

import (
	"time"

	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

// Institution is a registry entry. Country and native grading system drive
// aggregation scoping and the default origin system for recorded exams.
type Institution struct {
	ID          id.InstitutionID `json:"id"`
	Name        string           `json:"name"`
	CountryISO3 string           `json:"country_iso3"`
	SystemID    string           `json:"system_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Subject is a registry entry scoped to an academic level stage.
type Subject struct {
	ID         id.SubjectID  `json:"id"`
	Name       string        `json:"name"`
	LevelStage id.LevelStage `json:"level_stage"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Interval is a closed date range with an optional open end. An open end
// means "ongoing" and is treated as extending to the reference date (for
// containment checks) or to +infinity (for overlap checks).
type Interval struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Validate rejects inverted intervals.
func (iv Interval) Validate() error {
	if iv.End != nil && iv.End.Before(iv.Start) {
		return dErrors.Newf(dErrors.CodeInvalidRange,
			"interval end %s precedes start %s",
			iv.End.Format(time.DateOnly), iv.Start.Format(time.DateOnly))
	}
	return nil
}

// Overlaps reports whether two intervals intersect. Open ends extend to
// +infinity, so two ongoing enrollments always overlap.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.End != nil && iv.End.Before(other.Start) {
		return false
	}
	if other.End != nil && other.End.Before(iv.Start) {
		return false
	}
	return true
}

// Covers reports whether other is contained in iv per the enrollment
// containment invariant: iv.Start <= other.Start, and other.End <= iv.End
// when both ends are present.
func (iv Interval) Covers(other Interval) bool {
	if other.Start.Before(iv.Start) {
		return false
	}
	if iv.End != nil && other.End != nil && other.End.After(*iv.End) {
		return false
	}
	if iv.End != nil && other.End == nil {
		// An ongoing enrollment cannot live inside a closed one.
		return false
	}
	return true
}

// ContainsDate reports whether d falls inside the interval, with an open end
// standing in for today.
func (iv Interval) ContainsDate(d, today time.Time) bool {
	if d.Before(iv.Start) {
		return false
	}
	end := today
	if iv.End != nil {
		end = *iv.End
	}
	return !d.After(end)
}

// InstitutionEnrollment ties a student to an institution over a date range.
// At most one enrollment per (student, institution) may cover any given day.
type InstitutionEnrollment struct {
	ID            id.EnrollmentID  `json:"id"`
	StudentID     id.StudentID     `json:"student_id"`
	InstitutionID id.InstitutionID `json:"institution_id"`
	Interval      Interval         `json:"interval"`
	CreatedAt     time.Time        `json:"created_at"`
}

// SubjectEnrollment is owned by exactly one institution enrollment; its
// interval must be covered by the owner's interval.
type SubjectEnrollment struct {
	ID            id.SubjectEnrollmentID `json:"id"`
	StudentID     id.StudentID           `json:"student_id"`
	InstitutionID id.InstitutionID       `json:"institution_id"`
	SubjectID     id.SubjectID           `json:"subject_id"`
	EnrollmentID  id.EnrollmentID        `json:"enrollment_id"`
	Interval      Interval               `json:"interval"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ExamType mirrors the capture form: written, oral, practical, final.
type ExamType string

const (
	ExamWritten   ExamType = "written"
	ExamOral      ExamType = "oral"
	ExamPractical ExamType = "practical"
	ExamFinal     ExamType = "final"
)

// ExamInstance is a grade captured against a subject enrollment. Immutable
// once created; corrections supersede rather than mutate.
type ExamInstance struct {
	ID                  id.ExamID              `json:"id"`
	StudentID           id.StudentID           `json:"student_id"`
	SubjectEnrollmentID id.SubjectEnrollmentID `json:"subject_enrollment_id"`
	SubjectID           id.SubjectID           `json:"subject_id"`
	InstitutionID       id.InstitutionID       `json:"institution_id"`
	Name                string                 `json:"name"`
	Type                ExamType               `json:"type"`
	OriginSystem        string                 `json:"origin_system"`
	OriginValue         id.GradeValue          `json:"origin_value"`
	Date                time.Time              `json:"date"`
	CreatedAt           time.Time              `json:"created_at"`
}

// ExamFilter narrows exam listings. Nil/zero fields match everything.
// From/To are clamped to the owning subject enrollment's bounds by the
// service before the store sees them.
type ExamFilter struct {
	StudentID           *id.StudentID
	SubjectID           *id.SubjectID
	InstitutionID       *id.InstitutionID
	SubjectEnrollmentID *id.SubjectEnrollmentID
	From                *time.Time
	To                  *time.Time
	Limit               int
	Offset              int
}

// Matches applies the filter to one exam. Shared by the memory store and by
// tests asserting store behavior.
func (f ExamFilter) Matches(e ExamInstance) bool {
	if f.StudentID != nil && e.StudentID != *f.StudentID {
		return false
	}
	if f.SubjectID != nil && e.SubjectID != *f.SubjectID {
		return false
	}
	if f.InstitutionID != nil && e.InstitutionID != *f.InstitutionID {
		return false
	}
	if f.SubjectEnrollmentID != nil && e.SubjectEnrollmentID != *f.SubjectEnrollmentID {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}

// HistorySubject is one subject row in a student's academic history.
type HistorySubject struct {
	Enrollment SubjectEnrollment `json:"enrollment"`
	Exams      []ExamInstance    `json:"exams"`
}

// HistoryYear groups a student's subject enrollments by starting year.
type HistoryYear struct {
	Year     int              `json:"year"`
	Subjects []HistorySubject `json:"subjects"`
}
