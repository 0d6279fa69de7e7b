// Package domain holds shared domain primitives: typed entity identifiers
// and the academic level-stage scale. Typed IDs make cross-entity mixups a
// compile error rather than a data corruption incident.
package domain

import (
	"github.com/google/uuid"

	dErrors "gradenorm/pkg/domain-errors"
)

// Typed UUID identifiers. Each entity family gets its own type so a
// SubjectID can never be passed where an InstitutionID is expected.
type (
	StudentID           uuid.UUID
	InstitutionID       uuid.UUID
	SubjectID           uuid.UUID
	EnrollmentID        uuid.UUID
	SubjectEnrollmentID uuid.UUID
	ExamID              uuid.UUID
	ConversionID        uuid.UUID
)

func (id StudentID) String() string           { return uuid.UUID(id).String() }
func (id InstitutionID) String() string       { return uuid.UUID(id).String() }
func (id SubjectID) String() string           { return uuid.UUID(id).String() }
func (id EnrollmentID) String() string        { return uuid.UUID(id).String() }
func (id SubjectEnrollmentID) String() string { return uuid.UUID(id).String() }
func (id ExamID) String() string              { return uuid.UUID(id).String() }
func (id ConversionID) String() string        { return uuid.UUID(id).String() }

// IDs travel through JSON as canonical UUID strings.
func (id StudentID) MarshalText() ([]byte, error)           { return []byte(id.String()), nil }
func (id InstitutionID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id SubjectID) MarshalText() ([]byte, error)           { return []byte(id.String()), nil }
func (id EnrollmentID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id SubjectEnrollmentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ExamID) MarshalText() ([]byte, error)              { return []byte(id.String()), nil }
func (id ConversionID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }

func (id *StudentID) UnmarshalText(b []byte) error {
	parsed, err := ParseStudentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *InstitutionID) UnmarshalText(b []byte) error {
	parsed, err := ParseInstitutionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SubjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubjectID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EnrollmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseEnrollmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SubjectEnrollmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubjectEnrollmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ExamID) UnmarshalText(b []byte) error {
	parsed, err := ParseExamID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ConversionID) UnmarshalText(b []byte) error {
	parsed, err := ParseConversionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id StudentID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id InstitutionID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id EnrollmentID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SubjectEnrollmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ExamID) IsNil() bool              { return uuid.UUID(id) == uuid.Nil }
func (id ConversionID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs. Handlers call the typed wrappers below on every
// path or body parameter before anything reaches a service.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s: %q", kind, s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return u, nil
}

func ParseStudentID(s string) (StudentID, error) {
	u, err := parseUUID(s, "student id")
	return StudentID(u), err
}

func ParseInstitutionID(s string) (InstitutionID, error) {
	u, err := parseUUID(s, "institution id")
	return InstitutionID(u), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s, "subject id")
	return SubjectID(u), err
}

func ParseEnrollmentID(s string) (EnrollmentID, error) {
	u, err := parseUUID(s, "enrollment id")
	return EnrollmentID(u), err
}

func ParseSubjectEnrollmentID(s string) (SubjectEnrollmentID, error) {
	u, err := parseUUID(s, "subject enrollment id")
	return SubjectEnrollmentID(u), err
}

func ParseExamID(s string) (ExamID, error) {
	u, err := parseUUID(s, "exam id")
	return ExamID(u), err
}

func ParseConversionID(s string) (ConversionID, error) {
	u, err := parseUUID(s, "conversion id")
	return ConversionID(u), err
}
