package handler

import (
	"time"

	id "gradenorm/pkg/domain"
)

// Wire DTOs. Dates travel as YYYY-MM-DD strings; ids as UUID strings. Each
// request parses itself into domain types before the service sees it.

type registerInstitutionRequest struct {
	Name        string `json:"name"`
	CountryISO3 string `json:"country_iso3"`
	SystemID    string `json:"system_id,omitempty"`
}

type registerSubjectRequest struct {
	Name       string `json:"name"`
	LevelStage int    `json:"level_stage"`
}

type enrollInstitutionRequest struct {
	StudentID     string  `json:"student_id"`
	InstitutionID string  `json:"institution_id"`
	Start         string  `json:"start"`
	End           *string `json:"end,omitempty"`
}

type parsedEnrollment struct {
	studentID     id.StudentID
	institutionID id.InstitutionID
	subjectID     id.SubjectID
	start         time.Time
	end           *time.Time
}

func (req enrollInstitutionRequest) parse() (parsedEnrollment, error) {
	var out parsedEnrollment
	var err error
	if out.studentID, err = id.ParseStudentID(req.StudentID); err != nil {
		return parsedEnrollment{}, err
	}
	if out.institutionID, err = id.ParseInstitutionID(req.InstitutionID); err != nil {
		return parsedEnrollment{}, err
	}
	if out.start, err = parseDate(req.Start, "start"); err != nil {
		return parsedEnrollment{}, err
	}
	if req.End != nil {
		end, err := parseDate(*req.End, "end")
		if err != nil {
			return parsedEnrollment{}, err
		}
		out.end = &end
	}
	return out, nil
}

type enrollSubjectRequest struct {
	StudentID     string  `json:"student_id"`
	InstitutionID string  `json:"institution_id"`
	SubjectID     string  `json:"subject_id"`
	Start         string  `json:"start"`
	End           *string `json:"end,omitempty"`
}

func (req enrollSubjectRequest) parse() (parsedEnrollment, error) {
	out, err := enrollInstitutionRequest{
		StudentID:     req.StudentID,
		InstitutionID: req.InstitutionID,
		Start:         req.Start,
		End:           req.End,
	}.parse()
	if err != nil {
		return parsedEnrollment{}, err
	}
	if out.subjectID, err = id.ParseSubjectID(req.SubjectID); err != nil {
		return parsedEnrollment{}, err
	}
	return out, nil
}

type gradePayload struct {
	Numeric *float64 `json:"numeric,omitempty"`
	Label   string   `json:"label,omitempty"`
}

func (g gradePayload) toValue() id.GradeValue {
	if g.Label != "" {
		return id.LabelGrade(g.Label)
	}
	if g.Numeric != nil {
		return id.NumericGrade(*g.Numeric)
	}
	return id.GradeValue{}
}

type recordExamRequest struct {
	SubjectEnrollmentID string       `json:"subject_enrollment_id"`
	Name                string       `json:"name"`
	Type                string       `json:"type"`
	OriginSystem        string       `json:"origin_system,omitempty"`
	OriginValue         gradePayload `json:"origin_value"`
	Date                string       `json:"date"`
}

type parsedExam struct {
	subjectEnrollmentID id.SubjectEnrollmentID
	value               id.GradeValue
	date                time.Time
}

func (req recordExamRequest) parse() (parsedExam, error) {
	var out parsedExam
	var err error
	if out.subjectEnrollmentID, err = id.ParseSubjectEnrollmentID(req.SubjectEnrollmentID); err != nil {
		return parsedExam{}, err
	}
	if out.date, err = parseDate(req.Date, "exam"); err != nil {
		return parsedExam{}, err
	}
	out.value = req.OriginValue.toValue()
	return out, nil
}
