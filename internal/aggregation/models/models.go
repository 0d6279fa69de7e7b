// Package models defines aggregate results. Results are derived on every
// query and never persisted.
package models

import (
	id "gradenorm/pkg/domain"
)

// Scope names the exam population an aggregate was computed over.
type Scope struct {
	Country       string            `json:"country"`
	InstitutionID *id.InstitutionID `json:"institution_id,omitempty"`
	SubjectID     *id.SubjectID     `json:"subject_id,omitempty"`
}

// AggregateResult is the mean of an exam population expressed in a display
// system. ExamsRead counts every exam selected; ExamsUsedInAverage counts
// those whose grade survived conversion. The gap between the two is the
// caller's data-quality signal.
type AggregateResult struct {
	Scope              Scope         `json:"scope"`
	DisplaySystem      string        `json:"display_system"`
	DisplayValue       id.GradeValue `json:"display_value"`
	ExamsRead          int           `json:"exams_read"`
	ExamsUsedInAverage int           `json:"exams_used_in_average"`
}
