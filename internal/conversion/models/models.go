// Package models defines conversion records and their rule provenance.
package models

import (
	"time"

	id "gradenorm/pkg/domain"
)

// RuleContext names the authority, version, and method under which a
// conversion was performed. The engine never invents this metadata; callers
// supply it and it is stored verbatim for audit.
type RuleContext struct {
	Authority string `json:"authority"`
	Version   string `json:"version"`
	Method    string `json:"method"`
}

// ConversionRecord is one conversion fact: "this exam's origin grade was
// re-expressed in toSystem at createdAt under rule". Append-only — converting
// the same exam to the same system twice creates two records.
type ConversionRecord struct {
	ID          id.ConversionID `json:"id"`
	ExamID      id.ExamID       `json:"exam_id"`
	FromSystem  string          `json:"from_system"`
	ToSystem    string          `json:"to_system"`
	OriginValue id.GradeValue   `json:"origin_value"`
	ResultValue id.GradeValue   `json:"result_value"`
	Rule        RuleContext     `json:"rule"`
	CreatedAt   time.Time       `json:"created_at"`
}
