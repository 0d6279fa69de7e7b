package domain

import (
	"fmt"
	"strconv"
)

// GradeValue is a grade as captured or produced: either a numeric value
// (numeric and GPA systems) or an ordinal label (letter systems). Exactly one
// side is meaningful; which one is dictated by the grading system's kind.
type GradeValue struct {
	Numeric float64 `json:"numeric,omitempty"`
	Label   string  `json:"label,omitempty"`
}

// NumericGrade builds a numeric grade value.
func NumericGrade(v float64) GradeValue { return GradeValue{Numeric: v} }

// LabelGrade builds an ordinal grade value.
func LabelGrade(label string) GradeValue { return GradeValue{Label: label} }

// IsLabel reports whether the value carries an ordinal label.
func (g GradeValue) IsLabel() bool { return g.Label != "" }

func (g GradeValue) String() string {
	if g.IsLabel() {
		return g.Label
	}
	return strconv.FormatFloat(g.Numeric, 'f', -1, 64)
}

// GoString keeps %#v output readable in test failures.
func (g GradeValue) GoString() string {
	if g.IsLabel() {
		return fmt.Sprintf("domain.LabelGrade(%q)", g.Label)
	}
	return fmt.Sprintf("domain.NumericGrade(%v)", g.Numeric)
}
