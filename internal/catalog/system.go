package catalog

import (
	"slices"

	dErrors "gradenorm/pkg/domain-errors"
)

// Kind is the domain shape of a grading system.
type Kind string

const (
	// KindNumeric is a bounded numeric scale (ARG 1..10, ZA 0..100).
	KindNumeric Kind = "numeric"
	// KindOrdinal is an ordered label scale (UK A*..F). Labels are stored
	// best-first.
	KindOrdinal Kind = "ordinal"
	// KindGPA is a grade-point scale with discrete configured steps.
	KindGPA Kind = "gpa"
)

// Breakpoint maps a normalized position threshold to a discrete GPA step.
// Position is on the canonical higher-is-better axis in [0,1]; a value with
// normalized position >= Position (and below the previous breakpoint) maps
// to Value.
type Breakpoint struct {
	Position float64 `yaml:"position"`
	Value    float64 `yaml:"value"`
}

// System describes one grading system. Immutable after catalog construction;
// referenced by ID everywhere else.
//
// Invariants:
//   - numeric/gpa: Max > Min
//   - ordinal: at least two Labels, best first
//   - gpa: Breakpoints sorted by Position descending, last entry Position 0
//   - Inverted only applies to numeric systems (lower value is better)
type System struct {
	ID            string       `yaml:"id"`
	Kind          Kind         `yaml:"kind"`
	Min           float64      `yaml:"min,omitempty"`
	Max           float64      `yaml:"max,omitempty"`
	Inverted      bool         `yaml:"inverted,omitempty"`
	Labels        []string     `yaml:"labels,omitempty"`
	Breakpoints   []Breakpoint `yaml:"breakpoints,omitempty"`
	PassThreshold float64      `yaml:"pass_threshold,omitempty"`
	PassLabel     string       `yaml:"pass_label,omitempty"`
}

func (s System) validate() error {
	switch s.Kind {
	case KindNumeric, KindGPA:
		if s.Max <= s.Min {
			return dErrors.Newf(dErrors.CodeValidation,
				"system %s: max %.2f must exceed min %.2f", s.ID, s.Max, s.Min)
		}
		if s.Kind == KindGPA {
			if len(s.Breakpoints) == 0 {
				return dErrors.Newf(dErrors.CodeValidation,
					"system %s: gpa system needs a breakpoint table", s.ID)
			}
			for i := 1; i < len(s.Breakpoints); i++ {
				if s.Breakpoints[i].Position >= s.Breakpoints[i-1].Position {
					return dErrors.Newf(dErrors.CodeValidation,
						"system %s: breakpoints must be sorted by position descending", s.ID)
				}
			}
		}
	case KindOrdinal:
		if len(s.Labels) < 2 {
			return dErrors.Newf(dErrors.CodeValidation,
				"system %s: ordinal system needs at least two labels", s.ID)
		}
	default:
		return dErrors.Newf(dErrors.CodeValidation, "system %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}

// ContainsNumeric reports whether a numeric value falls inside the system's
// bounds. Only meaningful for numeric and gpa systems.
func (s System) ContainsNumeric(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// LabelIndex returns the position of an ordinal label (0 = best), or -1 when
// the label is not part of the scale.
func (s System) LabelIndex(label string) int {
	return slices.Index(s.Labels, label)
}

// IsPassing reports whether a native value passes the system's threshold.
// For ordinal systems the value is a label; for the rest a numeric string is
// not accepted here, callers pass the parsed float.
func (s System) IsPassing(numeric float64, label string) bool {
	switch s.Kind {
	case KindOrdinal:
		i := s.LabelIndex(label)
		p := s.LabelIndex(s.PassLabel)
		return i >= 0 && p >= 0 && i <= p
	case KindNumeric:
		if s.Inverted {
			return numeric <= s.PassThreshold
		}
		return numeric >= s.PassThreshold
	default:
		return numeric >= s.PassThreshold
	}
}
