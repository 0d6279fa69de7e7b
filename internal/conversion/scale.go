// Package conversion implements the grade conversion engine: deterministic
// mapping of a grade from its origin system to any other catalog system,
// with every conversion recorded append-only for provenance.
//
// All strategies pivot through a canonical higher-is-better position in
// [0, 1]:
//
//   - bounded numeric: linear min-max rescale, inverted scales flipped onto
//     the canonical axis first
//   - ordinal: position of the label among the ordered labels
//   - GPA: linear on the way in, configured breakpoint table on the way out
package conversion

import (
	"math"

	"gradenorm/internal/catalog"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

// Normalize maps a native grade value onto the canonical axis. Fails with
// unsupported_value when the value is outside the system's domain.
func Normalize(system catalog.System, value id.GradeValue) (float64, error) {
	switch system.Kind {
	case catalog.KindNumeric, catalog.KindGPA:
		if value.IsLabel() {
			return 0, dErrors.Newf(dErrors.CodeUnsupportedValue,
				"system %s takes numeric values, got label %q", system.ID, value.Label)
		}
		if !system.ContainsNumeric(value.Numeric) {
			return 0, dErrors.Newf(dErrors.CodeUnsupportedValue,
				"value %v outside %s domain [%v, %v]", value.Numeric, system.ID, system.Min, system.Max)
		}
		p := (value.Numeric - system.Min) / (system.Max - system.Min)
		if system.Inverted {
			p = 1 - p
		}
		return p, nil

	case catalog.KindOrdinal:
		if !value.IsLabel() {
			return 0, dErrors.Newf(dErrors.CodeUnsupportedValue,
				"system %s takes labels, got numeric %v", system.ID, value.Numeric)
		}
		i := system.LabelIndex(value.Label)
		if i < 0 {
			return 0, dErrors.Newf(dErrors.CodeUnsupportedValue,
				"label %q is not part of system %s", value.Label, system.ID)
		}
		n := len(system.Labels)
		return 1 - float64(i)/float64(n-1), nil

	default:
		return 0, dErrors.Newf(dErrors.CodeUnsupportedSystem, "system %s has unknown kind %q", system.ID, system.Kind)
	}
}

// Denormalize maps a canonical position back into a system's native values.
func Denormalize(system catalog.System, p float64) (id.GradeValue, error) {
	// Conversions between systems of different resolution can land slightly
	// outside [0,1] through float error; clamp before projecting.
	p = math.Max(0, math.Min(1, p))

	switch system.Kind {
	case catalog.KindNumeric:
		v := system.Min + p*(system.Max-system.Min)
		if system.Inverted {
			v = system.Max - p*(system.Max-system.Min)
		}
		return id.NumericGrade(v), nil

	case catalog.KindOrdinal:
		n := len(system.Labels)
		i := int(math.Round((1 - p) * float64(n-1)))
		return id.LabelGrade(system.Labels[i]), nil

	case catalog.KindGPA:
		for _, bp := range system.Breakpoints {
			if p >= bp.Position {
				return id.NumericGrade(bp.Value), nil
			}
		}
		// A validated breakpoint table ends at position 0; reaching here
		// means the catalog let a bad table through.
		return id.NumericGrade(system.Min), nil

	default:
		return id.GradeValue{}, dErrors.Newf(dErrors.CodeUnsupportedSystem,
			"system %s has unknown kind %q", system.ID, system.Kind)
	}
}

// Rescale converts a native value between two systems through the canonical
// axis. This is the deterministic mapping function at the heart of the
// engine; strategy selection happens inside Normalize/Denormalize based on
// each system's kind.
func Rescale(from, to catalog.System, value id.GradeValue) (id.GradeValue, error) {
	p, err := Normalize(from, value)
	if err != nil {
		return id.GradeValue{}, err
	}
	return Denormalize(to, p)
}
