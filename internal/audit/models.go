// Package audit captures immutable audit events for every write operation in
// the record engine. The engine emits events; retention and querying belong
// to the audit backend, not this core.
package audit

import "time"

// EventCategory classifies audit events by their primary purpose, enabling
// different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: grade
	// conversions and anything that changes a student's official record.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine registry activity useful for
	// debugging; these can be sampled or aggregated downstream.
	CategoryOperations EventCategory = "operations"
)

// Operation names the write that occurred.
type Operation string

const (
	OpInstitutionCreated  Operation = "institution_created"
	OpSubjectCreated      Operation = "subject_created"
	OpInstitutionEnrolled Operation = "institution_enrolled"
	OpSubjectEnrolled     Operation = "subject_enrolled"
	OpExamRecorded        Operation = "exam_recorded"
	OpGradeConverted      Operation = "grade_converted"
	OpEquivalenceAdded    Operation = "equivalence_added"
	OpEquivalenceRemoved  Operation = "equivalence_removed"
)

// opCategories maps operations to categories. Conversions and exam records
// change the official transcript and need long retention; registry writes
// are operational.
var opCategories = map[Operation]EventCategory{
	OpInstitutionCreated:  CategoryOperations,
	OpSubjectCreated:      CategoryOperations,
	OpInstitutionEnrolled: CategoryCompliance,
	OpSubjectEnrolled:     CategoryCompliance,
	OpExamRecorded:        CategoryCompliance,
	OpGradeConverted:      CategoryCompliance,
	OpEquivalenceAdded:    CategoryOperations,
	OpEquivalenceRemoved:  CategoryOperations,
}

// Category returns the category for this operation. Unknown operations
// default to operations.
func (o Operation) Category() EventCategory {
	if cat, ok := opCategories[o]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic on every successful write. Kept
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Operation  Operation     `json:"operation"`
	Category   EventCategory `json:"category"`
	EntityType string        `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	// Detail carries operation-specific context (student id, target system)
	// for forensics. Values must already be PII-safe.
	Detail map[string]string `json:"detail,omitempty"`
}
