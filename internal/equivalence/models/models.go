// Package models defines equivalence edges between subjects.
package models

import (
	"strings"
	"time"

	id "gradenorm/pkg/domain"
)

// Edge declares two subjects interchangeable for credit at a level stage.
// Symmetric by construction: one stored edge answers queries from either
// side. SubjectA and SubjectB are kept in canonical order so an unordered
// pair maps to exactly one row.
type Edge struct {
	SubjectA   id.SubjectID  `json:"subject_a"`
	SubjectB   id.SubjectID  `json:"subject_b"`
	LevelStage id.LevelStage `json:"level_stage"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewEdge builds an edge with the pair in canonical order.
func NewEdge(a, b id.SubjectID, stage id.LevelStage, createdAt time.Time) Edge {
	a, b = OrderPair(a, b)
	return Edge{SubjectA: a, SubjectB: b, LevelStage: stage, CreatedAt: createdAt}
}

// OrderPair returns the two subjects in canonical (lexicographic) order.
func OrderPair(a, b id.SubjectID) (id.SubjectID, id.SubjectID) {
	if strings.Compare(a.String(), b.String()) > 0 {
		return b, a
	}
	return a, b
}

// Touches reports whether the edge is incident to the subject.
func (e Edge) Touches(subjectID id.SubjectID) bool {
	return e.SubjectA == subjectID || e.SubjectB == subjectID
}

// Other returns the edge's far end relative to the subject.
func (e Edge) Other(subjectID id.SubjectID) id.SubjectID {
	if e.SubjectA == subjectID {
		return e.SubjectB
	}
	return e.SubjectA
}
