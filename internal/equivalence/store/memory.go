// Package store persists equivalence edges. An unordered pair exists at most
// once per level stage in every backend.
package store

import (
	"context"
	"sync"

	"gradenorm/internal/equivalence/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
)

type pairKey struct {
	a, b  id.SubjectID
	stage id.LevelStage
}

// InMemory keeps edges in a set keyed by canonical pair. The single mutex
// serializes all edge mutation, which subsumes the per-(subject, stage)
// serialization concurrent additions require.
type InMemory struct {
	mu    sync.RWMutex
	edges map[pairKey]models.Edge
}

func NewInMemory() *InMemory {
	return &InMemory{edges: make(map[pairKey]models.Edge)}
}

// AddEdge inserts the edge, or reports ErrAlreadyUsed when the pair already
// exists at that stage.
func (s *InMemory) AddEdge(_ context.Context, e models.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{a: e.SubjectA, b: e.SubjectB, stage: e.LevelStage}
	if _, exists := s.edges[key]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.edges[key] = e
	return nil
}

// RemoveBySubject deletes every edge incident to the subject at the stage and
// returns how many were removed.
func (s *InMemory) RemoveBySubject(_ context.Context, subjectID id.SubjectID, stage id.LevelStage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.edges {
		if key.stage == stage && e.Touches(subjectID) {
			delete(s.edges, key)
			removed++
		}
	}
	return removed, nil
}

// Neighbors returns the subjects directly linked to subjectID at the stage.
func (s *InMemory) Neighbors(_ context.Context, subjectID id.SubjectID, stage id.LevelStage) ([]id.SubjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.SubjectID
	for key, e := range s.edges {
		if key.stage == stage && e.Touches(subjectID) {
			out = append(out, e.Other(subjectID))
		}
	}
	return out, nil
}

// ListEdges returns every edge at the stage.
func (s *InMemory) ListEdges(_ context.Context, stage id.LevelStage) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Edge
	for key, e := range s.edges {
		if key.stage == stage {
			out = append(out, e)
		}
	}
	return out, nil
}
