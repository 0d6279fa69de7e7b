// Package store persists conversion records. Records are append-only in
// every backend: the engine never updates or deduplicates a conversion.
package store

import (
	"context"
	"slices"
	"sync"

	"gradenorm/internal/conversion/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
)

// InMemory keeps the conversion trail in a slice per exam.
type InMemory struct {
	mu     sync.RWMutex
	byExam map[id.ExamID][]models.ConversionRecord
}

func NewInMemory() *InMemory {
	return &InMemory{byExam: make(map[id.ExamID][]models.ConversionRecord)}
}

func (s *InMemory) Append(_ context.Context, rec *models.ConversionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byExam[rec.ExamID] = append(s.byExam[rec.ExamID], *rec)
	return nil
}

func (s *InMemory) ListByExam(_ context.Context, examID id.ExamID) ([]models.ConversionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byExam[examID]), nil
}

// Latest returns the most recently appended record for (exam, toSystem).
func (s *InMemory) Latest(_ context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byExam[examID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ToSystem == toSystem {
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// LatestBatch resolves the latest record per exam for one target system.
// Exams with no conversion yet are simply absent from the result.
func (s *InMemory) LatestBatch(_ context.Context, examIDs []id.ExamID, toSystem string) (map[id.ExamID]models.ConversionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.ExamID]models.ConversionRecord)
	for _, examID := range examIDs {
		recs := s.byExam[examID]
		for i := len(recs) - 1; i >= 0; i-- {
			if recs[i].ToSystem == toSystem {
				out[examID] = recs[i]
				break
			}
		}
	}
	return out, nil
}
