// Package service maintains the subject equivalence graph: symmetric edges
// per level stage, with equivalence classes materialized on demand by
// breadth-first traversal rather than kept as explicit class ids. Edge list
// plus traversal keeps removal trivially correct; class-id bookkeeping would
// need re-merging logic on every removal.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"gradenorm/internal/audit"
	emetrics "gradenorm/internal/equivalence/metrics"
	"gradenorm/internal/equivalence/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/requestcontext"
)

// Store is the persistence contract for the edge list. AddEdge must be
// atomic per canonical pair so racing additions cannot both land.
type Store interface {
	AddEdge(ctx context.Context, e models.Edge) error
	RemoveBySubject(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) (int, error)
	Neighbors(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) ([]id.SubjectID, error)
	ListEdges(ctx context.Context, stage id.LevelStage) ([]models.Edge, error)
}

// Service owns equivalence edges independently of any student's data.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *emetrics.Metrics
	audit   audit.Publisher
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *emetrics.Metrics
	audit   audit.Publisher
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *emetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(c *serviceConfig) { c.audit = p }
}

func New(store Store, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Service{
		store:   store,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		audit:   cfg.audit,
	}
}

// AddEquivalence declares two subjects interchangeable at a level stage.
// Fails with self_equivalence when both sides name the same subject; adding
// an edge that already exists is a no-op, not an error.
func (s *Service) AddEquivalence(ctx context.Context, a, b id.SubjectID, stage id.LevelStage) error {
	if a.IsNil() || b.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "both subject ids are required")
	}
	if a == b {
		return dErrors.Newf(dErrors.CodeSelfEquivalence,
			"subject %s cannot be equivalent to itself", a)
	}
	if _, err := id.ParseLevelStage(stage.Int()); err != nil {
		return err
	}

	edge := models.NewEdge(a, b, stage, requestcontext.Now(ctx))
	if err := s.store.AddEdge(ctx, edge); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add equivalence edge")
	}

	if s.metrics != nil {
		s.metrics.EdgesAdded.Inc()
	}
	s.emit(ctx, audit.Event{
		Operation:  audit.OpEquivalenceAdded,
		EntityType: "equivalence_edge",
		EntityID:   edge.SubjectA.String() + ":" + edge.SubjectB.String(),
		Detail: map[string]string{
			"level_stage": stage.Label(),
		},
	})
	return nil
}

// RemoveFromCycle removes every edge touching the subject at the stage,
// isolating it back into a singleton class. Removing from an empty adjacency
// is not an error.
func (s *Service) RemoveFromCycle(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) error {
	if subjectID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if _, err := id.ParseLevelStage(stage.Int()); err != nil {
		return err
	}

	removed, err := s.store.RemoveBySubject(ctx, subjectID, stage)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove equivalence edges")
	}
	if removed == 0 {
		return nil
	}

	if s.metrics != nil {
		s.metrics.EdgesRemoved.Add(float64(removed))
	}
	s.emit(ctx, audit.Event{
		Operation:  audit.OpEquivalenceRemoved,
		EntityType: "subject",
		EntityID:   subjectID.String(),
		Detail: map[string]string{
			"level_stage":   stage.Label(),
			"edges_removed": strconv.Itoa(removed),
		},
	})
	return nil
}

// EquivalentsOf returns the connected component containing the subject at
// the stage, excluding the subject itself. Equivalence is transitive even
// though edges are pairwise: (A,B) and (B,C) make C equivalent to A.
func (s *Service) EquivalentsOf(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) ([]id.SubjectID, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if _, err := id.ParseLevelStage(stage.Int()); err != nil {
		return nil, err
	}

	seen := map[id.SubjectID]bool{subjectID: true}
	queue := []id.SubjectID{subjectID}
	var out []id.SubjectID
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		neighbors, err := s.store.Neighbors(ctx, current, stage)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to traverse equivalence graph")
		}
		for _, n := range neighbors {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}

	// Deterministic order for callers and tests.
	slices.SortFunc(out, func(a, b id.SubjectID) int {
		return strings.Compare(a.String(), b.String())
	})
	if s.metrics != nil {
		s.metrics.ClosureSizes.Observe(float64(len(out)))
	}
	return out, nil
}

// Edges returns the stage's raw edge list, oldest first where the store
// orders by creation.
func (s *Service) Edges(ctx context.Context, stage id.LevelStage) ([]models.Edge, error) {
	if _, err := id.ParseLevelStage(stage.Int()); err != nil {
		return nil, err
	}
	edges, err := s.store.ListEdges(ctx, stage)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list equivalence edges")
	}
	return edges, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"operation", string(event.Operation),
			"entity_id", event.EntityID,
			"error", err)
	}
}

