package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gradenorm/internal/audit"
	auditstore "gradenorm/internal/audit/store"
	estore "gradenorm/internal/equivalence/store"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

const stage id.LevelStage = 13

type EquivalenceSuite struct {
	suite.Suite
	store   *estore.InMemory
	events  *auditstore.InMemory
	service *Service

	a, b, c id.SubjectID
}

func TestEquivalenceSuite(t *testing.T) {
	suite.Run(t, new(EquivalenceSuite))
}

func (s *EquivalenceSuite) SetupTest() {
	s.store = estore.NewInMemory()
	s.events = auditstore.NewInMemory()
	s.service = New(s.store, WithAuditPublisher(audit.NewStorePublisher(s.events)))

	s.a = id.SubjectID(uuid.New())
	s.b = id.SubjectID(uuid.New())
	s.c = id.SubjectID(uuid.New())
}

func (s *EquivalenceSuite) TestAddEquivalence() {
	ctx := context.Background()

	s.Run("adds an edge", func() {
		s.Require().NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage))
		edges, err := s.service.Edges(ctx, stage)
		s.Require().NoError(err)
		s.Len(edges, 1)
	})

	s.Run("duplicate add is a no-op regardless of argument order", func() {
		s.NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage))
		s.NoError(s.service.AddEquivalence(ctx, s.b, s.a, stage))
		edges, err := s.service.Edges(ctx, stage)
		s.Require().NoError(err)
		s.Len(edges, 1)
	})

	s.Run("self equivalence rejected", func() {
		err := s.service.AddEquivalence(ctx, s.a, s.a, stage)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfEquivalence))
	})

	s.Run("level stage out of range rejected", func() {
		err := s.service.AddEquivalence(ctx, s.a, s.c, 99)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("same pair at another stage is a distinct edge", func() {
		s.Require().NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage-1))
		edges, err := s.service.Edges(ctx, stage-1)
		s.Require().NoError(err)
		s.Len(edges, 1)
	})
}

func (s *EquivalenceSuite) TestClosureIsTransitive() {
	ctx := context.Background()
	s.Require().NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage))
	s.Require().NoError(s.service.AddEquivalence(ctx, s.b, s.c, stage))

	s.Run("from an endpoint", func() {
		got, err := s.service.EquivalentsOf(ctx, s.a, stage)
		s.Require().NoError(err)
		s.ElementsMatch([]id.SubjectID{s.b, s.c}, got)
	})

	s.Run("from the other endpoint", func() {
		got, err := s.service.EquivalentsOf(ctx, s.c, stage)
		s.Require().NoError(err)
		s.ElementsMatch([]id.SubjectID{s.a, s.b}, got)
	})

	s.Run("excludes the subject itself", func() {
		got, err := s.service.EquivalentsOf(ctx, s.b, stage)
		s.Require().NoError(err)
		s.NotContains(got, s.b)
	})

	s.Run("stages do not bleed into each other", func() {
		got, err := s.service.EquivalentsOf(ctx, s.a, stage-1)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("isolated subject has an empty closure", func() {
		got, err := s.service.EquivalentsOf(ctx, id.SubjectID(uuid.New()), stage)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *EquivalenceSuite) TestRemoveFromCycle() {
	ctx := context.Background()
	s.Require().NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage))
	s.Require().NoError(s.service.AddEquivalence(ctx, s.b, s.c, stage))

	s.Run("removing the bridge empties both sides", func() {
		s.Require().NoError(s.service.RemoveFromCycle(ctx, s.b, stage))

		got, err := s.service.EquivalentsOf(ctx, s.a, stage)
		s.Require().NoError(err)
		s.Empty(got)

		got, err = s.service.EquivalentsOf(ctx, s.c, stage)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("removing from an empty adjacency is silent", func() {
		s.NoError(s.service.RemoveFromCycle(ctx, s.b, stage))
	})

	s.Run("audit records the edge count", func() {
		events, err := s.events.ListByEntity(ctx, s.b.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1, "the silent no-op removal emits nothing")
		s.Equal(audit.OpEquivalenceRemoved, events[0].Operation)
		s.Equal("2", events[0].Detail["edges_removed"])
	})
}

func (s *EquivalenceSuite) TestRemoveLeavesRestIntact() {
	ctx := context.Background()
	d := id.SubjectID(uuid.New())
	s.Require().NoError(s.service.AddEquivalence(ctx, s.a, s.b, stage))
	s.Require().NoError(s.service.AddEquivalence(ctx, s.b, s.c, stage))
	s.Require().NoError(s.service.AddEquivalence(ctx, s.c, d, stage))

	// Dropping an endpoint keeps the remaining chain connected.
	s.Require().NoError(s.service.RemoveFromCycle(ctx, s.a, stage))

	got, err := s.service.EquivalentsOf(ctx, s.b, stage)
	s.Require().NoError(err)
	s.ElementsMatch([]id.SubjectID{s.c, d}, got)
}
