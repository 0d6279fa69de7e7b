//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradenorm/internal/equivalence/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, pc.Apply(ctx, Schema()))

	store := NewPostgres(pc.Pool)
	const stage id.LevelStage = 12
	a := id.SubjectID(uuid.New())
	b := id.SubjectID(uuid.New())
	c := id.SubjectID(uuid.New())
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("add is idempotent per canonical pair", func(t *testing.T) {
		require.NoError(t, store.AddEdge(ctx, models.NewEdge(a, b, stage, now)))
		err := store.AddEdge(ctx, models.NewEdge(b, a, stage, now))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed,
			"the swapped pair canonicalizes onto the same row")
	})

	t.Run("neighbors see both orientations", func(t *testing.T) {
		require.NoError(t, store.AddEdge(ctx, models.NewEdge(b, c, stage, now.Add(time.Second))))

		neighbors, err := store.Neighbors(ctx, b, stage)
		require.NoError(t, err)
		assert.ElementsMatch(t, []id.SubjectID{a, c}, neighbors)
	})

	t.Run("edges list per stage in creation order", func(t *testing.T) {
		edges, err := store.ListEdges(ctx, stage)
		require.NoError(t, err)
		require.Len(t, edges, 2)

		other, err := store.ListEdges(ctx, stage+1)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("remove drops every incident edge and reports the count", func(t *testing.T) {
		removed, err := store.RemoveBySubject(ctx, b, stage)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		neighbors, err := store.Neighbors(ctx, a, stage)
		require.NoError(t, err)
		assert.Empty(t, neighbors)

		removed, err = store.RemoveBySubject(ctx, b, stage)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
