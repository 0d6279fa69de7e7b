package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gradenorm/internal/equivalence/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
)

// Postgres stores equivalence edges with the canonical pair enforced by a
// primary key, so two racing additions of the same pair cannot both land.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema returns the DDL this store expects. Callers insert the pair in
// canonical order; the CHECK keeps a misordered insert from sneaking in a
// duplicate under the other ordering.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS equivalence_edges (
	subject_a   UUID NOT NULL,
	subject_b   UUID NOT NULL,
	level_stage INT  NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_a, subject_b, level_stage),
	CHECK (subject_a < subject_b)
);
CREATE INDEX IF NOT EXISTS idx_equivalence_subject_b
	ON equivalence_edges (subject_b, level_stage);
`
}

func (s *Postgres) AddEdge(ctx context.Context, e models.Edge) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO equivalence_edges (subject_a, subject_b, level_stage, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		e.SubjectA.String(), e.SubjectB.String(), e.LevelStage.Int(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add equivalence edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) RemoveBySubject(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM equivalence_edges
		WHERE level_stage = $2 AND (subject_a = $1 OR subject_b = $1)`,
		subjectID.String(), stage.Int())
	if err != nil {
		return 0, fmt.Errorf("remove equivalence edges: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Postgres) Neighbors(ctx context.Context, subjectID id.SubjectID, stage id.LevelStage) ([]id.SubjectID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT CASE WHEN subject_a = $1 THEN subject_b ELSE subject_a END
		FROM equivalence_edges
		WHERE level_stage = $2 AND (subject_a = $1 OR subject_b = $1)`,
		subjectID.String(), stage.Int())
	if err != nil {
		return nil, fmt.Errorf("list equivalence neighbors: %w", err)
	}
	defer rows.Close()

	var out []id.SubjectID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		subjID, err := id.ParseSubjectID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, subjID)
	}
	return out, rows.Err()
}

func (s *Postgres) ListEdges(ctx context.Context, stage id.LevelStage) ([]models.Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_a, subject_b, level_stage, created_at
		FROM equivalence_edges
		WHERE level_stage = $1
		ORDER BY created_at`, stage.Int())
	if err != nil {
		return nil, fmt.Errorf("list equivalence edges: %w", err)
	}
	defer rows.Close()

	var out []models.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEdge(row pgx.Row) (models.Edge, error) {
	var (
		e          models.Edge
		rawA, rawB string
		stage      int
	)
	if err := row.Scan(&rawA, &rawB, &stage, &e.CreatedAt); err != nil {
		return models.Edge{}, fmt.Errorf("scan equivalence edge: %w", err)
	}
	subjA, err := id.ParseSubjectID(rawA)
	if err != nil {
		return models.Edge{}, err
	}
	subjB, err := id.ParseSubjectID(rawB)
	if err != nil {
		return models.Edge{}, err
	}
	parsedStage, err := id.ParseLevelStage(stage)
	if err != nil {
		return models.Edge{}, err
	}
	e.SubjectA = subjA
	e.SubjectB = subjB
	e.LevelStage = parsedStage
	return e, nil
}
