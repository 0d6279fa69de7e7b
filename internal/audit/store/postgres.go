package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gradenorm/internal/audit"
	"gradenorm/pkg/platform/tx"
)

// Postgres appends audit events to a single table. database/sql keeps this
// store usable with whichever pq-compatible driver the deployment registers.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema returns the DDL this store expects.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS audit_events (
	id          BIGSERIAL PRIMARY KEY,
	operation   TEXT NOT NULL,
	category    TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	request_id  TEXT,
	actor       TEXT,
	detail      JSONB
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_events (entity_id, occurred_at);
`
}

func (s *Postgres) Append(ctx context.Context, event audit.Event) error {
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}
	run := s.db.ExecContext
	if t, ok := tx.From(ctx); ok {
		// Events ride along in the caller's transaction when one is open.
		run = t.ExecContext
	}
	_, err := run(ctx, `
		INSERT INTO audit_events (operation, category, entity_type, entity_id, occurred_at, request_id, actor, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(event.Operation), string(event.Category), event.EntityType, event.EntityID,
		event.Timestamp, nullable(event.RequestID), nullable(event.Actor), detail)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Postgres) ListByEntity(ctx context.Context, entityID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, category, entity_type, entity_id, occurred_at, request_id, actor, detail
		FROM audit_events WHERE entity_id = $1 ORDER BY occurred_at`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			op        string
			cat       string
			requestID sql.NullString
			actor     sql.NullString
			detail    []byte
		)
		if err := rows.Scan(&op, &cat, &e.EntityType, &e.EntityID, &e.Timestamp, &requestID, &actor, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Operation = audit.Operation(op)
		e.Category = audit.EventCategory(cat)
		e.RequestID = requestID.String
		e.Actor = actor.String
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
