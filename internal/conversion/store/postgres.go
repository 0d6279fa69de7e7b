package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"gradenorm/internal/conversion/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/platform/tx"
)

// Postgres persists conversion records append-only.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema returns the DDL this store expects.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS conversion_records (
	id             UUID PRIMARY KEY,
	exam_id        UUID NOT NULL,
	from_system    TEXT NOT NULL,
	to_system      TEXT NOT NULL,
	origin_numeric DOUBLE PRECISION,
	origin_label   TEXT,
	result_numeric DOUBLE PRECISION,
	result_label   TEXT,
	rule_authority TEXT NOT NULL,
	rule_version   TEXT NOT NULL,
	rule_method    TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_exam_target
	ON conversion_records (exam_id, to_system, created_at DESC);
`
}

func (s *Postgres) Append(ctx context.Context, rec *models.ConversionRecord) error {
	originNumeric, originLabel := splitGrade(rec.OriginValue)
	resultNumeric, resultLabel := splitGrade(rec.ResultValue)
	run := s.db.ExecContext
	if t, ok := tx.From(ctx); ok {
		// Batch importers convert many exams atomically; the append joins
		// their transaction when one is open.
		run = t.ExecContext
	}
	_, err := run(ctx, `
		INSERT INTO conversion_records
			(id, exam_id, from_system, to_system,
			 origin_numeric, origin_label, result_numeric, result_label,
			 rule_authority, rule_version, rule_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID.String(), rec.ExamID.String(), rec.FromSystem, rec.ToSystem,
		originNumeric, originLabel, resultNumeric, resultLabel,
		rec.Rule.Authority, rec.Rule.Version, rec.Rule.Method, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append conversion record: %w", err)
	}
	return nil
}

func (s *Postgres) ListByExam(ctx context.Context, examID id.ExamID) ([]models.ConversionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, from_system, to_system,
		       origin_numeric, origin_label, result_numeric, result_label,
		       rule_authority, rule_version, rule_method, created_at
		FROM conversion_records WHERE exam_id = $1 ORDER BY created_at`, examID.String())
	if err != nil {
		return nil, fmt.Errorf("list conversion records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Postgres) Latest(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, from_system, to_system,
		       origin_numeric, origin_label, result_numeric, result_label,
		       rule_authority, rule_version, rule_method, created_at
		FROM conversion_records
		WHERE exam_id = $1 AND to_system = $2
		ORDER BY created_at DESC LIMIT 1`, examID.String(), toSystem)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

// LatestBatch resolves the latest record per exam for one target system in a
// single round trip. Exams without a conversion are absent from the result.
func (s *Postgres) LatestBatch(ctx context.Context, examIDs []id.ExamID, toSystem string) (map[id.ExamID]models.ConversionRecord, error) {
	if len(examIDs) == 0 {
		return map[id.ExamID]models.ConversionRecord{}, nil
	}
	ids := make([]string, len(examIDs))
	for i, examID := range examIDs {
		ids[i] = examID.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (exam_id)
		       id, exam_id, from_system, to_system,
		       origin_numeric, origin_label, result_numeric, result_label,
		       rule_authority, rule_version, rule_method, created_at
		FROM conversion_records
		WHERE exam_id = ANY($1) AND to_system = $2
		ORDER BY exam_id, created_at DESC`, pq.Array(ids), toSystem)
	if err != nil {
		return nil, fmt.Errorf("latest conversion batch: %w", err)
	}
	defer rows.Close()

	out := make(map[id.ExamID]models.ConversionRecord)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ExamID] = *rec
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ConversionRecord, error) {
	var (
		rec           models.ConversionRecord
		recID, examID string
		originNumeric *float64
		originLabel   *string
		resultNumeric *float64
		resultLabel   *string
	)
	err := row.Scan(&recID, &examID, &rec.FromSystem, &rec.ToSystem,
		&originNumeric, &originLabel, &resultNumeric, &resultLabel,
		&rec.Rule.Authority, &rec.Rule.Version, &rec.Rule.Method, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversion record: %w", err)
	}
	parsedID, err := id.ParseConversionID(recID)
	if err != nil {
		return nil, err
	}
	parsedExam, err := id.ParseExamID(examID)
	if err != nil {
		return nil, err
	}
	rec.ID = parsedID
	rec.ExamID = parsedExam
	rec.OriginValue = joinGrade(originNumeric, originLabel)
	rec.ResultValue = joinGrade(resultNumeric, resultLabel)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]models.ConversionRecord, error) {
	var out []models.ConversionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func splitGrade(v id.GradeValue) (*float64, *string) {
	if v.IsLabel() {
		return nil, &v.Label
	}
	return &v.Numeric, nil
}

func joinGrade(numeric *float64, label *string) id.GradeValue {
	if label != nil {
		return id.LabelGrade(*label)
	}
	if numeric != nil {
		return id.NumericGrade(*numeric)
	}
	return id.GradeValue{}
}
