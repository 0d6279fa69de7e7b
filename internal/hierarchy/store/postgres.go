package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/platform/sentinel"
)

// Postgres persists the containment tree. Enrollment overlap checks run
// inside a transaction holding a per-student advisory lock, which serializes
// overlap-checked writes for one student without blocking other students.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema returns the DDL this store expects. Ship it through your migration
// tool; the store never creates tables itself.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS institutions (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	country_iso3  CHAR(3) NOT NULL,
	system_id     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_institutions_name
	ON institutions (lower(name));
CREATE TABLE IF NOT EXISTS subjects (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	level_stage INT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_subjects_name_stage
	ON subjects (lower(name), level_stage);
CREATE TABLE IF NOT EXISTS institution_enrollments (
	id             UUID PRIMARY KEY,
	student_id     UUID NOT NULL,
	institution_id UUID NOT NULL REFERENCES institutions(id),
	start_date     DATE NOT NULL,
	end_date       DATE,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inst_enroll_student
	ON institution_enrollments (student_id, institution_id);
CREATE TABLE IF NOT EXISTS subject_enrollments (
	id             UUID PRIMARY KEY,
	student_id     UUID NOT NULL,
	institution_id UUID NOT NULL REFERENCES institutions(id),
	subject_id     UUID NOT NULL REFERENCES subjects(id),
	enrollment_id  UUID NOT NULL REFERENCES institution_enrollments(id),
	start_date     DATE NOT NULL,
	end_date       DATE,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subj_enroll_student
	ON subject_enrollments (student_id, subject_id);
CREATE TABLE IF NOT EXISTS exam_instances (
	id                    UUID PRIMARY KEY,
	student_id            UUID NOT NULL,
	subject_enrollment_id UUID NOT NULL REFERENCES subject_enrollments(id),
	subject_id            UUID NOT NULL,
	institution_id        UUID NOT NULL,
	name                  TEXT NOT NULL,
	exam_type             TEXT NOT NULL,
	origin_system         TEXT NOT NULL,
	origin_numeric        DOUBLE PRECISION,
	origin_label          TEXT,
	exam_date             DATE NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exams_student_subject
	ON exam_instances (student_id, subject_id, exam_date);
CREATE INDEX IF NOT EXISTS idx_exams_institution
	ON exam_instances (institution_id, exam_date);
`
}

func (p *Postgres) CreateInstitution(ctx context.Context, inst *models.Institution) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO institutions (id, name, country_iso3, system_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		inst.ID.String(), inst.Name, inst.CountryISO3, inst.SystemID, inst.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert institution: %w", err)
	}
	return nil
}

func (p *Postgres) GetInstitution(ctx context.Context, instID id.InstitutionID) (*models.Institution, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, country_iso3, system_id, created_at
		FROM institutions WHERE id = $1`, instID.String())
	return scanInstitution(row)
}

func (p *Postgres) ListInstitutions(ctx context.Context) ([]models.Institution, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, country_iso3, system_id, created_at
		FROM institutions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()
	return collectInstitutions(rows)
}

func (p *Postgres) ListInstitutionsByCountry(ctx context.Context, iso3 string) ([]models.Institution, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, country_iso3, system_id, created_at
		FROM institutions WHERE country_iso3 = $1 ORDER BY name`, iso3)
	if err != nil {
		return nil, fmt.Errorf("list institutions by country: %w", err)
	}
	defer rows.Close()
	return collectInstitutions(rows)
}

func (p *Postgres) CreateSubject(ctx context.Context, subj *models.Subject) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subjects (id, name, level_stage, created_at)
		VALUES ($1, $2, $3, $4)`,
		subj.ID.String(), subj.Name, subj.LevelStage.Int(), subj.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (p *Postgres) GetSubject(ctx context.Context, subjID id.SubjectID) (*models.Subject, error) {
	var (
		subj  models.Subject
		sid   string
		stage int
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, level_stage, created_at FROM subjects WHERE id = $1`,
		subjID.String()).Scan(&sid, &subj.Name, &stage, &subj.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	parsed, err := id.ParseSubjectID(sid)
	if err != nil {
		return nil, err
	}
	subj.ID = parsed
	subj.LevelStage = id.LevelStage(stage)
	return &subj, nil
}

func (p *Postgres) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, level_stage, created_at FROM subjects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	var out []models.Subject
	for rows.Next() {
		var (
			subj  models.Subject
			sid   string
			stage int
		)
		if err := rows.Scan(&sid, &subj.Name, &stage, &subj.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		parsed, err := id.ParseSubjectID(sid)
		if err != nil {
			return nil, err
		}
		subj.ID = parsed
		subj.LevelStage = id.LevelStage(stage)
		out = append(out, subj)
	}
	return out, rows.Err()
}

// CreateEnrollmentIfNoOverlap checks for intersecting enrollments and inserts
// atomically. The advisory lock keys on the student id so concurrent writes
// for different students never contend.
func (p *Postgres) CreateEnrollmentIfNoOverlap(ctx context.Context, e *models.InstitutionEnrollment) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, e.StudentID.String()); err != nil {
		return fmt.Errorf("acquire student lock: %w", err)
	}

	// Open-ended ranges extend to infinity for the overlap test.
	var overlaps bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM institution_enrollments
			WHERE student_id = $1 AND institution_id = $2
			  AND daterange(start_date, COALESCE(end_date, 'infinity'::date), '[]')
			   && daterange($3::date, COALESCE($4::date, 'infinity'::date), '[]')
		)`,
		e.StudentID.String(), e.InstitutionID.String(), e.Interval.Start, e.Interval.End).Scan(&overlaps)
	if err != nil {
		return fmt.Errorf("check enrollment overlap: %w", err)
	}
	if overlaps {
		return sentinel.ErrConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO institution_enrollments (id, student_id, institution_id, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID.String(), e.StudentID.String(), e.InstitutionID.String(),
		e.Interval.Start, e.Interval.End, e.CreatedAt); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) FindCoveringEnrollment(ctx context.Context, studentID id.StudentID, instID id.InstitutionID, iv models.Interval) (*models.InstitutionEnrollment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, student_id, institution_id, start_date, end_date, created_at
		FROM institution_enrollments
		WHERE student_id = $1 AND institution_id = $2 AND start_date <= $3
		ORDER BY start_date`,
		studentID.String(), instID.String(), iv.Start)
	if err != nil {
		return nil, fmt.Errorf("find covering enrollment: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		if e.Interval.Covers(iv) {
			return e, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, sentinel.ErrNotFound
}

func (p *Postgres) CreateSubjectEnrollment(ctx context.Context, se *models.SubjectEnrollment) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subject_enrollments
			(id, student_id, institution_id, subject_id, enrollment_id, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		se.ID.String(), se.StudentID.String(), se.InstitutionID.String(), se.SubjectID.String(),
		se.EnrollmentID.String(), se.Interval.Start, se.Interval.End, se.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subject enrollment: %w", err)
	}
	return nil
}

func (p *Postgres) GetSubjectEnrollment(ctx context.Context, seID id.SubjectEnrollmentID) (*models.SubjectEnrollment, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, student_id, institution_id, subject_id, enrollment_id, start_date, end_date, created_at
		FROM subject_enrollments WHERE id = $1`, seID.String())
	return scanSubjectEnrollment(row)
}

func (p *Postgres) ListSubjectEnrollments(ctx context.Context, studentID id.StudentID) ([]models.SubjectEnrollment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, student_id, institution_id, subject_id, enrollment_id, start_date, end_date, created_at
		FROM subject_enrollments WHERE student_id = $1 ORDER BY start_date`,
		studentID.String())
	if err != nil {
		return nil, fmt.Errorf("list subject enrollments: %w", err)
	}
	defer rows.Close()
	return collectSubjectEnrollments(rows)
}

func (p *Postgres) ListSubjectEnrollmentsBySubject(ctx context.Context, studentID id.StudentID, subjectID id.SubjectID) ([]models.SubjectEnrollment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, student_id, institution_id, subject_id, enrollment_id, start_date, end_date, created_at
		FROM subject_enrollments
		WHERE student_id = $1 AND subject_id = $2 ORDER BY start_date`,
		studentID.String(), subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("list subject enrollments by subject: %w", err)
	}
	defer rows.Close()
	return collectSubjectEnrollments(rows)
}

func (p *Postgres) CreateExam(ctx context.Context, e *models.ExamInstance) error {
	var numeric *float64
	var label *string
	if e.OriginValue.IsLabel() {
		label = &e.OriginValue.Label
	} else {
		numeric = &e.OriginValue.Numeric
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO exam_instances
			(id, student_id, subject_enrollment_id, subject_id, institution_id,
			 name, exam_type, origin_system, origin_numeric, origin_label, exam_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID.String(), e.StudentID.String(), e.SubjectEnrollmentID.String(),
		e.SubjectID.String(), e.InstitutionID.String(),
		e.Name, string(e.Type), e.OriginSystem, numeric, label, e.Date, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}

func (p *Postgres) GetExam(ctx context.Context, examID id.ExamID) (*models.ExamInstance, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, student_id, subject_enrollment_id, subject_id, institution_id,
		       name, exam_type, origin_system, origin_numeric, origin_label, exam_date, created_at
		FROM exam_instances WHERE id = $1`, examID.String())
	return scanExam(row)
}

func (p *Postgres) ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamInstance, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.StudentID != nil {
		add("student_id = $%d", filter.StudentID.String())
	}
	if filter.SubjectID != nil {
		add("subject_id = $%d", filter.SubjectID.String())
	}
	if filter.InstitutionID != nil {
		add("institution_id = $%d", filter.InstitutionID.String())
	}
	if filter.SubjectEnrollmentID != nil {
		add("subject_enrollment_id = $%d", filter.SubjectEnrollmentID.String())
	}
	if filter.From != nil {
		add("exam_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("exam_date <= $%d", *filter.To)
	}
	query := `
		SELECT id, student_id, subject_enrollment_id, subject_id, institution_id,
		       name, exam_type, origin_system, origin_numeric, origin_label, exam_date, created_at
		FROM exam_instances`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY exam_date, created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()
	var out []models.ExamInstance
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstitution(row rowScanner) (*models.Institution, error) {
	var (
		inst models.Institution
		sid  string
	)
	err := row.Scan(&sid, &inst.Name, &inst.CountryISO3, &inst.SystemID, &inst.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan institution: %w", err)
	}
	parsed, err := id.ParseInstitutionID(sid)
	if err != nil {
		return nil, err
	}
	inst.ID = parsed
	inst.CountryISO3 = strings.TrimSpace(inst.CountryISO3)
	return &inst, nil
}

func collectInstitutions(rows pgx.Rows) ([]models.Institution, error) {
	var out []models.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func scanEnrollment(row rowScanner) (*models.InstitutionEnrollment, error) {
	var (
		e          models.InstitutionEnrollment
		eid        string
		studentID  string
		instID     string
		start      time.Time
		end        *time.Time
	)
	err := row.Scan(&eid, &studentID, &instID, &start, &end, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollment: %w", err)
	}
	parsedID, err := id.ParseEnrollmentID(eid)
	if err != nil {
		return nil, err
	}
	parsedStudent, err := id.ParseStudentID(studentID)
	if err != nil {
		return nil, err
	}
	parsedInst, err := id.ParseInstitutionID(instID)
	if err != nil {
		return nil, err
	}
	e.ID = parsedID
	e.StudentID = parsedStudent
	e.InstitutionID = parsedInst
	e.Interval = models.Interval{Start: start, End: end}
	return &e, nil
}

func scanSubjectEnrollment(row rowScanner) (*models.SubjectEnrollment, error) {
	var (
		se        models.SubjectEnrollment
		seID      string
		studentID string
		instID    string
		subjectID string
		enrollID  string
		start     time.Time
		end       *time.Time
	)
	err := row.Scan(&seID, &studentID, &instID, &subjectID, &enrollID, &start, &end, &se.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subject enrollment: %w", err)
	}
	parsedID, err := id.ParseSubjectEnrollmentID(seID)
	if err != nil {
		return nil, err
	}
	parsedStudent, err := id.ParseStudentID(studentID)
	if err != nil {
		return nil, err
	}
	parsedInst, err := id.ParseInstitutionID(instID)
	if err != nil {
		return nil, err
	}
	parsedSubject, err := id.ParseSubjectID(subjectID)
	if err != nil {
		return nil, err
	}
	parsedEnroll, err := id.ParseEnrollmentID(enrollID)
	if err != nil {
		return nil, err
	}
	se.ID = parsedID
	se.StudentID = parsedStudent
	se.InstitutionID = parsedInst
	se.SubjectID = parsedSubject
	se.EnrollmentID = parsedEnroll
	se.Interval = models.Interval{Start: start, End: end}
	return &se, nil
}

func collectSubjectEnrollments(rows pgx.Rows) ([]models.SubjectEnrollment, error) {
	var out []models.SubjectEnrollment
	for rows.Next() {
		se, err := scanSubjectEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *se)
	}
	return out, rows.Err()
}

func scanExam(row rowScanner) (*models.ExamInstance, error) {
	var (
		e         models.ExamInstance
		examID    string
		studentID string
		seID      string
		subjectID string
		instID    string
		examType  string
		numeric   *float64
		label     *string
	)
	err := row.Scan(&examID, &studentID, &seID, &subjectID, &instID,
		&e.Name, &examType, &e.OriginSystem, &numeric, &label, &e.Date, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan exam: %w", err)
	}
	parsedExam, err := id.ParseExamID(examID)
	if err != nil {
		return nil, err
	}
	parsedStudent, err := id.ParseStudentID(studentID)
	if err != nil {
		return nil, err
	}
	parsedSE, err := id.ParseSubjectEnrollmentID(seID)
	if err != nil {
		return nil, err
	}
	parsedSubject, err := id.ParseSubjectID(subjectID)
	if err != nil {
		return nil, err
	}
	parsedInst, err := id.ParseInstitutionID(instID)
	if err != nil {
		return nil, err
	}
	e.ID = parsedExam
	e.StudentID = parsedStudent
	e.SubjectEnrollmentID = parsedSE
	e.SubjectID = parsedSubject
	e.InstitutionID = parsedInst
	e.Type = models.ExamType(examType)
	if label != nil {
		e.OriginValue = id.LabelGrade(*label)
	} else if numeric != nil {
		e.OriginValue = id.NumericGrade(*numeric)
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
