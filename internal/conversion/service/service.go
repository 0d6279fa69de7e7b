// Package service orchestrates grade conversions: resolve the exam, rescale
// its origin grade into the target system, and append the resulting record to
// the provenance trail.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gradenorm/internal/audit"
	"gradenorm/internal/catalog"
	"gradenorm/internal/conversion"
	cmetrics "gradenorm/internal/conversion/metrics"
	"gradenorm/internal/conversion/models"
	hmodels "gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
	"gradenorm/pkg/platform/sentinel"
	"gradenorm/pkg/requestcontext"
)

// Store is the persistence contract for the append-only conversion trail.
type Store interface {
	Append(ctx context.Context, rec *models.ConversionRecord) error
	ListByExam(ctx context.Context, examID id.ExamID) ([]models.ConversionRecord, error)
	Latest(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, error)
	LatestBatch(ctx context.Context, examIDs []id.ExamID, toSystem string) (map[id.ExamID]models.ConversionRecord, error)
}

// LatestIndex is an optional read-through cache over Store.Latest.
type LatestIndex interface {
	Set(ctx context.Context, rec *models.ConversionRecord) error
	Get(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, bool, error)
}

// ExamReader resolves exams from the hierarchy module.
type ExamReader interface {
	GetExam(ctx context.Context, examID id.ExamID) (*hmodels.ExamInstance, error)
}

// Service performs conversions and serves the provenance trail.
type Service struct {
	store   Store
	exams   ExamReader
	catalog *catalog.Catalog
	latest  LatestIndex
	logger  *slog.Logger
	metrics *cmetrics.Recorder
	audit   audit.Publisher
}

type serviceConfig struct {
	latest  LatestIndex
	logger  *slog.Logger
	metrics *cmetrics.Recorder
	audit   audit.Publisher
}

type Option func(*serviceConfig)

func WithLatestIndex(idx LatestIndex) Option {
	return func(c *serviceConfig) { c.latest = idx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *cmetrics.Recorder) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(c *serviceConfig) { c.audit = p }
}

func New(store Store, exams ExamReader, cat *catalog.Catalog, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Service{
		store:   store,
		exams:   exams,
		catalog: cat,
		latest:  cfg.latest,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		audit:   cfg.audit,
	}
}

// Convert re-expresses an exam's origin grade in the target system and
// appends the record to the exam's trail. Converting the same exam to the
// same system twice appends two records; the trail is never collapsed.
func (s *Service) Convert(ctx context.Context, examID id.ExamID, toSystem string, rule models.RuleContext) (*models.ConversionRecord, error) {
	start := time.Now()
	defer s.observeConvert(start)

	if err := validateRule(rule); err != nil {
		return nil, err
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	from, err := s.catalog.Require(exam.OriginSystem)
	if err != nil {
		s.failure(dErrors.CodeOf(err))
		return nil, err
	}
	to, err := s.catalog.Require(toSystem)
	if err != nil {
		s.failure(dErrors.CodeOf(err))
		return nil, err
	}

	result, err := conversion.Rescale(from, to, exam.OriginValue)
	if err != nil {
		s.failure(dErrors.CodeOf(err))
		return nil, err
	}

	rec := &models.ConversionRecord{
		ID:          id.ConversionID(uuid.New()),
		ExamID:      exam.ID,
		FromSystem:  from.ID,
		ToSystem:    to.ID,
		OriginValue: exam.OriginValue,
		ResultValue: result,
		Rule:        rule,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append conversion record")
	}
	s.indexLatest(ctx, rec)

	s.incConversion(to.ID)
	s.emit(ctx, audit.Event{
		Operation:  audit.OpGradeConverted,
		EntityType: "conversion_record",
		EntityID:   rec.ID.String(),
		Detail: map[string]string{
			"exam_id":     exam.ID.String(),
			"from_system": from.ID,
			"to_system":   to.ID,
			"authority":   rule.Authority,
			"version":     rule.Version,
		},
	})
	return rec, nil
}

// Trail returns every conversion recorded for an exam, oldest first.
func (s *Service) Trail(ctx context.Context, examID id.ExamID) ([]models.ConversionRecord, error) {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListByExam(ctx, examID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list conversion records")
	}
	return recs, nil
}

// LatestConversion returns the most recent conversion of an exam into a
// target system, checking the index before falling back to the trail.
func (s *Service) LatestConversion(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, error) {
	if _, err := s.catalog.Require(toSystem); err != nil {
		return nil, err
	}

	if s.latest != nil {
		rec, ok, err := s.latest.Get(ctx, examID, toSystem)
		if err != nil {
			// Index trouble downgrades to a store read.
			s.logger.WarnContext(ctx, "latest-conversion index read failed", "error", err)
		} else if ok {
			s.incLatestIndex("hit")
			return rec, nil
		} else {
			s.incLatestIndex("miss")
		}
	}

	rec, err := s.store.Latest(ctx, examID, toSystem)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound,
				"exam %s has no conversion into %s", examID, toSystem)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest conversion")
	}
	return rec, nil
}

// LatestConversions resolves the newest conversion per exam into one target
// system. Exams that were never converted are absent from the result rather
// than an error; aggregation decides what to do with them.
func (s *Service) LatestConversions(ctx context.Context, examIDs []id.ExamID, toSystem string) (map[id.ExamID]models.ConversionRecord, error) {
	if _, err := s.catalog.Require(toSystem); err != nil {
		return nil, err
	}
	out, err := s.store.LatestBatch(ctx, examIDs, toSystem)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to batch-load latest conversions")
	}
	return out, nil
}

func validateRule(rule models.RuleContext) error {
	if rule.Authority == "" || rule.Version == "" || rule.Method == "" {
		return dErrors.New(dErrors.CodeBadRequest,
			"rule context requires authority, version, and method")
	}
	return nil
}

func (s *Service) indexLatest(ctx context.Context, rec *models.ConversionRecord) {
	if s.latest == nil {
		return
	}
	if err := s.latest.Set(ctx, rec); err != nil {
		// The store already holds the record; a stale index heals on TTL.
		s.logger.WarnContext(ctx, "latest-conversion index write failed",
			"conversion_id", rec.ID.String(), "error", err)
	}
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

func (s *Service) incConversion(toSystem string) {
	if s.metrics != nil {
		s.metrics.IncConversion(toSystem)
	}
}

func (s *Service) failure(code dErrors.Code) {
	if s.metrics != nil {
		s.metrics.IncConversionFailure(string(code))
	}
}

func (s *Service) incLatestIndex(outcome string) {
	if s.metrics != nil {
		s.metrics.IncLatestIndex(outcome)
	}
}

func (s *Service) observeConvert(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveConvert(start)
	}
}
