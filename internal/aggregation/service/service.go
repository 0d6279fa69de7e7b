// Package service computes normalized averages over exam populations. It
// pulls exams through the hierarchy, resolves each exam's grade in the
// display system via the conversion engine, and folds the survivors into an
// arithmetic mean on the canonical axis.
//
// A single unconvertible exam never aborts an aggregation. It is excluded
// and surfaces only as the gap between examsRead and examsUsedInAverage.
package service

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ametrics "gradenorm/internal/aggregation/metrics"
	"gradenorm/internal/aggregation/models"
	"gradenorm/internal/catalog"
	"gradenorm/internal/conversion"
	cmodels "gradenorm/internal/conversion/models"
	hmodels "gradenorm/internal/hierarchy/models"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

// DefaultRule is the rule context used when an aggregation has to convert an
// exam that was never converted on demand before.
var DefaultRule = cmodels.RuleContext{
	Authority: "SA-MoE",
	Version:   "v1.0",
	Method:    "demo-table",
}

// HierarchyReader selects the exam population.
type HierarchyReader interface {
	GetInstitution(ctx context.Context, instID id.InstitutionID) (*hmodels.Institution, error)
	ListInstitutionsByCountry(ctx context.Context, iso3 string) ([]hmodels.Institution, error)
	ExamSeq(ctx context.Context, filter hmodels.ExamFilter) iter.Seq2[hmodels.ExamInstance, error]
}

// Converter resolves each exam's grade in the display system.
type Converter interface {
	LatestConversions(ctx context.Context, examIDs []id.ExamID, toSystem string) (map[id.ExamID]cmodels.ConversionRecord, error)
	Convert(ctx context.Context, examID id.ExamID, toSystem string, rule cmodels.RuleContext) (*cmodels.ConversionRecord, error)
}

// Service is the aggregation engine.
type Service struct {
	hierarchy HierarchyReader
	converter Converter
	catalog   *catalog.Catalog
	rule      cmodels.RuleContext
	logger    *slog.Logger
	metrics   *ametrics.Metrics
	tracer    trace.Tracer
}

type serviceConfig struct {
	rule    cmodels.RuleContext
	logger  *slog.Logger
	metrics *ametrics.Metrics
}

type Option func(*serviceConfig)

// WithDefaultRule overrides the rule context used for on-demand conversions.
func WithDefaultRule(rule cmodels.RuleContext) Option {
	return func(c *serviceConfig) { c.rule = rule }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *ametrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

func New(hierarchy HierarchyReader, converter Converter, cat *catalog.Catalog, opts ...Option) *Service {
	cfg := &serviceConfig{rule: DefaultRule}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Service{
		hierarchy: hierarchy,
		converter: converter,
		catalog:   cat,
		rule:      cfg.rule,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		tracer:    otel.Tracer("gradenorm/aggregation"),
	}
}

// Average computes the mean grade over every exam recorded at the country's
// institutions, optionally narrowed to one institution, expressed in the
// target display system.
func (s *Service) Average(ctx context.Context, country string, institutionID *id.InstitutionID, targetSystem string) (*models.AggregateResult, error) {
	ctx, span := s.tracer.Start(ctx, "aggregation.average",
		trace.WithAttributes(
			attribute.String("country", country),
			attribute.String("target_system", targetSystem),
		))
	defer span.End()
	s.incQuery("average")

	target, err := s.catalog.Require(targetSystem)
	if err != nil {
		return nil, err
	}
	institutions, err := s.scopeInstitutions(ctx, country, institutionID)
	if err != nil {
		return nil, err
	}

	exams, err := s.collectExams(ctx, institutions)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("exams_read", len(exams)))

	acc, err := s.fold(ctx, exams, target)
	if err != nil {
		return nil, err
	}

	result := &models.AggregateResult{
		Scope:              models.Scope{Country: country, InstitutionID: institutionID},
		DisplaySystem:      target.ID,
		ExamsRead:          len(exams),
		ExamsUsedInAverage: acc.used,
	}
	if acc.used > 0 {
		value, err := conversion.Denormalize(target, acc.sum/float64(acc.used))
		if err != nil {
			return nil, err
		}
		result.DisplayValue = value
	}
	return result, nil
}

// AverageBySubject computes one aggregate per subject taught at the scope's
// institutions, ordered by display value descending. Ordering is a
// convenience default for presentation; ties break on subject id.
func (s *Service) AverageBySubject(ctx context.Context, country string, institutionID *id.InstitutionID, targetSystem string) ([]models.AggregateResult, error) {
	ctx, span := s.tracer.Start(ctx, "aggregation.average_by_subject",
		trace.WithAttributes(
			attribute.String("country", country),
			attribute.String("target_system", targetSystem),
		))
	defer span.End()
	s.incQuery("average_by_subject")

	target, err := s.catalog.Require(targetSystem)
	if err != nil {
		return nil, err
	}
	institutions, err := s.scopeInstitutions(ctx, country, institutionID)
	if err != nil {
		return nil, err
	}

	exams, err := s.collectExams(ctx, institutions)
	if err != nil {
		return nil, err
	}

	bySubject := make(map[id.SubjectID][]hmodels.ExamInstance)
	var subjects []id.SubjectID
	for _, e := range exams {
		if _, seen := bySubject[e.SubjectID]; !seen {
			subjects = append(subjects, e.SubjectID)
		}
		bySubject[e.SubjectID] = append(bySubject[e.SubjectID], e)
	}

	type ranked struct {
		result   models.AggregateResult
		position float64
	}
	results := make([]ranked, 0, len(subjects))
	for _, subjectID := range subjects {
		group := bySubject[subjectID]
		acc, err := s.fold(ctx, group, target)
		if err != nil {
			return nil, err
		}
		subjID := subjectID
		r := models.AggregateResult{
			Scope:              models.Scope{Country: country, InstitutionID: institutionID, SubjectID: &subjID},
			DisplaySystem:      target.ID,
			ExamsRead:          len(group),
			ExamsUsedInAverage: acc.used,
		}
		position := -1.0
		if acc.used > 0 {
			position = acc.sum / float64(acc.used)
			value, err := conversion.Denormalize(target, position)
			if err != nil {
				return nil, err
			}
			r.DisplayValue = value
		}
		results = append(results, ranked{result: r, position: position})
	}

	slices.SortFunc(results, func(a, b ranked) int {
		if a.position != b.position {
			if a.position > b.position {
				return -1
			}
			return 1
		}
		return strings.Compare(a.result.Scope.SubjectID.String(), b.result.Scope.SubjectID.String())
	})

	out := make([]models.AggregateResult, len(results))
	for i, r := range results {
		out[i] = r.result
	}
	return out, nil
}

// scopeInstitutions resolves the institution set for a scope. A named
// institution must actually be located in the scope's country.
func (s *Service) scopeInstitutions(ctx context.Context, country string, institutionID *id.InstitutionID) ([]hmodels.Institution, error) {
	if country == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "country is required")
	}
	if institutionID != nil {
		inst, err := s.hierarchy.GetInstitution(ctx, *institutionID)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(inst.CountryISO3, country) {
			return nil, dErrors.Newf(dErrors.CodeBadRequest,
				"institution %s is in %s, not %s", inst.ID, inst.CountryISO3, country)
		}
		return []hmodels.Institution{*inst}, nil
	}
	return s.hierarchy.ListInstitutionsByCountry(ctx, country)
}

func (s *Service) collectExams(ctx context.Context, institutions []hmodels.Institution) ([]hmodels.ExamInstance, error) {
	var out []hmodels.ExamInstance
	for _, inst := range institutions {
		instID := inst.ID
		for exam, err := range s.hierarchy.ExamSeq(ctx, hmodels.ExamFilter{InstitutionID: &instID}) {
			if err != nil {
				return nil, err
			}
			out = append(out, exam)
		}
	}
	if s.metrics != nil {
		s.metrics.ExamsRead.Add(float64(len(out)))
	}
	return out, nil
}

type accumulator struct {
	sum  float64
	used int
}

// fold resolves each exam's grade in the target system and accumulates the
// canonical positions of the survivors. Latest conversions are batch-loaded
// first; only the misses pay for an on-demand conversion.
func (s *Service) fold(ctx context.Context, exams []hmodels.ExamInstance, target catalog.System) (accumulator, error) {
	examIDs := make([]id.ExamID, len(exams))
	for i, e := range exams {
		examIDs[i] = e.ID
	}
	latest, err := s.converter.LatestConversions(ctx, examIDs, target.ID)
	if err != nil {
		return accumulator{}, err
	}

	var acc accumulator
	for _, exam := range exams {
		rec, ok := latest[exam.ID]
		if !ok {
			converted, err := s.converter.Convert(ctx, exam.ID, target.ID, s.rule)
			if err != nil {
				if isExclusion(err) {
					s.exclude(ctx, exam, err)
					continue
				}
				return accumulator{}, err
			}
			rec = *converted
		}
		p, err := conversion.Normalize(target, rec.ResultValue)
		if err != nil {
			s.exclude(ctx, exam, err)
			continue
		}
		acc.sum += p
		acc.used++
	}
	return acc, nil
}

// isExclusion reports whether a conversion failure should drop the exam from
// the average rather than abort the whole aggregation. Store and plumbing
// failures still abort.
func isExclusion(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeUnsupportedValue) ||
		dErrors.HasCode(err, dErrors.CodeUnsupportedSystem) ||
		dErrors.HasCode(err, dErrors.CodeNotFound)
}

func (s *Service) exclude(ctx context.Context, exam hmodels.ExamInstance, err error) {
	if s.metrics != nil {
		s.metrics.ExamsExcluded.Inc()
	}
	s.logger.DebugContext(ctx, "exam excluded from average",
		"exam_id", exam.ID.String(),
		"origin_system", exam.OriginSystem,
		"error", err)
}

func (s *Service) incQuery(kind string) {
	if s.metrics != nil {
		s.metrics.Queries.WithLabelValues(kind).Inc()
	}
}
