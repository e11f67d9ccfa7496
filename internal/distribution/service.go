package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contentieux/contentieux/internal/shared"
)

// RecordSource supplies the case snapshot of a period.
type RecordSource interface {
	ListCaseRecords(ctx context.Context, period string) ([]CaseRecord, error)
}

// PeriodLister enumerates periods worth reporting on.
type PeriodLister interface {
	ListPeriods(ctx context.Context, limit int) ([]string, error)
}

// Recorder receives report outcomes for instrumentation.
type Recorder interface {
	ReportBuilt(outcome string, cached bool)
	RecordsRejected(count int)
}

// ReportRequest selects the period, rule and invalid-record policy of a report.
type ReportRequest struct {
	Period   string
	RuleCode string
	Policy   InvalidRecordPolicy
}

// Validate normalises the request in place and checks the period label.
func (r *ReportRequest) Validate() error {
	period, err := shared.NormalizePeriodLabel(r.Period)
	if err != nil {
		return err
	}
	r.Period = period
	policy, err := ParsePolicy(string(r.Policy))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	r.Policy = policy
	return nil
}

// Service resolves rules, loads snapshots and caches the engine's reports.
type Service struct {
	source   RecordSource
	rules    *RuleBook
	cache    *Cache
	currency Currency
	recorder Recorder
	logger   *slog.Logger
}

// ServiceConfig wires the service dependencies. Cache, Recorder and Logger are optional.
type ServiceConfig struct {
	Source   RecordSource
	Rules    *RuleBook
	Cache    *Cache
	Currency Currency
	Recorder Recorder
	Logger   *slog.Logger
}

// NewService builds the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("distribution: record source required")
	}
	if cfg.Rules == nil {
		return nil, errors.New("distribution: rule book required")
	}
	if cfg.Currency == (Currency{}) {
		cfg.Currency = DefaultCurrency
	}
	if err := cfg.Currency.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   cfg.Source,
		rules:    cfg.Rules,
		cache:    cfg.Cache,
		currency: cfg.Currency,
		recorder: cfg.Recorder,
		logger:   logger.With(slog.String("component", "distribution")),
	}, nil
}

// Rules exposes the configured rule book.
func (s *Service) Rules() *RuleBook {
	return s.rules
}

// GetReport returns the period report, served from the cache when available.
func (s *Service) GetReport(ctx context.Context, req ReportRequest) (PeriodReport, error) {
	if err := req.Validate(); err != nil {
		return PeriodReport{}, err
	}
	code, rule, err := s.rules.Resolve(req.RuleCode)
	if err != nil {
		return PeriodReport{}, err
	}
	key, err := s.cache.BuildKey(ctx, "report", s.currency.Code, req.Period, code, string(req.Policy))
	if err != nil {
		s.logger.Warn("build cache key", slog.Any("error", err))
		return s.build(ctx, req, rule)
	}
	report, cached, err := s.cache.FetchReport(ctx, key, func(ctx context.Context) (PeriodReport, error) {
		return s.build(ctx, req, rule)
	})
	if err != nil {
		var recErr *RecordError
		if errors.As(err, &recErr) || errors.Is(err, ErrInvalidRule) {
			s.observe("invalid", false)
			return PeriodReport{}, err
		}
		s.observe("error", false)
		return PeriodReport{}, err
	}
	s.observe("ok", cached)
	return report, nil
}

func (s *Service) build(ctx context.Context, req ReportRequest, rule Rule) (PeriodReport, error) {
	records, err := s.source.ListCaseRecords(ctx, req.Period)
	if err != nil {
		return PeriodReport{}, err
	}
	engine := Engine{Currency: s.currency, Policy: req.Policy}
	report, err := engine.BuildReport(req.Period, records, rule)
	if err != nil {
		s.logger.Warn("report rejected", slog.String("period", req.Period), slog.Any("error", err))
		return PeriodReport{}, err
	}
	if report.HasRejections() {
		if s.recorder != nil {
			s.recorder.RecordsRejected(len(report.Rejected))
		}
		s.logger.Warn("records excluded from report",
			slog.String("period", req.Period),
			slog.Int("rejected", len(report.Rejected)),
		)
	}
	s.logger.Debug("report built",
		slog.String("period", req.Period),
		slog.Int("cases", report.CaseCount),
		slog.String("total_collected", report.TotalCollected.String()),
	)
	return report, nil
}

// Invalidate drops every cached report, e.g. after new collections were recorded.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) observe(outcome string, cached bool) {
	if s.recorder != nil {
		s.recorder.ReportBuilt(outcome, cached)
	}
}
