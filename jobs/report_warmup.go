package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/contentieux/contentieux/internal/distribution"
	jobmetrics "github.com/contentieux/contentieux/internal/jobs"
	"github.com/contentieux/contentieux/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	defaultWarmupPeriods     = 12
	defaultWarmupConcurrency = 4
	periodTimeout            = 20 * time.Second
)

// ReportBuilder builds, and thereby caches, a distribution report.
type ReportBuilder interface {
	GetReport(ctx context.Context, req distribution.ReportRequest) (distribution.PeriodReport, error)
}

// ReportWarmupJob pre-populates the report cache for recent periods.
type ReportWarmupJob struct {
	Reports     ReportBuilder
	Periods     distribution.PeriodLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports ReportBuilder, periods distribution.PeriodLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{Reports: reports, Periods: periods, Logger: logger, Metrics: metrics}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("run_id", uuid.NewString()), slog.String("rule", payload.Rule))
	start := time.Now()

	periods, err := j.periods(ctx, payload)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidPeriod) {
			logger.Warn("discarding warmup task", slog.Any("error", err))
			return asynq.SkipRetry
		}
		logger.Error("load warmup periods", slog.Any("error", err))
		return err
	}
	if len(periods) == 0 {
		logger.Info("no periods to warm")
		return nil
	}
	logger.Info("starting report warmup", slog.Int("periods", len(periods)))

	var warmed, invalid atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, period := range periods {
		g.Go(func() error {
			periodCtx, cancel := context.WithTimeout(gctx, periodTimeout)
			defer cancel()
			_, err := j.Reports.GetReport(periodCtx, distribution.ReportRequest{Period: period, RuleCode: payload.Rule})
			var recErr *distribution.RecordError
			switch {
			case err == nil:
				warmed.Add(1)
				return nil
			case errors.As(err, &recErr), errors.Is(err, distribution.ErrInvalidRule), errors.Is(err, shared.ErrInvalidPeriod):
				// Bad data is not retried; the report stays uncached until fixed.
				invalid.Add(1)
				logger.Warn("period not warmed", slog.String("period", period), slog.Any("error", err))
				return nil
			case errors.Is(err, distribution.ErrRuleNotFound):
				return errors.Join(err, asynq.SkipRetry)
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("report warmup failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddWarmed(payload.Rule, int(warmed.Load()))
	logger.Info("completed report warmup",
		slog.Int64("warmed", warmed.Load()),
		slog.Int64("invalid", invalid.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReportWarmupJob) periods(ctx context.Context, payload ReportWarmupPayload) ([]string, error) {
	if payload.Period != "" {
		period, err := shared.NormalizePeriodLabel(payload.Period)
		if err != nil {
			return nil, err
		}
		return []string{period}, nil
	}
	if j.Periods == nil {
		return nil, errors.New("report warmup: period lister not configured")
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultWarmupPeriods
	}
	return j.Periods.ListPeriods(ctx, limit)
}

func (j *ReportWarmupJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return defaultWarmupConcurrency
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
