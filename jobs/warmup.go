package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/vantage-erp/vantage/internal/jobs"
	"github.com/vantage-erp/vantage/internal/newbusiness"
)

// WarmupService is the slice of the new-business service the warmup touches.
type WarmupService interface {
	Summary(ctx context.Context, f newbusiness.Filter) (newbusiness.Summary, error)
	NewCustomers(ctx context.Context, f newbusiness.Filter) ([]newbusiness.CustomerCredit, error)
	NewProducts(ctx context.Context, f newbusiness.Filter) ([]newbusiness.ProductCredit, error)
	NewCombos(ctx context.Context, f newbusiness.Filter) ([]newbusiness.ComboCredit, error)
	Revenue(ctx context.Context, f newbusiness.Filter) ([]newbusiness.RevenueSummary, error)
}

// WarmupJob pre-populates the month-to-date and year-to-date dashboard
// caches so the first morning render hits warm data instead of triggering a
// full warehouse load.
type WarmupJob struct {
	Service WarmupService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(service WarmupService, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the job clock for testing.
func (j *WarmupJob) WithClock(fn func() time.Time) {
	if fn != nil {
		j.clock = fn
	}
}

// Handle processes newbusiness:warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	asOf := j.clock()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskNewBusinessWarmup)
	var resultErr error
	defer func() {
		_ = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("run_id", uuid.NewString()),
		slog.String("as_of", asOf.Format("2006-01-02")))
	logger.Info("starting new-business warmup")

	start := j.clock()
	windows := []newbusiness.Window{
		{Start: time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC), End: asOf},
		{Start: time.Date(asOf.Year(), 1, 1, 0, 0, 0, 0, time.UTC), End: asOf},
	}
	for _, win := range windows {
		if err := j.warmWindow(ctx, win, payload.LookbackYears); err != nil {
			resultErr = err
			logger.Error("warm window",
				slog.String("start", win.Start.Format("2006-01-02")),
				slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed new-business warmup",
		slog.Int("windows", len(windows)),
		slog.Duration("duration", j.clock().Sub(start)))
	return resultErr
}

func (j *WarmupJob) warmWindow(ctx context.Context, win newbusiness.Window, lookbackYears int) error {
	// Bound each window so a slow warehouse cannot wedge the worker.
	winCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	filter := newbusiness.Filter{Window: win, LookbackYears: lookbackYears}
	if _, err := j.Service.Summary(winCtx, filter); err != nil {
		return err
	}
	if _, err := j.Service.NewCustomers(winCtx, filter); err != nil {
		return err
	}
	if _, err := j.Service.NewProducts(winCtx, filter); err != nil {
		return err
	}
	if _, err := j.Service.NewCombos(winCtx, filter); err != nil {
		return err
	}
	if _, err := j.Service.Revenue(winCtx, filter); err != nil {
		return err
	}
	return nil
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNewBusinessWarmup))
	}
	return slog.Default().With(slog.String("job", TaskNewBusinessWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
