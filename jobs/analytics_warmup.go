package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
)

// Warmer precomputes cached analytics.
type Warmer interface {
	Warmup(ctx context.Context) (int, error)
}

// AnalyticsWarmupJob pre-populates the analytics cache after a version bump or deploy.
type AnalyticsWarmupJob struct {
	Analytics Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskAnalyticsWarmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAnalyticsWarmup)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Tighten the run with a timeout to avoid long-running jobs.
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	warmed, err := j.Analytics.Warmup(runCtx)
	if err != nil {
		logger.Error("analytics warmup", slog.Any("error", err))
		return err
	}
	logger.Info("completed analytics warmup", slog.Int("entries", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}
