package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
)

// IdempotencyCleaner is the slice of the idempotency store the sweep needs.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob removes idempotency keys past their retention window.
// A request that crashed between key insert and transaction commit leaves its
// key behind, so without this sweep the reference would stay blocked forever.
type IdempotencyCleanupJob struct {
	Store     IdempotencyCleaner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
}

// NewIdempotencyCleanupJob initialises the sweep handler.
func NewIdempotencyCleanupJob(store IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics, retention time.Duration) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{
		Store:     store,
		Logger:    logger,
		Metrics:   metrics,
		Retention: retention,
	}
}

// Handle executes one sweep.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Store.Cleanup(ctx, retention); err != nil {
		resultErr = err
		j.logger().Error("idempotency cleanup failed", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("idempotency cleanup complete", slog.Duration("retention", retention))
	return nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
