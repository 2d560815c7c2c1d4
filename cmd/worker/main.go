package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/atlas-wms/atlas-wms/internal/app"
	"github.com/atlas-wms/atlas-wms/internal/ledger"
	"github.com/atlas-wms/atlas-wms/internal/platform/cache"
	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	thresholds := ledger.Thresholds{
		Min:                 cfg.StockMinThreshold,
		CriticalMin:         cfg.StockCriticalThreshold,
		Max:                 cfg.StockMaxThreshold,
		OverstockMultiplier: cfg.StockOverstockMultiple,
	}
	scanJob := jobs.NewStockAlertScanJob(
		ledger.NewRepository(pool),
		redisClient,
		logger,
		nil,
		thresholds,
		cfg.StockAlertThrottle,
		cfg.StockAlertScanBatchSize,
	)

	cleanupJob := jobs.NewIdempotencyCleanupJob(
		shared.NewIdempotencyStore(pool),
		logger,
		nil,
		cfg.IdempotencyRetention,
	)

	scanTask, err := jobs.NewStockAlertScanTask(jobs.StockAlertScanPayload{})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAlertScan, Handler: scanJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
