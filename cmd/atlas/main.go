package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-wms/atlas-wms/internal/app"
	"github.com/atlas-wms/atlas-wms/internal/catalog"
	"github.com/atlas-wms/atlas-wms/internal/ledger"
	"github.com/atlas-wms/atlas-wms/internal/observability"
	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, catalogService, auditLogger, idempotencyStore, logger, ledger.ServiceConfig{
		Thresholds: ledger.Thresholds{
			Min:                 cfg.StockMinThreshold,
			CriticalMin:         cfg.StockCriticalThreshold,
			Max:                 cfg.StockMaxThreshold,
			OverstockMultiplier: cfg.StockOverstockMultiple,
		},
		MaxRetries: cfg.StockTxMaxRetries,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobsClient.Close()
	jobsHandler := jobs.NewHandler(logger, jobsClient)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		LedgerHandler:  ledgerHandler,
		CatalogHandler: catalogHandler,
		JobsHandler:    jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
