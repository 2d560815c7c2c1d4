package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
	"github.com/atlas-wms/atlas-wms/internal/ledger"
)

// StockLister is the slice of the ledger repository the scan job needs.
type StockLister interface {
	ListAtOrBelow(ctx context.Context, level int64, limit int) ([]ledger.StockRecord, error)
}

// StockAlertScanJob walks stock records sitting at or below the safety
// threshold and raises one alert per record, throttled so repeated scans do
// not spam the log for the same shortage.
type StockAlertScanJob struct {
	Lister     StockLister
	Redis      *redis.Client
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	Thresholds ledger.Thresholds
	Throttle   time.Duration
	BatchSize  int
	clock      func() time.Time
}

// NewStockAlertScanJob initialises the scan handler.
func NewStockAlertScanJob(lister StockLister, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics, thresholds ledger.Thresholds, throttle time.Duration, batchSize int) *StockAlertScanJob {
	return &StockAlertScanJob{
		Lister:     lister,
		Redis:      rdb,
		Logger:     logger,
		Metrics:    metrics,
		Thresholds: thresholds,
		Throttle:   throttle,
		BatchSize:  batchSize,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan run.
func (j *StockAlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Lister == nil {
		return errors.New("stock alert scan: handler not configured")
	}
	var payload StockAlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = j.BatchSize
	}

	tracker := j.metrics().Track(TaskStockAlertScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int64("threshold", j.Thresholds.Min),
		slog.Int("batch_size", batch),
	)
	logger.Info("starting stock alert scan")

	records, err := j.Lister.ListAtOrBelow(ctx, j.Thresholds.Min, batch)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	raised := 0
	for _, rec := range records {
		severity := "low"
		if rec.Quantity <= j.Thresholds.CriticalMin {
			severity = "critical"
		}
		fresh, err := j.throttle(ctx, rec)
		if err != nil {
			resultErr = err
			logger.Error("throttle check failed", slog.Any("error", err))
			return resultErr
		}
		if !fresh {
			continue
		}
		raised++
		j.metrics().AddStockAlerts(severity, 1)
		logger.Warn("stock below threshold",
			slog.Int64("product_id", rec.Identity.ProductID),
			slog.String("stock_key", throttleSuffix(rec.Identity)),
			slog.Int64("quantity", rec.Quantity),
			slog.Int64("reserved", rec.ReservedQuantity),
			slog.String("severity", severity),
		)
	}

	logger.Info("stock alert scan complete",
		slog.Int("scanned", len(records)),
		slog.Int("alerts", raised),
	)
	return nil
}

// throttle reports whether an alert for this record may fire now. The first
// caller inside the window wins the SETNX and suppresses the rest.
func (j *StockAlertScanJob) throttle(ctx context.Context, rec ledger.StockRecord) (bool, error) {
	if j.Redis == nil || j.Throttle <= 0 {
		return true, nil
	}
	key := "stock:alert:" + throttleSuffix(rec.Identity)
	return j.Redis.SetNX(ctx, key, j.now().Format(time.RFC3339), j.Throttle).Result()
}

func throttleSuffix(id ledger.StockIdentity) string {
	variant := int64(0)
	if id.VariantID != nil {
		variant = *id.VariantID
	}
	batch := ""
	if id.BatchKey != nil {
		batch = *id.BatchKey
	}
	location := ""
	if id.Location != nil {
		location = *id.Location
	}
	return fmt.Sprintf("%d:%d:%s:%s", id.ProductID, variant, batch, location)
}

func (j *StockAlertScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *StockAlertScanJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *StockAlertScanJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
