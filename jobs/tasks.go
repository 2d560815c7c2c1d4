package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAlertScan is the task type for the periodic low-stock scan.
	TaskStockAlertScan = "stock:alert_scan"
	// TaskIdempotencyCleanup is the task type for reclaiming stale
	// idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// StockAlertScanPayload tunes a single scan run. Zero values fall back to the
// worker's configured defaults.
type StockAlertScanPayload struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// NewStockAlertScanTask constructs an Asynq task for the low-stock scan.
func NewStockAlertScanTask(payload StockAlertScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlertScan, data), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task for the stale-key sweep.
// Retention lives in worker configuration, so the task carries no payload.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
