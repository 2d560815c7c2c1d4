package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
)

// Enqueuer submits background tasks. Satisfied by Client.
type Enqueuer interface {
	EnqueueStockAlertScan(ctx context.Context, payload StockAlertScanPayload) (*asynq.TaskInfo, error)
}

// Handler exposes on-demand job submission over HTTP.
type Handler struct {
	logger   *slog.Logger
	enqueuer Enqueuer
}

// NewHandler constructs the jobs handler.
func NewHandler(logger *slog.Logger, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, enqueuer: enqueuer}
}

// MountRoutes registers job submission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/alerts/scan", h.handleStockAlertScan)
}

func (h *Handler) handleStockAlertScan(w http.ResponseWriter, r *http.Request) {
	var payload StockAlertScanPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if payload.BatchSize < 0 {
		httpx.BadRequest(w, "batch_size must not be negative")
		return
	}

	info, err := h.enqueuer.EnqueueStockAlertScan(r.Context(), payload)
	if err != nil {
		h.logger.Error("enqueue stock alert scan", slog.Any("error", err))
		httpx.Internal(w)
		return
	}

	httpx.JSON(w, http.StatusAccepted, map[string]string{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}
