package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/catalog"
	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// respondError maps the ledger error taxonomy to problem responses.
// Validation and lifecycle failures carry their reason; conflicts become a
// generic retry hint; integrity faults stay opaque.
func respondError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	var lErr *catalog.LifecycleError
	switch {
	case errors.As(err, &vErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", vErr.Error())
	case errors.As(err, &lErr):
		status := http.StatusConflict
		if lErr.Reason == catalog.ReasonProductNotFound || lErr.Reason == catalog.ReasonVariantNotFound {
			status = http.StatusNotFound
		}
		httpx.Problem(w, status, "Lifecycle Check Failed", lErr.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusServiceUnavailable, "Conflict", "concurrent update, please try again")
	default:
		httpx.Internal(w)
	}
}

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes. Mutations share a per-IP rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Rate Limited", "too many stock mutations")
		}),
	)

	r.Get("/stock/movements", h.handleListMovements)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/stock/inbound", h.handleInbound)
		gr.Post("/stock/outbound", h.handleOutbound)
		gr.Post("/stock/adjustments", h.handleAdjustment)
		gr.Post("/stock/reservations", h.handleReserve)
		gr.Post("/stock/reservations/release", h.handleRelease)
	})
}

type movementRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	VariantID *int64  `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	BatchKey  *string `json:"batch_key,omitempty" validate:"omitempty,max=64"`
	Location  *string `json:"location,omitempty" validate:"omitempty,max=64"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	Reason    string  `json:"reason" validate:"required,max=255"`
	RefID     string  `json:"ref_id,omitempty" validate:"omitempty,uuid"`
}

type adjustmentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	VariantID *int64  `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	BatchKey  *string `json:"batch_key,omitempty" validate:"omitempty,max=64"`
	Location  *string `json:"location,omitempty" validate:"omitempty,max=64"`
	Delta     int64   `json:"delta" validate:"required"`
	Reason    string  `json:"reason" validate:"required,max=255"`
	RefID     string  `json:"ref_id,omitempty" validate:"omitempty,uuid"`
}

type warningResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type movementResponse struct {
	DocumentNumber    string            `json:"document_number,omitempty"`
	NewQuantity       int64             `json:"new_quantity"`
	ReservedQuantity  int64             `json:"reserved_quantity"`
	AvailableQuantity int64             `json:"available_quantity"`
	Warnings          []warningResponse `json:"warnings,omitempty"`
}

func toMovementResponse(result MovementResult) movementResponse {
	resp := movementResponse{
		DocumentNumber:    result.DocumentNumber,
		NewQuantity:       result.NewQuantity,
		ReservedQuantity:  result.ReservedQuantity,
		AvailableQuantity: result.AvailableQuantity,
	}
	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warningResponse{Code: string(w.Code), Message: w.Message})
	}
	return resp
}

// actorID reads the actor resolved by the upstream auth layer.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.BadRequest(w, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.BadRequest(w, err.Error())
		return false
	}
	return true
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.PostInbound(r.Context(), InboundInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		BatchKey:  req.BatchKey,
		Location:  req.Location,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		ActorID:   actorID(r),
		RefID:     req.RefID,
	})
	if err != nil {
		h.logger.Error("post inbound failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(result))
}

func (h *Handler) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.PostOutbound(r.Context(), OutboundInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		BatchKey:  req.BatchKey,
		Location:  req.Location,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		ActorID:   actorID(r),
		RefID:     req.RefID,
	})
	if err != nil {
		h.logger.Error("post outbound failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(result))
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		BatchKey:  req.BatchKey,
		Location:  req.Location,
		Delta:     req.Delta,
		Reason:    req.Reason,
		ActorID:   actorID(r),
		RefID:     req.RefID,
	})
	if err != nil {
		h.logger.Error("post adjustment failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	h.logger.Info("adjustment posted",
		slog.String("document_number", result.DocumentNumber),
		slog.Int64("product_id", req.ProductID),
		slog.Int64("delta", req.Delta))
	httpx.JSON(w, http.StatusCreated, toMovementResponse(result))
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, post func(context.Context, ReservationInput) (MovementResult, error)) {
	var req movementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := post(r.Context(), ReservationInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		BatchKey:  req.BatchKey,
		Location:  req.Location,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		ActorID:   actorID(r),
	})
	if err != nil {
		h.logger.Error("reservation change failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(result))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.BadRequest(w, "product_id is required")
		return
	}
	filter := MovementFilter{ProductID: productID}
	if v := q.Get("variant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, "invalid variant_id")
			return
		}
		filter.VariantID = &id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.BadRequest(w, "invalid from date")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.BadRequest(w, "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	movements, err := h.service.GetMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	views := make([]movementView, 0, len(movements))
	for _, m := range movements {
		views = append(views, toMovementView(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": views, "count": len(views)})
}

type movementView struct {
	ID             int64   `json:"id"`
	DocumentNumber string  `json:"document_number"`
	Type           string  `json:"type"`
	ProductID      int64   `json:"product_id"`
	VariantID      *int64  `json:"variant_id,omitempty"`
	BatchKey       *string `json:"batch_key,omitempty"`
	Location       *string `json:"location,omitempty"`
	Delta          int64   `json:"delta"`
	QuantityAfter  int64   `json:"quantity_after"`
	Reason         string  `json:"reason"`
	ActorID        int64   `json:"actor_id,omitempty"`
	RefID          string  `json:"ref_id,omitempty"`
	PostedAt       string  `json:"posted_at"`
}

func toMovementView(m Movement) movementView {
	return movementView{
		ID:             m.ID,
		DocumentNumber: m.DocumentNumber,
		Type:           string(m.Type),
		ProductID:      m.Identity.ProductID,
		VariantID:      m.Identity.VariantID,
		BatchKey:       m.Identity.BatchKey,
		Location:       m.Identity.Location,
		Delta:          m.Delta,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
		ActorID:        m.ActorID,
		RefID:          m.RefID,
		PostedAt:       m.PostedAt.UTC().Format(time.RFC3339),
	}
}
