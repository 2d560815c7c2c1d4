package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
)

// respondError maps catalog errors to problem responses.
func respondError(w http.ResponseWriter, err error) {
	var lErr *LifecycleError
	switch {
	case errors.As(err, &lErr):
		status := http.StatusConflict
		if lErr.Reason == ReasonProductNotFound || lErr.Reason == ReasonVariantNotFound {
			status = http.StatusNotFound
		}
		httpx.Problem(w, status, "Lifecycle Check Failed", lErr.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDeleteBlocked):
		httpx.Problem(w, http.StatusConflict, "Delete Blocked", err.Error())
	default:
		httpx.Internal(w)
	}
}

// Handler wires HTTP endpoints for lifecycle and deletion checks.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog/operable", h.handleCheckOperable)
	r.Get("/catalog/products/{id}/deletable", h.handleCanDelete(KindProduct))
	r.Get("/catalog/variants/{id}/deletable", h.handleCanDelete(KindVariant))
	r.Delete("/catalog/products/{id}", h.handleDelete(KindProduct))
	r.Delete("/catalog/variants/{id}", h.handleDelete(KindVariant))
}

func (h *Handler) handleCheckOperable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.BadRequest(w, "product_id is required")
		return
	}
	var variantID *int64
	if v := q.Get("variant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, "invalid variant_id")
			return
		}
		variantID = &id
	}
	if err := h.service.CheckOperable(r.Context(), productID, variantID); err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"operable": true})
}

func (h *Handler) handleCanDelete(kind EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.BadRequest(w, "invalid id")
			return
		}
		eligibility, err := h.service.CanDelete(r.Context(), id, kind)
		if err != nil {
			h.logger.Error("deletion check failed",
				slog.String("kind", string(kind)), slog.Int64("id", id), slog.Any("error", err))
			respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"allowed":         eligibility.Allowed,
			"blocking_counts": eligibility.BlockingCounts,
		})
	}
}

func (h *Handler) handleDelete(kind EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.BadRequest(w, "invalid id")
			return
		}
		actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
		if err := h.service.Delete(r.Context(), id, kind, actorID); err != nil {
			h.logger.Error("guarded delete failed",
				slog.String("kind", string(kind)), slog.Int64("id", id), slog.Any("error", err))
			respondError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}
