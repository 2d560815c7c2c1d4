package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-wms/atlas-wms/internal/catalog"
	"github.com/atlas-wms/atlas-wms/internal/ledger"
	"github.com/atlas-wms/atlas-wms/internal/observability"
	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	LedgerHandler  *ledger.Handler
	CatalogHandler *catalog.Handler
	JobsHandler    *jobs.Handler
}

// NewRouter constructs the chi.Router with Atlas defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		params.LedgerHandler.MountRoutes(api)
		params.CatalogHandler.MountRoutes(api)
		if params.JobsHandler != nil {
			params.JobsHandler.MountRoutes(api)
		}
	})

	return r
}
