package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/dispatch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	"github.com/odyssey-erp/stockledger/internal/stockops"
	"github.com/odyssey-erp/stockledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	BarcodeHandler     *barcode.Handler
	MovementHandler    *movement.Handler
	InventoryHandler   *masterinventory.Handler
	RebalancingHandler *rebalancing.Handler
	DispatchHandler    *dispatch.Handler
	StockHandler       *stockops.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.BarcodeHandler != nil {
			params.BarcodeHandler.MountRoutes(r)
		}
		if params.MovementHandler != nil {
			params.MovementHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.RebalancingHandler != nil {
			params.RebalancingHandler.MountRoutes(r)
		}
		if params.DispatchHandler != nil {
			params.DispatchHandler.MountRoutes(r)
		}
		if params.StockHandler != nil {
			params.StockHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
