package server

import (
	"net/http"

	"github.com/cagrikaymak/marketsync/internal/backfill"
	"github.com/cagrikaymak/marketsync/internal/execution"
	"github.com/cagrikaymak/marketsync/internal/freshness"
	"github.com/cagrikaymak/marketsync/internal/provider"
	"github.com/cagrikaymak/marketsync/internal/quality"
)

// Deps carries the services the HTTP surface exposes.
type Deps struct {
	Orchestrator *backfill.Orchestrator
	Tracker      *execution.Tracker
	Quality      *quality.Engine
	Freshness    *freshness.Cache
	Client       *provider.Client
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(deps Deps) http.Handler {
	return newMux(deps)
}

func newMux(deps Deps) http.Handler {
	h := &handler{deps: deps}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/backfill", h.triggerBackfill)
	mux.HandleFunc("GET /api/v1/backfill/status", h.backfillStatus)
	mux.HandleFunc("GET /api/v1/executions", h.listExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", h.getExecution)
	mux.HandleFunc("GET /api/v1/monitor/health", h.monitorHealth)
	mux.HandleFunc("GET /api/v1/monitor/staleness", h.staleness)
	mux.HandleFunc("GET /api/v1/anomalies", h.listAnomalies)
	mux.HandleFunc("POST /api/v1/quality/cleanup", h.cleanupDuplicates)

	// Middleware stack, outermost first: requestID -> logging -> recovery.
	// The correlation id is attached first so panic and access logs carry it.
	var handler http.Handler = mux
	handler = recovery(handler)
	handler = logging(handler)
	handler = requestID(handler)

	return handler
}
