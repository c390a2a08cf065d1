package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/execution"
	"github.com/cagrikaymak/marketsync/internal/provider"
)

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) triggerBackfill(w http.ResponseWriter, r *http.Request) {
	rec, started, err := h.deps.Orchestrator.Trigger(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !started {
		// A run is already in flight; report it instead of starting another.
		writeJSON(w, http.StatusConflict, rec)
		return
	}

	slog.Info("backfill triggered via api",
		"executionID", rec.ID,
		"requestID", RequestID(r.Context()),
	)
	writeJSON(w, http.StatusAccepted, rec)
}

type backfillStatusResponse struct {
	Running   bool                   `json:"running"`
	Execution *execution.Record      `json:"execution,omitempty"`
	Units     []execution.UnitStatus `json:"units,omitempty"`
}

// backfillStatus reports the in-flight run, or the most recent one when
// nothing is running.
func (h *handler) backfillStatus(w http.ResponseWriter, r *http.Request) {
	rec, running := h.deps.Orchestrator.Running()
	if !running {
		history, err := h.deps.Tracker.History(r.Context(), 1)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if len(history) > 0 {
			rec = &history[0]
		}
	}

	resp := backfillStatusResponse{Running: running, Execution: rec}
	if rec != nil {
		units, err := h.deps.Tracker.Units(r.Context(), rec.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp.Units = units
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := h.deps.Tracker.History(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type executionDetailResponse struct {
	Execution *execution.Record      `json:"execution"`
	Units     []execution.UnitStatus `json:"units"`
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	rec, err := h.deps.Tracker.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	units, err := h.deps.Tracker.Units(r.Context(), rec.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executionDetailResponse{Execution: rec, Units: units})
}

func (h *handler) monitorHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.deps.Tracker.GetHealth(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := struct {
		*execution.Health
		ProviderStats *provider.Stats `json:"providerStats,omitempty"`
	}{Health: health}
	if h.deps.Client != nil {
		stats := h.deps.Client.Stats()
		resp.ProviderStats = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) staleness(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	report, err := h.deps.Freshness.Report(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) listAnomalies(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	anomalies, err := h.deps.Quality.Anomalies(r.Context(), symbol, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anomalies)
}

// cleanupDuplicates runs duplicate removal for one (symbol, timeframe).
// Without apply=true it reports what would be removed and changes nothing.
func (h *handler) cleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	tf := candle.Timeframe(r.URL.Query().Get("timeframe"))
	if !tf.Valid() {
		writeError(w, http.StatusBadRequest, "invalid timeframe")
		return
	}

	dryRun := r.URL.Query().Get("apply") != "true"

	result, err := h.deps.Quality.CleanupDuplicates(r.Context(), symbol, tf, dryRun)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
