// Package server provides the HTTP server and routing for the simulation API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/config"
	"github.com/aristath/backtest/internal/domain"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/report"
	"github.com/aristath/backtest/internal/scenario"
	"github.com/aristath/backtest/internal/simulation"
)

// SimulationHandlers handles simulation and batch endpoints
type SimulationHandlers struct {
	log      zerolog.Logger
	provider marketdata.Provider
	stats    simulation.StatisticsProvider
	runner   *batch.Runner
	cfg      *config.Config
	metrics  *Metrics
}

// NewSimulationHandlers creates a new simulation handlers instance
func NewSimulationHandlers(
	log zerolog.Logger,
	provider marketdata.Provider,
	stats simulation.StatisticsProvider,
	runner *batch.Runner,
	cfg *config.Config,
	metrics *Metrics,
) *SimulationHandlers {
	return &SimulationHandlers{
		log:      log.With().Str("component", "simulation_handlers").Logger(),
		provider: provider,
		stats:    stats,
		runner:   runner,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// SimulateRequest is the payload for a single simulation run.
type SimulateRequest struct {
	Config simulation.Config  `json:"config"`
	Prices scenario.PriceSpec `json:"prices"`
}

// SimulateResponse wraps a single simulation result.
type SimulateResponse struct {
	ID        string             `json:"id"`
	Result    *simulation.Result `json:"result"`
	Narrative string             `json:"narrative,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// HandleSimulate runs a single simulation over the requested price source.
// POST /api/simulate
func (h *SimulationHandlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	file := &scenario.File{
		Prices:    req.Prices,
		Scenarios: []scenario.Spec{{Name: "request", Config: req.Config}},
	}
	scenarios, err := file.Resolve(h.provider, h.cfg.MinObservations)
	if err != nil {
		h.metrics.ObserveRun("error", time.Since(start))
		h.writeDomainError(w, err)
		return
	}

	engine := simulation.NewEngine(h.stats, h.log)
	// aborted and stats-degraded runs still carry a usable result; only
	// fail-fast rejections come back with nothing to return
	result, err := engine.Run(scenarios[0].Config, scenarios[0].Path)
	if err != nil && result == nil {
		h.metrics.ObserveRun("error", time.Since(start))
		h.writeDomainError(w, err)
		return
	}

	resp := SimulateResponse{ID: uuid.New().String(), Result: result}
	if err != nil {
		resp.Error = err.Error()
		h.metrics.ObserveRun("failed", time.Since(start))
	} else {
		h.metrics.ObserveRun("completed", time.Since(start))
	}
	if tier := r.URL.Query().Get("tier"); tier != "" {
		resp.Narrative = report.Render(result, report.ParseTier(tier))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// BatchResponse wraps an ordered set of batch run results.
type BatchResponse struct {
	Count   int               `json:"count"`
	Results []batch.RunResult `json:"results"`
}

// HandleBatch runs every scenario in the request concurrently.
// POST /api/batch
func (h *SimulationHandlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := scenario.ParseJSON(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scenarios, err := body.Resolve(h.provider, h.cfg.MinObservations)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	results := h.runner.Run(r.Context(), scenarios)
	for _, res := range results {
		status := "completed"
		if res.Err != nil {
			status = "failed"
		}
		h.metrics.ObserveRun(status, time.Since(start))
	}

	h.writeJSON(w, http.StatusOK, BatchResponse{Count: len(results), Results: results})
}

// SyntheticRequest asks for a generated price path without running a simulation.
type SyntheticRequest struct {
	Spec marketdata.SyntheticSpec `json:"spec"`
	Seed int64                    `json:"seed"`
}

// HandleSynthetic generates a synthetic price path for inspection.
// POST /api/synthetic
func (h *SimulationHandlers) HandleSynthetic(w http.ResponseWriter, r *http.Request) {
	var req SyntheticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	path, err := marketdata.GeneratePath(req.Spec, req.Seed)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, path)
}

// writeDomainError maps taxonomy errors to HTTP status codes.
func (h *SimulationHandlers) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrUnsupportedPolicy):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	}
	h.writeError(w, status, err.Error())
}

func (h *SimulationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func (h *SimulationHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
