package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/config"
	"github.com/aristath/backtest/internal/domain"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/scenario"
	"github.com/aristath/backtest/internal/simulation"
	"github.com/aristath/backtest/internal/statistics"
	"github.com/aristath/backtest/pkg/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	stats := statistics.NewCalculator(log)
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		Port:            0,
		BatchWorkers:    2,
		MinObservations: 2,
		RiskFreeRate:    0.02,
		VaRConfidence:   0.95,
	}
	return New(Config{
		Log:    log,
		Stats:  stats,
		Runner: batch.NewRunner(cfg.BatchWorkers, stats, log),
		Config: cfg,
		Port:   cfg.Port,
	})
}

func marketdataSpec() marketdata.SyntheticSpec {
	return marketdata.SyntheticSpec{
		Assets: map[string]marketdata.GBMParams{
			"AAA": {InitialPrice: 100, AnnualDrift: 0.05, AnnualVolatility: 0.15},
		},
		Steps: 50,
	}
}

func inlinePath(n int) *domain.PricePath {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, n)
	series := make([]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = start.AddDate(0, 0, i)
		series[i] = 100 + float64(i%7)
	}
	return &domain.PricePath{
		Timestamps: timestamps,
		Prices:     map[string][]float64{"AAA": series},
	}
}

func postJSON(t *testing.T, srv *Server, url string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleSimulate_InlinePath(t *testing.T) {
	srv := newTestServer(t)

	payload := SimulateRequest{
		Config: simulation.Config{
			InitialInvestment: 1000,
			TargetWeights:     domain.Weights{"AAA": 1.0},
			Policy:            simulation.PolicySpec{Type: simulation.PolicyNone},
			MinObservations:   2,
		},
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
	}

	rec := postJSON(t, srv, "/api/simulate?tier=professional", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SimulateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, simulation.StatusCompleted, resp.Result.Status)
	assert.Len(t, resp.Result.Values, 40)
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Narrative)
	assert.Empty(t, resp.Error)
}

func TestHandleSimulate_ConfigurationRejected(t *testing.T) {
	srv := newTestServer(t)

	payload := SimulateRequest{
		Config: simulation.Config{
			InitialInvestment: -5,
			TargetWeights:     domain.Weights{"AAA": 1.0},
			MinObservations:   2,
		},
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
	}

	rec := postJSON(t, srv, "/api/simulate", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestHandleSimulate_UnsupportedPolicyRejected(t *testing.T) {
	srv := newTestServer(t)

	payload := SimulateRequest{
		Config: simulation.Config{
			InitialInvestment: 1000,
			TargetWeights:     domain.Weights{"AAA": 1.0},
			Policy:            simulation.PolicySpec{Type: "hourly"},
			MinObservations:   2,
		},
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
	}

	rec := postJSON(t, srv, "/api/simulate", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestHandleSimulate_InsufficientDataUnprocessable(t *testing.T) {
	srv := newTestServer(t)

	payload := SimulateRequest{
		Config: simulation.Config{
			InitialInvestment: 1000,
			TargetWeights:     domain.Weights{"AAA": 1.0},
			MinObservations:   100,
		},
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
	}

	rec := postJSON(t, srv, "/api/simulate", payload)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestHandleSimulate_MalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatch(t *testing.T) {
	srv := newTestServer(t)

	payload := scenario.File{
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
		Scenarios: []scenario.Spec{
			{Name: "hold", Config: simulation.Config{
				InitialInvestment: 1000,
				TargetWeights:     domain.Weights{"AAA": 1.0},
				Policy:            simulation.PolicySpec{Type: simulation.PolicyNone},
				MinObservations:   2,
			}},
			{Name: "rebalance", Config: simulation.Config{
				InitialInvestment: 1000,
				TargetWeights:     domain.Weights{"AAA": 1.0},
				Policy:            simulation.PolicySpec{Type: simulation.PolicyPeriodic, Interval: simulation.IntervalMonthly},
				MinObservations:   2,
			}},
		},
	}

	rec := postJSON(t, srv, "/api/batch", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "hold", resp.Results[0].Name)
	assert.Equal(t, "rebalance", resp.Results[1].Name)
	for _, res := range resp.Results {
		require.NotNil(t, res.Result)
		assert.Equal(t, simulation.StatusCompleted, res.Result.Status)
	}
}

func TestHandleBatch_EmptyScenarios(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/batch", map[string]interface{}{"scenarios": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSynthetic(t *testing.T) {
	srv := newTestServer(t)

	payload := SyntheticRequest{
		Spec: marketdataSpec(),
		Seed: 42,
	}

	rec := postJSON(t, srv, "/api/synthetic", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var path domain.PricePath
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &path))
	assert.Equal(t, 50, path.Len())
	require.NoError(t, path.Validate())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	// drive one run so the counters exist
	payload := SimulateRequest{
		Config: simulation.Config{
			InitialInvestment: 1000,
			TargetWeights:     domain.Weights{"AAA": 1.0},
			MinObservations:   2,
		},
		Prices: scenario.PriceSpec{Source: scenario.SourceInline, Inline: inlinePath(40)},
	}
	rec := postJSON(t, srv, "/api/simulate", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	srv.Router().ServeHTTP(mrec, req)

	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "backtest_runs_total")
}
