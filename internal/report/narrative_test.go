package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtest/internal/simulation"
	"github.com/aristath/backtest/internal/statistics"
)

func sampleResult() *simulation.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trough := start.AddDate(0, 0, 10)
	recovery := start.AddDate(0, 0, 25)
	recoveryIdx := 25
	toRecovery := recovery.Sub(trough)

	return &simulation.Result{
		Status:        simulation.StatusCompleted,
		Timestamps:    []time.Time{start, recovery},
		Values:        []float64{10000, 11500},
		Contributions: []float64{0, 500},
		RebalanceEvents: []simulation.RebalanceEvent{
			{Timestamp: trough, StepIndex: 10, Reason: simulation.TriggerThreshold, Cost: 12.5},
		},
		Drawdowns: []simulation.DrawdownPeriod{
			{
				PeakTimestamp:      start,
				TroughTimestamp:    trough,
				RecoveryTimestamp:  &recovery,
				TroughIndex:        10,
				RecoveryIndex:      &recoveryIdx,
				Depth:              -0.12,
				DurationToTrough:   240 * time.Hour,
				DurationToRecovery: &toRecovery,
			},
		},
		Metrics: map[string]float64{
			simulation.MetricInitialInvestment:  10000,
			simulation.MetricTotalContributions: 500,
			simulation.MetricEndingValue:        11500,
			simulation.MetricTimeWeightedReturn: 0.10,
			simulation.MetricRebalanceCount:     1,
			simulation.MetricTotalCost:          12.5,
			statistics.MetricAnnualizedReturn:   0.10,
			statistics.MetricVolatility:         0.15,
			statistics.MetricSharpeRatio:        0.53,
			statistics.MetricSortinoRatio:       0.71,
			statistics.MetricMaxDrawdown:        0.12,
			statistics.MetricValueAtRisk:        0.02,
			statistics.MetricConditionalVaR:     0.03,
			statistics.MetricSkewness:           -0.4,
			statistics.MetricKurtosis:           1.2,
		},
	}
}

func TestRender_Retail(t *testing.T) {
	text := Render(sampleResult(), TierRetail)

	assert.Contains(t, text, "10000.00")
	assert.Contains(t, text, "11500.00")
	assert.Contains(t, text, "grew 10.0%")
	assert.Contains(t, text, "drop 12.0%")
	assert.Contains(t, text, "recovered")
	// no jargon at this tier
	assert.NotContains(t, text, "Sharpe")
	assert.NotContains(t, text, "VaR")
}

func TestRender_Professional(t *testing.T) {
	text := Render(sampleResult(), TierProfessional)

	assert.Contains(t, text, "Sharpe 0.53")
	assert.Contains(t, text, "max drawdown 12.00%")
	assert.Contains(t, text, "1 rebalances")
	assert.Contains(t, text, "12.50")
	assert.NotContains(t, text, "kurtosis")
}

func TestRender_Quantitative(t *testing.T) {
	text := Render(sampleResult(), TierQuantitative)

	assert.Contains(t, text, "VaR 2.00%")
	assert.Contains(t, text, "CVaR 3.00%")
	assert.Contains(t, text, "kurtosis")
	assert.Contains(t, text, "Full metric set:")
	assert.Contains(t, text, "Drawdown episodes:")
	assert.Contains(t, text, "Rebalance events:")
	// every metric key appears in the dump
	for name := range sampleResult().Metrics {
		assert.Contains(t, text, name)
	}
}

func TestRender_UnrecoveredDrawdown(t *testing.T) {
	result := sampleResult()
	result.Drawdowns[0].RecoveryTimestamp = nil
	result.Drawdowns[0].RecoveryIndex = nil
	result.Drawdowns[0].DurationToRecovery = nil

	retail := Render(result, TierRetail)
	assert.Contains(t, retail, "not yet recovered")

	quant := Render(result, TierQuantitative)
	assert.Contains(t, quant, "unrecovered")
}

func TestRender_FailedRun(t *testing.T) {
	result := &simulation.Result{
		Status:        simulation.StatusFailed,
		FailureReason: "portfolio value 0.00 at step 12",
		Values:        []float64{1000, 900},
	}

	text := Render(result, TierProfessional)
	require.True(t, strings.HasPrefix(text, "Simulation aborted"))
	assert.Contains(t, text, "portfolio value 0.00 at step 12")
	assert.Contains(t, text, "2 steps")
}

func TestRender_NilResult(t *testing.T) {
	assert.Equal(t, "No simulation result available.", Render(nil, TierRetail))
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierRetail, ParseTier("retail"))
	assert.Equal(t, TierRetail, ParseTier("RETAIL"))
	assert.Equal(t, TierQuantitative, ParseTier("quantitative"))
	assert.Equal(t, TierProfessional, ParseTier(""))
	assert.Equal(t, TierProfessional, ParseTier("anything-else"))
}
