// Package statistics implements the statistics collaborator consumed by the
// simulation engine's performance aggregator. All aggregate ratio math lives
// here, built on gonum; the engine itself never computes these formulas.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Metric name keys returned by Summarize.
const (
	MetricAnnualizedReturn = "annualized_return"
	MetricVolatility       = "volatility"
	MetricSharpeRatio      = "sharpe_ratio"
	MetricSortinoRatio     = "sortino_ratio"
	MetricMaxDrawdown      = "max_drawdown"
	MetricValueAtRisk      = "value_at_risk"
	MetricConditionalVaR   = "conditional_var"
	MetricSkewness         = "skewness"
	MetricKurtosis         = "kurtosis"
)

// Calculator computes summary risk/return metrics from a per-step return
// series using gonum/stat.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new metrics calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "statistics").Logger(),
	}
}

// Summarize computes the full metric set for a return series.
//
// riskFreeRate is annual; confidence is the VaR/CVaR confidence level
// (e.g. 0.95); periodsPerYear annualizes per-step quantities.
// VaR and CVaR are reported as positive loss fractions at the given
// confidence; skewness and kurtosis (excess) describe the per-step
// return distribution.
func (c *Calculator) Summarize(returns []float64, riskFreeRate, confidence float64, periodsPerYear int) (map[string]float64, error) {
	if len(returns) < 2 {
		return nil, fmt.Errorf("need at least 2 return observations, got %d", len(returns))
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("confidence must be in (0, 1), got %.4f", confidence)
	}
	if periodsPerYear <= 0 {
		return nil, fmt.Errorf("periodsPerYear must be positive, got %d", periodsPerYear)
	}
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("return series contains non-finite value at index %d", i)
		}
	}

	periods := float64(periodsPerYear)

	// Geometric annualized return from the compounded series.
	growth := 1.0
	for _, r := range returns {
		growth *= 1.0 + r
	}
	var annualizedReturn float64
	if growth > 0 {
		annualizedReturn = math.Pow(growth, periods/float64(len(returns))) - 1.0
	} else {
		// Full capital loss; annualized return is -100%
		annualizedReturn = -1.0
	}

	stdDev := stat.StdDev(returns, nil)
	volatility := stdDev * math.Sqrt(periods)

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (annualizedReturn - riskFreeRate) / volatility
	}

	sortino := c.sortinoRatio(returns, annualizedReturn, riskFreeRate, periods)
	maxDrawdown := c.maxDrawdown(returns)
	valueAtRisk, conditionalVaR := c.tailRisk(returns, confidence)

	metrics := map[string]float64{
		MetricAnnualizedReturn: annualizedReturn,
		MetricVolatility:       volatility,
		MetricSharpeRatio:      sharpe,
		MetricSortinoRatio:     sortino,
		MetricMaxDrawdown:      maxDrawdown,
		MetricValueAtRisk:      valueAtRisk,
		MetricConditionalVaR:   conditionalVaR,
		MetricSkewness:         stat.Skew(returns, nil),
		MetricKurtosis:         stat.ExKurtosis(returns, nil),
	}

	c.log.Debug().
		Int("observations", len(returns)).
		Float64("annualized_return", annualizedReturn).
		Float64("volatility", volatility).
		Msg("Computed summary metrics")

	return metrics, nil
}

// sortinoRatio computes the Sortino ratio using downside deviation relative
// to the per-period risk-free rate.
func (c *Calculator) sortinoRatio(returns []float64, annualizedReturn, riskFreeRate, periods float64) float64 {
	perPeriodRF := riskFreeRate / periods

	sumSq := 0.0
	for _, r := range returns {
		if d := r - perPeriodRF; d < 0 {
			sumSq += d * d
		}
	}
	downsideDev := math.Sqrt(sumSq/float64(len(returns))) * math.Sqrt(periods)
	if downsideDev == 0 {
		return 0.0
	}
	return (annualizedReturn - riskFreeRate) / downsideDev
}

// maxDrawdown computes the maximum peak-to-trough decline of the equity
// curve implied by compounding the return series. Reported as a positive
// fraction.
func (c *Calculator) maxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1.0 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// tailRisk computes historical VaR and CVaR at the given confidence level.
// Both are reported as positive loss fractions; a return distribution with
// no losses at the cutoff yields zero.
func (c *Calculator) tailRisk(returns []float64, confidence float64) (float64, float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	quantile := stat.Quantile(1.0-confidence, stat.Empirical, sorted, nil)
	valueAtRisk := math.Max(0.0, -quantile)

	// CVaR: mean of the returns at or below the VaR cutoff.
	sum := 0.0
	count := 0
	for _, r := range sorted {
		if r > quantile {
			break
		}
		sum += r
		count++
	}
	conditionalVaR := valueAtRisk
	if count > 0 {
		conditionalVaR = math.Max(0.0, -(sum / float64(count)))
	}

	return valueAtRisk, conditionalVaR
}
