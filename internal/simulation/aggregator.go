package simulation

import (
	"github.com/aristath/backtest/internal/domain"
)

// aggregate converts the value path to a per-step return series, delegates
// ratio math to the statistics collaborator and adds the locally computed
// metrics the collaborator cannot know.
//
// Performance is time-weighted: contributions are capital additions, not
// IRR-weighted cashflows, so each step's return strips the contribution
// injected at that step before comparing against the prior value.
// Money-weighted (IRR) reporting is a legitimate alternative, deliberately
// not the default here.
func (e *Engine) aggregate(result *Result, cfg Config, totalCost float64) error {
	returns := returnSeries(result.Values, result.Contributions)

	totalContributions := 0.0
	for _, c := range result.Contributions {
		totalContributions += c
	}
	timeWeighted := 1.0
	for _, r := range returns {
		timeWeighted *= 1.0 + r
	}

	// Local metrics are always present, even when the collaborator fails.
	result.Metrics = map[string]float64{
		MetricInitialInvestment:  cfg.InitialInvestment,
		MetricTotalContributions: totalContributions,
		MetricEndingValue:        result.EndingValue(),
		MetricTimeWeightedReturn: timeWeighted - 1.0,
		MetricRebalanceCount:     float64(len(result.RebalanceEvents)),
		MetricTotalCost:          totalCost,
	}

	summary, err := e.stats.Summarize(returns, cfg.RiskFreeRate, cfg.Confidence, cfg.StepsPerYear)
	if err != nil {
		return domain.RiskCalculationError(err)
	}
	for name, value := range summary {
		result.Metrics[name] = value
	}
	return nil
}

// returnSeries computes the time-weighted per-step return series from the
// value path: r_t = (v_t - contribution_t) / v_{t-1} - 1.
func returnSeries(values, contributions []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns[i-1] = (values[i]-contributions[i])/values[i-1] - 1.0
	}
	return returns
}
