// Package report renders narrative summaries of simulation results at
// different audience tiers. It is a pure presentation layer over the result
// structure, fully decoupled from the stepping loop.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/backtest/internal/simulation"
	"github.com/aristath/backtest/internal/statistics"
)

// Tier selects the audience register of the narrative.
type Tier string

const (
	// TierRetail - plain language, no jargon
	TierRetail Tier = "retail"
	// TierProfessional - adds risk-adjusted ratios and trading activity
	TierProfessional Tier = "professional"
	// TierQuantitative - full metric set and drawdown episode detail
	TierQuantitative Tier = "quantitative"
)

// ParseTier converts a string to a Tier, defaulting to professional.
func ParseTier(value string) Tier {
	switch Tier(strings.ToLower(value)) {
	case TierRetail:
		return TierRetail
	case TierQuantitative:
		return TierQuantitative
	default:
		return TierProfessional
	}
}

// Render produces the narrative for a result at the given tier.
func Render(result *simulation.Result, tier Tier) string {
	if result == nil {
		return "No simulation result available."
	}

	var b strings.Builder

	if result.Status == simulation.StatusFailed {
		fmt.Fprintf(&b, "Simulation aborted: %s\n", result.FailureReason)
		fmt.Fprintf(&b, "Partial value path covers %d steps.\n", len(result.Values))
		return b.String()
	}

	switch tier {
	case TierRetail:
		renderRetail(&b, result)
	case TierQuantitative:
		renderProfessional(&b, result)
		renderQuantitative(&b, result)
	default:
		renderProfessional(&b, result)
	}

	return b.String()
}

func renderRetail(b *strings.Builder, result *simulation.Result) {
	initial := result.Metrics[simulation.MetricInitialInvestment]
	contributed := result.Metrics[simulation.MetricTotalContributions]
	ending := result.Metrics[simulation.MetricEndingValue]
	growth := result.Metrics[simulation.MetricTimeWeightedReturn]

	fmt.Fprintf(b, "You started with %.2f and added %.2f along the way.\n", initial, contributed)
	fmt.Fprintf(b, "At the end of the period your portfolio was worth %.2f.\n", ending)
	fmt.Fprintf(b, "Your investments grew %.1f%% over the period, independent of when you added money.\n", growth*100)

	worst := worstDrawdown(result)
	if worst == nil {
		b.WriteString("Your portfolio never dropped below a previous high during this period.\n")
		return
	}
	fmt.Fprintf(b, "The worst stretch saw your portfolio drop %.1f%% from its high.\n", -worst.Depth*100)
	if worst.Recovered() {
		fmt.Fprintf(b, "It fully recovered after %d days.\n", int(worst.DurationToRecovery.Hours()/24))
	} else {
		b.WriteString("It had not yet recovered to that high by the end of the period.\n")
	}
}

func renderProfessional(b *strings.Builder, result *simulation.Result) {
	m := result.Metrics
	fmt.Fprintf(b, "Period performance: %.2f%% time-weighted (%.2f%% annualized), ending value %.2f.\n",
		m[simulation.MetricTimeWeightedReturn]*100,
		m[statistics.MetricAnnualizedReturn]*100,
		m[simulation.MetricEndingValue])
	fmt.Fprintf(b, "Risk: volatility %.2f%%, max drawdown %.2f%%, Sharpe %.2f, Sortino %.2f.\n",
		m[statistics.MetricVolatility]*100,
		m[statistics.MetricMaxDrawdown]*100,
		m[statistics.MetricSharpeRatio],
		m[statistics.MetricSortinoRatio])
	fmt.Fprintf(b, "Activity: %d rebalances, total transaction costs %.2f; contributions added %.2f on top of %.2f initial.\n",
		int(m[simulation.MetricRebalanceCount]),
		m[simulation.MetricTotalCost],
		m[simulation.MetricTotalContributions],
		m[simulation.MetricInitialInvestment])
	fmt.Fprintf(b, "Drawdown episodes: %d (%d unrecovered at horizon end).\n",
		len(result.Drawdowns), unrecoveredCount(result))
}

func renderQuantitative(b *strings.Builder, result *simulation.Result) {
	fmt.Fprintf(b, "Tail risk: VaR %.2f%%, CVaR %.2f%% per step; skewness %.3f, excess kurtosis %.3f.\n",
		result.Metrics[statistics.MetricValueAtRisk]*100,
		result.Metrics[statistics.MetricConditionalVaR]*100,
		result.Metrics[statistics.MetricSkewness],
		result.Metrics[statistics.MetricKurtosis])

	b.WriteString("Full metric set:\n")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  %-24s %12.6f\n", name, result.Metrics[name])
	}

	if len(result.Drawdowns) > 0 {
		b.WriteString("Drawdown episodes:\n")
		for i, dd := range result.Drawdowns {
			recovery := "unrecovered"
			if dd.Recovered() {
				recovery = dd.RecoveryTimestamp.Format("2006-01-02")
			}
			fmt.Fprintf(b, "  #%d %s -> trough %s (%.2f%%), recovery %s\n",
				i+1,
				dd.PeakTimestamp.Format("2006-01-02"),
				dd.TroughTimestamp.Format("2006-01-02"),
				dd.Depth*100,
				recovery)
		}
	}

	if len(result.RebalanceEvents) > 0 {
		b.WriteString("Rebalance events:\n")
		for _, ev := range result.RebalanceEvents {
			fmt.Fprintf(b, "  %s step %d (%s), cost %.4f\n",
				ev.Timestamp.Format("2006-01-02"), ev.StepIndex, ev.Reason, ev.Cost)
		}
	}
}

func worstDrawdown(result *simulation.Result) *simulation.DrawdownPeriod {
	var worst *simulation.DrawdownPeriod
	for i := range result.Drawdowns {
		if worst == nil || result.Drawdowns[i].Depth < worst.Depth {
			worst = &result.Drawdowns[i]
		}
	}
	return worst
}

func unrecoveredCount(result *simulation.Result) int {
	count := 0
	for _, dd := range result.Drawdowns {
		if !dd.Recovered() {
			count++
		}
	}
	return count
}
