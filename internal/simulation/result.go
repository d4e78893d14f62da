// Package simulation implements the time-stepped portfolio simulation and
// rebalancing engine: portfolio state, the stepping loop, rebalancing
// policies, transaction costs, contribution scheduling, drawdown tracking
// and performance aggregation.
package simulation

import (
	"time"

	"github.com/aristath/backtest/internal/domain"
)

// RunStatus indicates whether a simulation run completed the full price path.
type RunStatus string

const (
	// StatusCompleted - the run walked the entire price path
	StatusCompleted RunStatus = "completed"
	// StatusFailed - the run aborted mid-path; the result carries the
	// partial value path so batch callers can distinguish failure from a
	// short-but-valid run
	StatusFailed RunStatus = "failed"
)

// TriggerReason identifies what caused a rebalance.
type TriggerReason string

const (
	TriggerPeriodic  TriggerReason = "periodic"
	TriggerThreshold TriggerReason = "threshold"
)

// RebalanceEvent records one executed rebalance.
type RebalanceEvent struct {
	Timestamp     time.Time          `json:"timestamp"`
	StepIndex     int                `json:"step_index"`
	Reason        TriggerReason      `json:"reason"`
	PreWeights    domain.Weights     `json:"pre_weights"`
	PostWeights   domain.Weights     `json:"post_weights"`
	TradeNotional map[string]float64 `json:"trade_notional"`
	Cost          float64            `json:"cost"`
}

// DrawdownPeriod records one peak-to-trough-to-recovery episode of the value
// path. An episode still open at the end of the path has a nil recovery
// timestamp and nil duration-to-recovery; no recovery date is synthesized.
type DrawdownPeriod struct {
	PeakTimestamp      time.Time      `json:"peak_timestamp"`
	TroughTimestamp    time.Time      `json:"trough_timestamp"`
	RecoveryTimestamp  *time.Time     `json:"recovery_timestamp"`
	PeakIndex          int            `json:"peak_index"`
	TroughIndex        int            `json:"trough_index"`
	RecoveryIndex      *int           `json:"recovery_index"`
	Depth              float64        `json:"depth"` // signed fraction, e.g. -0.20
	DurationToTrough   time.Duration  `json:"duration_to_trough"`
	DurationToRecovery *time.Duration `json:"duration_to_recovery"`
}

// Recovered reports whether the period closed with a full recovery.
func (p DrawdownPeriod) Recovered() bool {
	return p.RecoveryTimestamp != nil
}

// Result is the complete output of one simulation run. It is a plain nested
// structure; serialization is the caller's responsibility.
type Result struct {
	Status        RunStatus `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`

	Timestamps    []time.Time `json:"timestamps"`
	Values        []float64   `json:"values"`
	Contributions []float64   `json:"contributions"` // per-step injected capital, 0 where none

	RebalanceEvents []RebalanceEvent `json:"rebalance_events"`
	Drawdowns       []DrawdownPeriod `json:"drawdowns"`

	// Metrics holds the summary metrics map. Ratio metrics come from the
	// statistics collaborator; the engine adds only what the collaborator
	// cannot know (contributed capital, time-weighted return, costs).
	Metrics map[string]float64 `json:"metrics"`
}

// Locally computed metric keys added by the performance aggregator.
const (
	MetricInitialInvestment  = "initial_investment"
	MetricTotalContributions = "total_contributions"
	MetricEndingValue        = "ending_value"
	MetricTimeWeightedReturn = "time_weighted_return"
	MetricRebalanceCount     = "rebalance_count"
	MetricTotalCost          = "total_cost"
)

// EndingValue returns the last recorded portfolio value, or 0 for an empty path.
func (r *Result) EndingValue() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	return r.Values[len(r.Values)-1]
}
