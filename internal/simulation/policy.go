package simulation

import (
	"math"
	"strings"

	"github.com/aristath/backtest/internal/domain"
)

// PolicyType selects the rebalancing policy variant.
type PolicyType string

const (
	// PolicyNone never rebalances past the initial allocation
	PolicyNone PolicyType = "none"
	// PolicyPeriodic fires on elapsed-step-count boundaries
	PolicyPeriodic PolicyType = "periodic"
	// PolicyThreshold fires when max per-asset drift exceeds the limit
	PolicyThreshold PolicyType = "threshold"
)

// PolicyInterval is the firing interval for periodic policies.
type PolicyInterval string

const (
	IntervalMonthly   PolicyInterval = "monthly"
	IntervalQuarterly PolicyInterval = "quarterly"
	IntervalYearly    PolicyInterval = "yearly"
)

// PolicySpec is the configuration form of a rebalancing policy. All variants
// go through the same spec; there are no separate code paths per variant.
type PolicySpec struct {
	Type       PolicyType     `json:"type" yaml:"type"`
	Interval   PolicyInterval `json:"interval,omitempty" yaml:"interval,omitempty"`
	DriftLimit float64        `json:"drift_limit,omitempty" yaml:"drift_limit,omitempty"`
}

// PolicyState is the rebalancing state machine state.
// Transitions: NOT_DUE -> DUE on the trigger condition, DUE -> EXECUTING when
// trades are computed, EXECUTING -> NOT_DUE unconditionally after execution,
// even if residual drift remains from fractional rounding.
type PolicyState string

const (
	StateNotDue    PolicyState = "NOT_DUE"
	StateDue       PolicyState = "DUE"
	StateExecuting PolicyState = "EXECUTING"
)

// RebalancePolicy decides, each step, whether the portfolio should trade
// back toward target weights.
type RebalancePolicy interface {
	// Reason names the trigger this policy produces on a rebalance event.
	Reason() TriggerReason
	// State returns the current state machine state.
	State() PolicyState
	// Evaluate checks the trigger condition at the given step and moves
	// NOT_DUE -> DUE when it holds. It returns true when the policy is DUE.
	// maxDrift is the max over assets of |weight - target|.
	Evaluate(step int, maxDrift float64) bool
	// MarkExecuting moves DUE -> EXECUTING.
	MarkExecuting()
	// MarkComplete moves EXECUTING -> NOT_DUE and records the step as the
	// last rebalance boundary.
	MarkComplete(step int)
}

// NewPolicy constructs the policy variant selected by spec. stepsPerYear
// converts named intervals to elapsed-step boundaries (the policy is not
// calendar-aware; monthly at 252 steps/year means every 21 steps).
func NewPolicy(spec PolicySpec, stepsPerYear int) (RebalancePolicy, error) {
	switch PolicyType(strings.ToLower(string(spec.Type))) {
	case PolicyNone, "":
		return &nonePolicy{}, nil

	case PolicyPeriodic:
		steps, err := intervalSteps(spec.Interval, stepsPerYear)
		if err != nil {
			return nil, err
		}
		return &periodicPolicy{intervalSteps: steps}, nil

	case PolicyThreshold:
		if spec.DriftLimit < 0 || math.IsNaN(spec.DriftLimit) {
			return nil, domain.ConfigurationErrorf("threshold policy requires a non-negative drift limit, got %.4f", spec.DriftLimit)
		}
		return &thresholdPolicy{driftLimit: spec.DriftLimit}, nil

	default:
		return nil, domain.UnsupportedPolicyErrorf("unknown policy type %q", spec.Type)
	}
}

func intervalSteps(interval PolicyInterval, stepsPerYear int) (int, error) {
	var steps int
	switch PolicyInterval(strings.ToLower(string(interval))) {
	case IntervalMonthly:
		steps = stepsPerYear / 12
	case IntervalQuarterly:
		steps = stepsPerYear / 4
	case IntervalYearly:
		steps = stepsPerYear
	default:
		return 0, domain.UnsupportedPolicyErrorf("unknown periodic interval %q", interval)
	}
	if steps < 1 {
		steps = 1
	}
	return steps, nil
}

// nonePolicy holds the initial allocation for the whole horizon.
type nonePolicy struct {
	state PolicyState
}

func (p *nonePolicy) Reason() TriggerReason { return TriggerPeriodic }
func (p *nonePolicy) State() PolicyState    { return stateOrNotDue(p.state) }
func (p *nonePolicy) Evaluate(int, float64) bool {
	return false
}
func (p *nonePolicy) MarkExecuting()   {}
func (p *nonePolicy) MarkComplete(int) {}

// periodicPolicy fires every intervalSteps elapsed steps since the last
// rebalance (step 0 is the initial allocation, never a rebalance).
type periodicPolicy struct {
	intervalSteps int
	lastRebalance int
	state         PolicyState
}

func (p *periodicPolicy) Reason() TriggerReason { return TriggerPeriodic }
func (p *periodicPolicy) State() PolicyState    { return stateOrNotDue(p.state) }

func (p *periodicPolicy) Evaluate(step int, _ float64) bool {
	if p.state == StateDue {
		return true
	}
	if step-p.lastRebalance >= p.intervalSteps {
		p.state = StateDue
		return true
	}
	return false
}

func (p *periodicPolicy) MarkExecuting() { p.state = StateExecuting }
func (p *periodicPolicy) MarkComplete(step int) {
	p.lastRebalance = step
	p.state = StateNotDue
}

// thresholdPolicy fires when max per-asset drift exceeds the limit. The
// trigger uses max over assets, not the sum.
type thresholdPolicy struct {
	driftLimit float64
	state      PolicyState
}

func (p *thresholdPolicy) Reason() TriggerReason { return TriggerThreshold }
func (p *thresholdPolicy) State() PolicyState    { return stateOrNotDue(p.state) }

func (p *thresholdPolicy) Evaluate(_ int, maxDrift float64) bool {
	if p.state == StateDue {
		return true
	}
	if maxDrift > p.driftLimit {
		p.state = StateDue
		return true
	}
	return false
}

func (p *thresholdPolicy) MarkExecuting() { p.state = StateExecuting }
func (p *thresholdPolicy) MarkComplete(int) {
	p.state = StateNotDue
}

func stateOrNotDue(s PolicyState) PolicyState {
	if s == "" {
		return StateNotDue
	}
	return s
}
