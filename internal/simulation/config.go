package simulation

import (
	"math"

	"github.com/aristath/backtest/internal/domain"
)

// Defaults applied by Config.applyDefaults.
const (
	DefaultStepsPerYear    = 252 // trading days
	DefaultMinObservations = 30
	DefaultConfidence      = 0.95
)

// Config fully describes one simulation run.
type Config struct {
	InitialInvestment float64          `json:"initial_investment" yaml:"initial_investment"`
	TargetWeights     domain.Weights   `json:"target_weights" yaml:"target_weights"`
	Policy            PolicySpec       `json:"policy" yaml:"policy"`
	CostBps           float64          `json:"cost_bps" yaml:"cost_bps"`
	Contribution      ContributionSpec `json:"contribution" yaml:"contribution"`

	// StepsPerYear annualizes per-step quantities and converts named
	// periodic intervals to step counts. Defaults to 252 (daily steps).
	StepsPerYear int `json:"steps_per_year,omitempty" yaml:"steps_per_year,omitempty"`

	// MinObservations is the minimum price path length; shorter paths fail
	// fast before the loop starts. Defaults to 30.
	MinObservations int `json:"min_observations,omitempty" yaml:"min_observations,omitempty"`

	RiskFreeRate float64 `json:"risk_free_rate,omitempty" yaml:"risk_free_rate,omitempty"`
	Confidence   float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.StepsPerYear == 0 {
		c.StepsPerYear = DefaultStepsPerYear
	}
	if c.MinObservations == 0 {
		c.MinObservations = DefaultMinObservations
	}
	if c.Confidence == 0 {
		c.Confidence = DefaultConfidence
	}
}

// Validate checks the configuration before the step loop; failures here are
// fail-fast with no partial result.
func (c *Config) Validate() error {
	if c.InitialInvestment <= 0 || math.IsNaN(c.InitialInvestment) || math.IsInf(c.InitialInvestment, 0) {
		return domain.ConfigurationErrorf("initial investment must be positive, got %.2f", c.InitialInvestment)
	}
	if err := c.TargetWeights.Validate(); err != nil {
		return err
	}
	if c.CostBps < 0 || math.IsNaN(c.CostBps) {
		return domain.ConfigurationErrorf("cost rate must be non-negative, got %.2f bps", c.CostBps)
	}
	if c.StepsPerYear < 1 {
		return domain.ConfigurationErrorf("steps per year must be positive, got %d", c.StepsPerYear)
	}
	if c.MinObservations < 2 {
		return domain.ConfigurationErrorf("minimum observations must be at least 2, got %d", c.MinObservations)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return domain.ConfigurationErrorf("confidence must be in (0, 1), got %.4f", c.Confidence)
	}
	// Policy spec is validated by NewPolicy; run it here so bad policies
	// fail before any state is built.
	if _, err := NewPolicy(c.Policy, c.StepsPerYear); err != nil {
		return err
	}
	return nil
}
