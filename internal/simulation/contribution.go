package simulation

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/backtest/internal/domain"
)

// ContributionSpec configures how new capital enters the portfolio during a
// run. Contributions are invested immediately pro-rata across target weights
// by default; set HoldAsCash to accumulate them as cash until the next
// rebalance instead.
type ContributionSpec struct {
	Amount float64 `json:"amount" yaml:"amount"`

	// EverySteps fires a contribution every N elapsed steps (never at step
	// 0, which is the initial allocation). 0 disables step-based
	// contributions.
	EverySteps int `json:"every_steps,omitempty" yaml:"every_steps,omitempty"`

	// Schedule is an optional calendar-aware schedule in standard cron
	// format (e.g. "0 0 1 * *" for the first of every month), evaluated
	// against the path's timestamps. Takes precedence over EverySteps.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	HoldAsCash bool `json:"hold_as_cash,omitempty" yaml:"hold_as_cash,omitempty"`
}

// ContributionScheduler decides how much new capital enters at each step.
type ContributionScheduler struct {
	amount     float64
	everySteps int
	schedule   cron.Schedule
	next       time.Time
}

// NewContributionScheduler builds a scheduler from spec. start is the path's
// first timestamp; a cron schedule begins firing strictly after it.
func NewContributionScheduler(spec ContributionSpec, start time.Time) (*ContributionScheduler, error) {
	if spec.Amount < 0 {
		return nil, domain.ConfigurationErrorf("contribution amount must be non-negative, got %.2f", spec.Amount)
	}
	if spec.EverySteps < 0 {
		return nil, domain.ConfigurationErrorf("contribution interval must be non-negative, got %d", spec.EverySteps)
	}

	s := &ContributionScheduler{
		amount:     spec.Amount,
		everySteps: spec.EverySteps,
	}

	if spec.Schedule != "" {
		schedule, err := cron.ParseStandard(spec.Schedule)
		if err != nil {
			return nil, domain.ConfigurationErrorf("invalid contribution schedule %q: %v", spec.Schedule, err)
		}
		s.schedule = schedule
		s.next = schedule.Next(start)
	}

	return s, nil
}

// AmountAt returns the contribution due at the given step. Step 0 never
// contributes; that step is the initial allocation.
func (s *ContributionScheduler) AmountAt(step int, ts time.Time) float64 {
	if s.amount == 0 || step == 0 {
		return 0
	}

	if s.schedule != nil {
		// Fire once for each schedule activation the path has passed.
		// Coarse paths (e.g. monthly steps against a monthly cron) still
		// contribute exactly once per activation.
		total := 0.0
		for !s.next.After(ts) {
			total += s.amount
			s.next = s.schedule.Next(s.next)
		}
		return total
	}

	if s.everySteps > 0 && step%s.everySteps == 0 {
		return s.amount
	}
	return 0
}
