package simulation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtest/internal/domain"
)

// StatisticsProvider is the external statistics collaborator. The engine's
// performance aggregator delegates all aggregate ratio math (annualized
// return, volatility, Sharpe, Sortino, max drawdown, VaR, CVaR, skew,
// kurtosis) to it and never reimplements those formulas.
type StatisticsProvider interface {
	Summarize(returns []float64, riskFreeRate, confidence float64, periodsPerYear int) (map[string]float64, error)
}

// Engine drives the time-stepped portfolio simulation. A single run is
// strictly sequential and deterministic: each step depends on the prior
// step's state. Callers running many what-if scenarios parallelize across
// independent runs, never within one.
type Engine struct {
	stats StatisticsProvider
	log   zerolog.Logger
}

// NewEngine creates a new simulation engine
func NewEngine(stats StatisticsProvider, log zerolog.Logger) *Engine {
	return &Engine{
		stats: stats,
		log:   log.With().Str("component", "simulation").Logger(),
	}
}

// Run walks the price path step by step, applying contributions, evaluating
// the rebalancing policy, executing trades under the cost model and tracking
// drawdowns.
//
// Configuration and data-sufficiency checks fail fast with no partial
// result. If the portfolio value ever reaches zero or below mid-run, the
// run aborts with the partial value path and a failed status. A statistics
// collaborator failure is returned wrapped but never invalidates the
// already-computed value path or drawdown records.
func (e *Engine) Run(cfg Config, path domain.PricePath) (*Result, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}
	if path.Len() < cfg.MinObservations {
		return nil, domain.InsufficientDataErrorf("price path has %d observations, need at least %d", path.Len(), cfg.MinObservations)
	}
	if missing, ok := path.HasSymbols(cfg.TargetWeights.Symbols()); !ok {
		return nil, domain.InsufficientDataErrorf("no price series for symbol %s", missing)
	}

	policy, err := NewPolicy(cfg.Policy, cfg.StepsPerYear)
	if err != nil {
		return nil, err
	}
	scheduler, err := NewContributionScheduler(cfg.Contribution, path.Timestamps[0])
	if err != nil {
		return nil, err
	}
	costModel := CostModel{Bps: cfg.CostBps}

	n := path.Len()
	priceAt := func(step int) func(string) float64 {
		return func(symbol string) float64 { return path.Prices[symbol][step] }
	}

	// t0 has no prior state: initialize directly from target weights at t0
	// prices. The initial allocation pays no transaction cost.
	state := newPortfolioState(cfg.InitialInvestment, cfg.TargetWeights, priceAt(0))
	tracker := newDrawdownTracker(cfg.InitialInvestment, path.Timestamps[0])

	values := make([]float64, 1, n)
	values[0] = cfg.InitialInvestment
	contributions := make([]float64, n)
	events := []RebalanceEvent{}
	totalCost := 0.0

	for i := 1; i < n; i++ {
		prices := priceAt(i)
		ts := path.Timestamps[i]

		// (a) revalue every position at this step's prices
		total := state.totalValue(prices)

		// (b) inject the scheduled contribution
		if c := scheduler.AmountAt(i, ts); c > 0 {
			contributions[i] = c
			if cfg.Contribution.HoldAsCash {
				state.cash += c
			} else {
				state.invest(c, cfg.TargetWeights, prices)
			}
			total += c
		}

		// Unreachable for long-only with bounded per-step loss, but guarded.
		if total <= 0 {
			return e.failedResult(path, values, contributions, events, tracker, i, total)
		}

		// (c) evaluate the rebalancing trigger
		if policy.Evaluate(i, state.maxDrift(cfg.TargetWeights, prices)) {
			policy.MarkExecuting()
			event, execErr := e.executeRebalance(state, cfg.TargetWeights, costModel, prices, ts, i, policy.Reason())
			if execErr != nil {
				return e.failedResult(path, values, contributions, events, tracker, i, 0)
			}
			totalCost += event.Cost
			events = append(events, *event)
			policy.MarkComplete(i)
			total = state.totalValue(prices)
		}

		// (e) record total value
		values = append(values, total)
		tracker.Observe(i, ts, total)
	}

	result := &Result{
		Status:          StatusCompleted,
		Timestamps:      path.Timestamps,
		Values:          values,
		Contributions:   contributions,
		RebalanceEvents: events,
		Drawdowns:       tracker.Finalize(),
	}

	if err := e.aggregate(result, cfg, totalCost); err != nil {
		return result, err
	}

	e.log.Debug().
		Int("steps", n).
		Int("rebalances", len(events)).
		Int("drawdowns", len(result.Drawdowns)).
		Float64("ending_value", result.EndingValue()).
		Msg("Simulation run completed")

	return result, nil
}

// executeRebalance computes target units for all assets simultaneously from
// total post-contribution value and executes the trades, netting the cost
// model output from total value before re-deriving post-trade units. With
// the cost funded proportionally across positions, post-cost weights equal
// target weights exactly.
func (e *Engine) executeRebalance(
	state *portfolioState,
	targets domain.Weights,
	costModel CostModel,
	priceAt func(string) float64,
	ts time.Time,
	step int,
	reason TriggerReason,
) (*RebalanceEvent, error) {
	total := state.totalValue(priceAt)
	preWeights := state.weights(priceAt)

	// Trade notionals from the pre-cost total; all assets at once, never
	// asset-by-asset sequentially.
	notionals := make(map[string]float64, len(state.symbols))
	for _, symbol := range state.symbols {
		current := state.units[symbol] * priceAt(symbol)
		notionals[symbol] = total*targets[symbol] - current
	}

	cost := costModel.Cost(notionals)
	afterCost := total - cost
	if afterCost <= 0 {
		return nil, domain.InvalidStateErrorf("portfolio value %.2f consumed by transaction cost %.2f at step %d", total, cost, step)
	}

	state.setTargetAllocation(afterCost, targets, priceAt)

	return &RebalanceEvent{
		Timestamp:     ts,
		StepIndex:     step,
		Reason:        reason,
		PreWeights:    preWeights,
		PostWeights:   state.weights(priceAt),
		TradeNotional: notionals,
		Cost:          cost,
	}, nil
}

// failedResult builds the partial result for a mid-run abort so batch
// callers can distinguish failure from a short-but-valid run.
func (e *Engine) failedResult(
	path domain.PricePath,
	values []float64,
	contributions []float64,
	events []RebalanceEvent,
	tracker *drawdownTracker,
	step int,
	value float64,
) (*Result, error) {
	err := domain.InvalidStateErrorf("portfolio value %.2f at step %d", value, step)

	e.log.Error().
		Int("step", step).
		Float64("value", value).
		Msg("Simulation aborted: non-positive portfolio value")

	return &Result{
		Status:          StatusFailed,
		FailureReason:   err.Error(),
		Timestamps:      path.Timestamps[:len(values)],
		Values:          values,
		Contributions:   contributions[:len(values)],
		RebalanceEvents: events,
		Drawdowns:       tracker.Finalize(),
	}, err
}
