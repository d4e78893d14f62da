package simulation

import (
	"math"

	"github.com/aristath/backtest/internal/domain"
)

// portfolioState is the mutable per-run state: units held per asset plus a
// cash balance. Units are continuously divisible; no lot-size rounding is
// modeled. Invariant: sum(units_i * price_i) + cash == total value at every
// step, before costs are netted out of a rebalance.
type portfolioState struct {
	symbols []string
	units   map[string]float64
	cash    float64
}

// newPortfolioState splits the initial investment across target weights at
// the first step's prices. The initial allocation pays no transaction cost.
func newPortfolioState(initial float64, targets domain.Weights, priceAt func(symbol string) float64) *portfolioState {
	s := &portfolioState{
		symbols: targets.Symbols(),
		units:   make(map[string]float64, len(targets)),
	}
	for _, symbol := range s.symbols {
		s.units[symbol] = initial * targets[symbol] / priceAt(symbol)
	}
	return s
}

// totalValue revalues every position at the given prices and adds cash.
func (s *portfolioState) totalValue(priceAt func(symbol string) float64) float64 {
	total := s.cash
	for _, symbol := range s.symbols {
		total += s.units[symbol] * priceAt(symbol)
	}
	return total
}

// weights returns current portfolio weights (position value / total value).
// Cash is not an asset; with a cash balance the asset weights sum below 1.
func (s *portfolioState) weights(priceAt func(symbol string) float64) domain.Weights {
	total := s.totalValue(priceAt)
	w := make(domain.Weights, len(s.symbols))
	if total <= 0 {
		return w
	}
	for _, symbol := range s.symbols {
		w[symbol] = s.units[symbol] * priceAt(symbol) / total
	}
	return w
}

// maxDrift returns the maximum over assets of |weight - target|. The trigger
// condition uses this max, not the sum of deviations.
func (s *portfolioState) maxDrift(targets domain.Weights, priceAt func(symbol string) float64) float64 {
	current := s.weights(priceAt)
	maxDrift := 0.0
	for _, symbol := range s.symbols {
		if drift := math.Abs(current[symbol] - targets[symbol]); drift > maxDrift {
			maxDrift = drift
		}
	}
	return maxDrift
}

// invest buys amount of each asset pro-rata by target weight at current
// prices. Used for immediate investment of contributions.
func (s *portfolioState) invest(amount float64, targets domain.Weights, priceAt func(symbol string) float64) {
	for _, symbol := range s.symbols {
		s.units[symbol] += amount * targets[symbol] / priceAt(symbol)
	}
}

// setTargetAllocation re-derives units for all assets simultaneously from
// the given total value so that post-trade weights equal targets exactly.
// Cash is fully invested. Computing all targets from the same total avoids
// asset-by-asset order bias.
func (s *portfolioState) setTargetAllocation(total float64, targets domain.Weights, priceAt func(symbol string) float64) {
	for _, symbol := range s.symbols {
		s.units[symbol] = total * targets[symbol] / priceAt(symbol)
	}
	s.cash = 0
}
