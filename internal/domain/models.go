package domain

import (
	"math"
	"sort"
	"time"
)

// WeightTolerance is the tolerance used when validating that target weights
// sum to 1.0.
const WeightTolerance = 1e-6

// Weights maps symbol -> target portfolio fraction.
type Weights map[string]float64

// Validate checks the long-only weight invariants: every weight is
// non-negative and the sum is 1.0 within WeightTolerance.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return ConfigurationErrorf("no target weights provided")
	}
	sum := 0.0
	for symbol, weight := range w {
		if weight < 0 {
			return ConfigurationErrorf("negative weight %.4f for %s (short positions are not supported)", weight, symbol)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return ConfigurationErrorf("weights sum to %.6f, expected 1.0", sum)
	}
	return nil
}

// Symbols returns the weight symbols in deterministic sorted order.
// The engine iterates assets in this order so runs are reproducible.
func (w Weights) Symbols() []string {
	symbols := make([]string, 0, len(w))
	for symbol := range w {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// PricePath holds per-asset price series aligned on a single timestamp axis.
// Providers are responsible for gap-filling; the engine only validates.
type PricePath struct {
	Timestamps []time.Time          `json:"timestamps" msgpack:"timestamps"`
	Prices     map[string][]float64 `json:"prices" msgpack:"prices"`
}

// Len returns the number of steps in the path.
func (p PricePath) Len() int {
	return len(p.Timestamps)
}

// Validate checks path invariants: strictly increasing timestamps, every
// series aligned to the timestamp axis, every price strictly positive.
func (p PricePath) Validate() error {
	if len(p.Timestamps) == 0 {
		return InsufficientDataErrorf("empty price path")
	}
	for i := 1; i < len(p.Timestamps); i++ {
		if !p.Timestamps[i].After(p.Timestamps[i-1]) {
			return ConfigurationErrorf("timestamps not strictly increasing at index %d", i)
		}
	}
	for symbol, series := range p.Prices {
		if len(series) != len(p.Timestamps) {
			return ConfigurationErrorf("series %s has %d observations, expected %d", symbol, len(series), len(p.Timestamps))
		}
		for i, price := range series {
			if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				return ConfigurationErrorf("series %s has non-positive price %.4f at index %d", symbol, price, i)
			}
		}
	}
	return nil
}

// HasSymbols reports whether the path carries a series for every symbol.
// On failure it returns the first missing symbol.
func (p PricePath) HasSymbols(symbols []string) (string, bool) {
	for _, symbol := range symbols {
		if _, ok := p.Prices[symbol]; !ok {
			return symbol, false
		}
	}
	return "", true
}
