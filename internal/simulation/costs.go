package simulation

import "math"

// CostModel prices a set of trades as a flat basis-point rate on total
// traded notional. Bid-ask asymmetry and market impact are out of scope.
type CostModel struct {
	Bps float64 // cost rate in basis points (1 bps = 0.01%)
}

// Cost returns the transaction cost for the given per-asset trade notionals.
// The cost is charged on the sum of absolute notionals, buys and sells alike.
func (m CostModel) Cost(notionals map[string]float64) float64 {
	if m.Bps <= 0 {
		return 0
	}
	total := 0.0
	for _, n := range notionals {
		total += math.Abs(n)
	}
	return (m.Bps / 10000.0) * total
}
