// Package marketdata provides the price path provider consumed by the
// simulation engine: a sqlite-backed daily price history, alignment and
// gap-filling of per-asset series onto one timestamp axis, a cached
// aligned-series layer and a deterministic synthetic path generator.
package marketdata

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/backtest/internal/domain"
)

// Provider supplies aligned, gap-filled per-asset price series.
type Provider interface {
	// GetPricePath returns the aligned path for the symbols over [start, end].
	// It fails with an insufficient-data error when fewer than minObservations
	// aligned steps are available.
	GetPricePath(symbols []string, start, end time.Time, minObservations int) (domain.PricePath, error)
}

// DailyPrice is one close observation for a symbol.
type DailyPrice struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

const dateLayout = "2006-01-02"

// alignSeries builds the union date axis over all symbols and places each
// symbol's closes on it, marking gaps as NaN for the fill pass.
func alignSeries(pricesBySymbol map[string]map[string]float64) ([]string, map[string][]float64) {
	dateSet := make(map[string]bool)
	for _, bySymbol := range pricesBySymbol {
		for date := range bySymbol {
			dateSet[date] = true
		}
	}
	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64, len(pricesBySymbol))
	for symbol, bySymbol := range pricesBySymbol {
		series := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := bySymbol[date]; ok {
				series[i] = price
			} else {
				series[i] = math.NaN()
			}
		}
		data[symbol] = series
	}
	return dates, data
}

// fillMissing fills gaps within a series: forward-fill from the previous
// valid value, then back-fill leading gaps from the next valid value.
// Returns the number of observations still missing (series with no data).
func fillMissing(data map[string][]float64) int {
	stillMissing := 0
	for _, series := range data {
		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(series); i++ {
			if math.IsNaN(series[i]) {
				if hasLastValid {
					series[i] = lastValid
				}
			} else {
				lastValid = series[i]
				hasLastValid = true
			}
		}

		var nextValid float64
		hasNextValid := false
		for i := len(series) - 1; i >= 0; i-- {
			if math.IsNaN(series[i]) {
				if hasNextValid {
					series[i] = nextValid
				} else {
					stillMissing++
				}
			} else {
				nextValid = series[i]
				hasNextValid = true
			}
		}
	}
	return stillMissing
}

// buildPath converts a filled date axis and series map into a PricePath.
func buildPath(dates []string, data map[string][]float64) (domain.PricePath, error) {
	timestamps := make([]time.Time, len(dates))
	for i, date := range dates {
		ts, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return domain.PricePath{}, domain.ConfigurationErrorf("invalid date %q in price history: %v", date, err)
		}
		timestamps[i] = ts
	}
	path := domain.PricePath{
		Timestamps: timestamps,
		Prices:     data,
	}
	if err := path.Validate(); err != nil {
		return domain.PricePath{}, err
	}
	return path, nil
}
