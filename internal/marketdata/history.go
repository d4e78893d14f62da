package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/domain"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol TEXT NOT NULL,
	date   TEXT NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
`

// HistoryStore is the sqlite-backed daily price history. It implements
// Provider by aligning per-symbol closes on the union date axis with
// forward-fill then back-fill inside the window.
type HistoryStore struct {
	db    *database.DB
	cache *SeriesCache // optional, set via SetCache
	log   zerolog.Logger
}

// NewHistoryStore creates a history store and ensures its schema exists.
func NewHistoryStore(db *database.DB, log zerolog.Logger) (*HistoryStore, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("failed to initialize price history schema: %w", err)
	}
	return &HistoryStore{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}, nil
}

// SetCache enables caching of aligned price paths. Optional; without it
// every call aligns fresh from the database.
func (s *HistoryStore) SetCache(cache *SeriesCache) {
	s.cache = cache
}

// SavePrices upserts daily closes for a symbol. Cached aligned paths
// containing the symbol are invalidated so fresh imports take effect
// immediately.
func (s *HistoryStore) SavePrices(symbol string, prices []DailyPrice) error {
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if p.Close <= 0 {
				return fmt.Errorf("non-positive close %.4f for %s on %s", p.Close, symbol, p.Date)
			}
			if _, err := stmt.Exec(symbol, p.Date, p.Close); err != nil {
				return fmt.Errorf("failed to upsert price for %s on %s: %w", symbol, p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(symbol); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to invalidate cached price paths")
		}
	}
	return nil
}

// GetDailyPrices returns a symbol's closes in ascending date order,
// optionally restricted to dates >= since (empty string = no restriction).
func (s *HistoryStore) GetDailyPrices(symbol, since string) ([]DailyPrice, error) {
	query := `SELECT date, close FROM daily_prices WHERE symbol = ?`
	args := []interface{}{symbol}
	if since != "" {
		query += ` AND date >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price for %s: %w", symbol, err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// GetPricePath implements Provider.
func (s *HistoryStore) GetPricePath(symbols []string, start, end time.Time, minObservations int) (domain.PricePath, error) {
	if len(symbols) == 0 {
		return domain.PricePath{}, domain.ConfigurationErrorf("no symbols requested")
	}

	cacheKey := seriesCacheKey(symbols, start, end)
	if s.cache != nil {
		if path, ok := s.cache.Get(cacheKey); ok {
			s.log.Debug().Str("key", cacheKey[:8]).Msg("Using cached aligned price path")
			if path.Len() < minObservations {
				return domain.PricePath{}, domain.InsufficientDataErrorf("only %d observations available, need at least %d", path.Len(), minObservations)
			}
			return path, nil
		}
	}

	startDate := start.UTC().Format(dateLayout)
	endDate := end.UTC().Format(dateLayout)

	pricesBySymbol := make(map[string]map[string]float64, len(symbols))
	for _, symbol := range symbols {
		prices, err := s.GetDailyPrices(symbol, startDate)
		if err != nil {
			return domain.PricePath{}, err
		}
		bySymbol := make(map[string]float64)
		for _, p := range prices {
			if p.Date > endDate {
				continue
			}
			bySymbol[p.Date] = p.Close
		}
		if len(bySymbol) == 0 {
			return domain.PricePath{}, domain.InsufficientDataErrorf("no price history for %s in [%s, %s]", symbol, startDate, endDate)
		}
		pricesBySymbol[symbol] = bySymbol
	}

	dates, data := alignSeries(pricesBySymbol)
	if len(dates) < minObservations {
		return domain.PricePath{}, domain.InsufficientDataErrorf("only %d observations available, need at least %d", len(dates), minObservations)
	}

	if stillMissing := fillMissing(data); stillMissing > 0 {
		return domain.PricePath{}, domain.InsufficientDataErrorf("%d observations could not be gap-filled", stillMissing)
	}

	path, err := buildPath(dates, data)
	if err != nil {
		return domain.PricePath{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(cacheKey, symbols, path, TTLSeriesCache); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache aligned price path")
		}
	}

	s.log.Debug().
		Int("symbols", len(symbols)).
		Int("observations", len(dates)).
		Msg("Built aligned price path")

	return path, nil
}
