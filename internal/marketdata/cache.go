package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/domain"
)

// TTLSeriesCache is how long an aligned price path stays valid.
const TTLSeriesCache = 24 * time.Hour

const cacheSchema = `
CREATE TABLE IF NOT EXISTS series_cache (
	cache_key  TEXT PRIMARY KEY,
	symbols    TEXT NOT NULL,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// SeriesCache stores msgpack-encoded aligned price paths with TTLs in the
// cache database, keyed by a deterministic hash of symbols and date range.
type SeriesCache struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSeriesCache creates a series cache and ensures its schema exists.
func NewSeriesCache(db *database.DB, log zerolog.Logger) (*SeriesCache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize series cache schema: %w", err)
	}
	return &SeriesCache{
		db:  db,
		log: log.With().Str("component", "series_cache").Logger(),
	}, nil
}

// seriesCacheKey creates a deterministic hash from symbols and date range.
// Symbols are sorted so the key is order-independent.
func seriesCacheKey(symbols []string, start, end time.Time) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	keyData := fmt.Sprintf("%s|%s|%s",
		strings.Join(sorted, ","),
		start.UTC().Format(dateLayout),
		end.UTC().Format(dateLayout))
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// Get returns the cached path for key, if present and not expired.
func (c *SeriesCache) Get(key string) (domain.PricePath, bool) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM series_cache WHERE cache_key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		return domain.PricePath{}, false
	}
	if time.Now().Unix() > expiresAt {
		_, _ = c.db.Exec(`DELETE FROM series_cache WHERE cache_key = ?`, key)
		return domain.PricePath{}, false
	}

	var path domain.PricePath
	if err := msgpack.Unmarshal(payload, &path); err != nil {
		c.log.Warn().Err(err).Msg("Failed to decode cached price path, discarding")
		_, _ = c.db.Exec(`DELETE FROM series_cache WHERE cache_key = ?`, key)
		return domain.PricePath{}, false
	}
	return path, true
}

// Set stores the path under key with the given TTL. The symbol set is kept
// alongside the payload so Invalidate can find entries by symbol.
func (c *SeriesCache) Set(key string, symbols []string, path domain.PricePath, ttl time.Duration) error {
	payload, err := msgpack.Marshal(&path)
	if err != nil {
		return fmt.Errorf("failed to encode price path: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO series_cache (cache_key, symbols, payload, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET symbols = excluded.symbols, payload = excluded.payload, expires_at = excluded.expires_at
	`, key, symbolsColumn(symbols), payload, time.Now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store price path: %w", err)
	}
	return nil
}

// symbolsColumn joins symbols delimiter-wrapped so a LIKE match on
// ",SYM," cannot hit a substring of another symbol.
func symbolsColumn(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return "," + strings.Join(sorted, ",") + ","
}

// Invalidate removes every cached path containing symbol. Called after
// price imports so stale aligned series do not outlive new data.
func (c *SeriesCache) Invalidate(symbol string) error {
	result, err := c.db.Exec(`DELETE FROM series_cache WHERE symbols LIKE ?`, "%,"+symbol+",%")
	if err != nil {
		return fmt.Errorf("failed to invalidate cache for %s: %w", symbol, err)
	}
	if removed, err := result.RowsAffected(); err == nil && removed > 0 {
		c.log.Debug().Str("symbol", symbol).Int64("removed", removed).Msg("Invalidated cached price paths")
	}
	return nil
}

// Prune removes expired entries.
func (c *SeriesCache) Prune() error {
	result, err := c.db.Exec(`DELETE FROM series_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to prune series cache: %w", err)
	}
	if removed, err := result.RowsAffected(); err == nil && removed > 0 {
		c.log.Debug().Int64("removed", removed).Msg("Pruned expired cache entries")
	}
	return nil
}
