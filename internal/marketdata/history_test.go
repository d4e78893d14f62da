package marketdata

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/domain"
	"github.com/aristath/backtest/pkg/logger"
)

func testLog() zerolog.Logger {
	return logger.New(logger.Config{Level: "error", Pretty: false})
}

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewHistoryStore(db, testLog())
	require.NoError(t, err)
	return store
}

func newTestCache(t *testing.T) *SeriesCache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache, err := NewSeriesCache(db, testLog())
	require.NoError(t, err)
	return cache
}

func date(value string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestHistoryStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)

	prices := []DailyPrice{
		{Date: "2024-01-02", Close: 101.5},
		{Date: "2024-01-03", Close: 102.0},
		{Date: "2024-01-04", Close: 100.75},
	}
	require.NoError(t, store.SavePrices("AAA", prices))

	got, err := store.GetDailyPrices("AAA", "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-01-02", got[0].Date)
	assert.InDelta(t, 101.5, got[0].Close, 1e-9)

	since, err := store.GetDailyPrices("AAA", "2024-01-03")
	require.NoError(t, err)
	assert.Len(t, since, 2)

	// upsert replaces on the same date
	require.NoError(t, store.SavePrices("AAA", []DailyPrice{{Date: "2024-01-03", Close: 99.0}}))
	updated, err := store.GetDailyPrices("AAA", "2024-01-03")
	require.NoError(t, err)
	assert.InDelta(t, 99.0, updated[0].Close, 1e-9)
}

func TestHistoryStore_RejectsNonPositiveClose(t *testing.T) {
	store := newTestStore(t)

	err := store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 0},
	})
	require.Error(t, err)

	// the whole batch rolls back
	got, err := store.GetDailyPrices("AAA", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetPricePath_AlignsAndFills(t *testing.T) {
	store := newTestStore(t)

	// disjoint edges: AAA missing the last date, BBB missing the first
	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 101},
		{Date: "2024-01-04", Close: 102},
	}))
	require.NoError(t, store.SavePrices("BBB", []DailyPrice{
		{Date: "2024-01-03", Close: 50},
		{Date: "2024-01-04", Close: 51},
		{Date: "2024-01-05", Close: 52},
	}))

	path, err := store.GetPricePath([]string{"AAA", "BBB"}, date("2024-01-02"), date("2024-01-05"), 2)
	require.NoError(t, err)

	require.Equal(t, 4, path.Len())
	// forward-fill carries AAA's last close into 01-05
	assert.InDelta(t, 102, path.Prices["AAA"][3], 1e-9)
	// back-fill seeds BBB's leading gap from its first close
	assert.InDelta(t, 50, path.Prices["BBB"][0], 1e-9)
	require.NoError(t, path.Validate())
}

func TestGetPricePath_WindowRestriction(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-01", Close: 99},
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 101},
		{Date: "2024-01-10", Close: 110},
	}))

	path, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)
	require.Equal(t, 2, path.Len())
	assert.InDelta(t, 100, path.Prices["AAA"][0], 1e-9)
	assert.InDelta(t, 101, path.Prices["AAA"][1], 1e-9)
}

func TestGetPricePath_InsufficientData(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 101},
	}))

	_, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData), "got %v", err)

	_, err = store.GetPricePath([]string{"MISSING"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData), "got %v", err)
}

func TestGetPricePath_ServesFromCache(t *testing.T) {
	store := newTestStore(t)
	store.SetCache(newTestCache(t))

	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 101},
	}))

	first, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)

	// wipe the backing table; the cached aligned path must still serve
	_, err = store.db.Exec(`DELETE FROM daily_prices`)
	require.NoError(t, err)

	second, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)
	require.Equal(t, first.Len(), second.Len())
	assert.InDelta(t, first.Prices["AAA"][1], second.Prices["AAA"][1], 1e-9)
}

func TestSavePrices_InvalidatesCachedPaths(t *testing.T) {
	store := newTestStore(t)
	store.SetCache(newTestCache(t))

	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: 101},
	}))
	require.NoError(t, store.SavePrices("BBB", []DailyPrice{
		{Date: "2024-01-02", Close: 50},
		{Date: "2024-01-03", Close: 51},
	}))

	first, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)
	assert.InDelta(t, 101, first.Prices["AAA"][1], 1e-9)

	other, err := store.GetPricePath([]string{"BBB"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)

	// a fresh import must not be masked by the cached aligned path
	require.NoError(t, store.SavePrices("AAA", []DailyPrice{
		{Date: "2024-01-03", Close: 120},
	}))

	second, err := store.GetPricePath([]string{"AAA"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)
	assert.InDelta(t, 120, second.Prices["AAA"][1], 1e-9)

	// entries for untouched symbols survive the invalidation
	_, err = store.db.Exec(`DELETE FROM daily_prices WHERE symbol = 'BBB'`)
	require.NoError(t, err)
	cached, err := store.GetPricePath([]string{"BBB"}, date("2024-01-02"), date("2024-01-03"), 2)
	require.NoError(t, err)
	assert.InDelta(t, other.Prices["BBB"][1], cached.Prices["BBB"][1], 1e-9)
}

func TestSeriesCache_TTL(t *testing.T) {
	cache := newTestCache(t)

	path := domain.PricePath{
		Timestamps: []time.Time{date("2024-01-02"), date("2024-01-03")},
		Prices:     map[string][]float64{"AAA": {100, 101}},
	}

	require.NoError(t, cache.Set("fresh", []string{"AAA"}, path, time.Hour))
	got, ok := cache.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, 2, got.Len())
	assert.InDelta(t, 101, got.Prices["AAA"][1], 1e-9)
	assert.True(t, got.Timestamps[0].Equal(path.Timestamps[0]))

	require.NoError(t, cache.Set("stale", []string{"AAA"}, path, -time.Hour))
	_, ok = cache.Get("stale")
	assert.False(t, ok)

	_, ok = cache.Get("never-stored")
	assert.False(t, ok)

	require.NoError(t, cache.Prune())
}

func TestSeriesCacheKey_OrderIndependent(t *testing.T) {
	start := date("2024-01-02")
	end := date("2024-06-28")

	a := seriesCacheKey([]string{"AAA", "BBB"}, start, end)
	b := seriesCacheKey([]string{"BBB", "AAA"}, start, end)
	assert.Equal(t, a, b)

	c := seriesCacheKey([]string{"AAA", "BBB"}, start, date("2024-06-29"))
	assert.NotEqual(t, a, c)
}

func TestFillMissing_UnfillableSeries(t *testing.T) {
	data := map[string][]float64{
		"EMPTY": {math.NaN(), math.NaN(), math.NaN()},
	}
	assert.Equal(t, 3, fillMissing(data))
}

func TestFillMissing_InteriorGap(t *testing.T) {
	data := map[string][]float64{
		"AAA": {100, math.NaN(), math.NaN(), 103},
	}
	assert.Equal(t, 0, fillMissing(data))
	assert.InDelta(t, 100, data["AAA"][1], 1e-9)
	assert.InDelta(t, 100, data["AAA"][2], 1e-9)
}
