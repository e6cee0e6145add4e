package backlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) (*Scorer, *warehouse.Warehouse) {
	t.Helper()
	w, err := warehouse.Open(config.WarehouseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.Migrate(context.Background()))

	s := NewScorer(w, config.FreshnessConfig{StaleDays: 7, MinRecords: 5}, 5)
	s.now = func() time.Time { return testNow }
	return s, w
}

// seedBars inserts n daily bars for a ticker ending on the given date.
func seedBars(t *testing.T, w *warehouse.Warehouse, ticker string, lastDate time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d := lastDate.AddDate(0, 0, -i).Format("2006-01-02")
		_, err := w.DB().ExecContext(context.Background(),
			`INSERT OR REPLACE INTO stock_history (ticker, date, close, volume) VALUES (?, ?, 100, 1000)`,
			ticker, d)
		require.NoError(t, err)
	}
}

func seedFacts(t *testing.T, w *warehouse.Warehouse, ticker, cik string, tags []string) {
	t.Helper()
	ctx := context.Background()
	_, err := w.DB().ExecContext(ctx,
		`INSERT OR REPLACE INTO tickers (cik, ticker, exchange, source) VALUES (?, ?, 'Nasdaq', 'sec')`,
		cik, ticker)
	require.NoError(t, err)
	for i, tag := range tags {
		_, err := w.DB().ExecContext(ctx,
			`INSERT OR REPLACE INTO xbrl_facts (cik, accession_number, taxonomy, tag_name, unit,
			 period_end_date, value_numeric, form, frame)
			 VALUES (?, ?, 'us-gaap', ?, 'USD', '2024-12-31', 1, '10-K', '')`,
			cik, fmt.Sprintf("acc-%s-%d", cik, i), tag)
		require.NoError(t, err)
	}
}

func TestStockBacklogConcaveNeedOrdering(t *testing.T) {
	s, w := newTestScorer(t)
	yesterday := testNow.AddDate(0, 0, -1)

	// Identical filing metrics (none), history varies.
	seedBars(t, w, "STALE", testNow.AddDate(0, 0, -30), 6)
	seedBars(t, w, "SHORT", yesterday, 3)
	seedBars(t, w, "FRESH", yesterday, 6)
	// NODATA has no rows at all.

	weights, err := ParseWeights("", StockProfile)
	require.NoError(t, err)

	entries, err := s.BuildStock(context.Background(),
		[]string{"FRESH", "SHORT", "STALE", "NODATA"}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	order := []string{entries[0].Ticker, entries[1].Ticker, entries[2].Ticker, entries[3].Ticker}
	assert.Equal(t, []string{"NODATA", "STALE", "SHORT", "FRESH"}, order)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, needNoHistory, entries[0].NeedScore)
	assert.Equal(t, -1, entries[0].StalenessDays)
	assert.Equal(t, 30, entries[1].StalenessDays)
}

func TestStockBacklogScoreScalingInvariance(t *testing.T) {
	s, w := newTestScorer(t)
	seedBars(t, w, "AAA", testNow.AddDate(0, 0, -20), 4)
	seedFacts(t, w, "BBB", "0000000001", []string{"Assets", "Revenues", "NetIncomeLoss"})

	tickers := []string{"AAA", "BBB", "CCC"}

	w1, err := ParseWeights("xbrl_richness=1,key_metrics=1,stock_data_need=2,filing_activity=1", StockProfile)
	require.NoError(t, err)
	w2, err := ParseWeights("xbrl_richness=5,key_metrics=5,stock_data_need=10,filing_activity=5", StockProfile)
	require.NoError(t, err)

	a, err := s.BuildStock(context.Background(), tickers, w1)
	require.NoError(t, err)
	b, err := s.BuildStock(context.Background(), tickers, w2)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Ticker, b[i].Ticker)
		assert.InDelta(t, a[i].Score, b[i].Score, 1e-9)
	}
}

func TestStockBacklogSuggestedRanges(t *testing.T) {
	s, w := newTestScorer(t)
	last := testNow.AddDate(0, 0, -30)
	seedBars(t, w, "STALE", last, 6)

	weights, err := ParseWeights("", StockProfile)
	require.NoError(t, err)

	entries, err := s.BuildStock(context.Background(), []string{"STALE", "NODATA"}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byTicker := map[string]int{}
	for i, e := range entries {
		byTicker[e.Ticker] = i
	}

	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	stale := entries[byTicker["STALE"]]
	require.NotNil(t, stale.SuggestedStart)
	// Resume the day after the last stored bar.
	assert.Equal(t, time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC), *stale.SuggestedStart)
	assert.Equal(t, today.AddDate(0, 0, -1), *stale.SuggestedEnd)

	cold := entries[byTicker["NODATA"]]
	require.NotNil(t, cold.SuggestedStart)
	assert.Equal(t, today.AddDate(-5, 0, 0), *cold.SuggestedStart)
}

func TestStockBacklogXBRLMetrics(t *testing.T) {
	s, w := newTestScorer(t)
	seedFacts(t, w, "RICH", "0000000002", []string{
		"Assets", "AssetsCurrent", "Liabilities", "Revenues", "NetIncomeLoss", "CustomTagOne",
	})
	seedFacts(t, w, "POOR", "0000000003", []string{"CustomTagOne"})

	weights, err := ParseWeights("", StockProfile)
	require.NoError(t, err)

	entries, err := s.BuildStock(context.Background(), []string{"POOR", "RICH"}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "RICH", entries[0].Ticker)
	assert.Equal(t, 6, entries[0].UniqueTagCount)
	// Assets, Liabilities, Revenue, NetIncome match by substring.
	assert.Equal(t, 4, entries[0].KeyMetricCount)
	assert.Zero(t, entries[1].KeyMetricCount)
}

func TestInfoBacklogExchangePriority(t *testing.T) {
	s, w := newTestScorer(t)
	ctx := context.Background()

	for ticker, exchange := range map[string]string{"MAJOR": "XNAS", "MINOR": "OTCM"} {
		_, err := w.DB().ExecContext(ctx,
			`INSERT INTO updated_ticker_info (ticker, primary_exchange, fetch_timestamp) VALUES (?, ?, ?)`,
			ticker, exchange, testNow.Format(time.RFC3339))
		require.NoError(t, err)
	}

	weights, err := ParseWeights("exchange_priority=1,xbrl_richness=0,key_metrics=0,has_stock_data=0,filing_activity=0", InfoProfile)
	require.NoError(t, err)

	entries, err := s.BuildInfo(ctx, []string{"MINOR", "MAJOR", "UNKNOWN"}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "MAJOR", entries[0].Ticker)
	assert.Equal(t, majorExchangeTier, entries[0].ExchangeTier)
	assert.Equal(t, "MINOR", entries[1].Ticker)
	assert.Equal(t, otherExchangeTier, entries[1].ExchangeTier)
	assert.Zero(t, entries[2].ExchangeTier)
}

func TestGeneratePersistsRankedSet(t *testing.T) {
	s, w := newTestScorer(t)
	ctx := context.Background()
	seedBars(t, w, "AAA", testNow.AddDate(0, 0, -1), 6)

	weights, err := ParseWeights("", StockProfile)
	require.NoError(t, err)

	entries, err := s.Generate(ctx, StockProfile, []string{"AAA", "BBB"}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	stored, err := w.Backlog(ctx, "stock_backlog", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "BBB", stored[0].Ticker, "cold-start ticker must rank first")
}

func TestGenerateEmptyCandidates(t *testing.T) {
	s, _ := newTestScorer(t)
	weights, err := ParseWeights("", StockProfile)
	require.NoError(t, err)

	entries, err := s.Generate(context.Background(), StockProfile, nil, weights)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
