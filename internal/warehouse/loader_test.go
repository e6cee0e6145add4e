package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barRow(ticker, date string, close float64) []any {
	return []any{ticker, date, close - 1, close + 1, close - 2, close, close, int64(1000)}
}

func macroRow(series, date string, value float64) []any {
	return []any{series, date, value}
}

func TestSnapshotSwapReplacesLiveTable(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "macro_economic_data", [][]any{
		macroRow("GDP", "2025-01-01", 27000),
		macroRow("GDP", "2025-04-01", 27300),
	}, false))

	require.NoError(t, loader.Load(ctx, "macro_economic_data", [][]any{
		macroRow("GDP", "2025-01-01", 27100),
		macroRow("GDP", "2025-04-01", 27300),
		macroRow("GDP", "2025-07-01", 27500),
	}, false))

	n, err := w.RowCount(ctx, "macro_economic_data")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var value float64
	require.NoError(t, w.DB().QueryRowContext(ctx,
		`SELECT value FROM macro_economic_data WHERE series_id = 'GDP' AND date = '2025-01-01'`,
	).Scan(&value))
	assert.Equal(t, 27100.0, value)
}

func TestSwapGuardKeepsLiveTableOnShrink(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "macro_economic_data", [][]any{
		macroRow("UNRATE", "2025-01-01", 3.9),
		macroRow("UNRATE", "2025-02-01", 4.0),
		macroRow("UNRATE", "2025-03-01", 4.1),
	}, false))

	err := loader.Load(ctx, "macro_economic_data", [][]any{
		macroRow("UNRATE", "2025-03-01", 4.1),
	}, false)
	require.Error(t, err)
	assert.True(t, IsSwapGuard(err))

	n, err := w.RowCount(ctx, "macro_economic_data")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "live table must be untouched after a guard abort")
}

func TestSwapGuardRejectsEmptyStagingOverLiveData(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "market_risk_factors", [][]any{
		{"2025-01-02", "ff5_daily", 0.5, 0.1, -0.2, 0.0, 0.1, 0.02},
	}, false))

	err := loader.Load(ctx, "market_risk_factors", nil, false)
	require.Error(t, err)
	assert.True(t, IsSwapGuard(err))

	n, err := w.RowCount(ctx, "market_risk_factors")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSnapshotSwapAllowsEmptyInitialLoad(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "market_risk_factors", nil, false))

	n, err := w.RowCount(ctx, "market_risk_factors")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotSwapRebuildsIndexes(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "tickers", [][]any{
		{"0000320193", "AAPL", "Nasdaq", "submissions.json"},
	}, false))
	require.NoError(t, loader.Load(ctx, "tickers", [][]any{
		{"0000320193", "AAPL", "Nasdaq", "submissions.json"},
		{"0000789019", "MSFT", "Nasdaq", "submissions.json"},
	}, false))

	var n int
	require.NoError(t, w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_tickers_ticker'`,
	).Scan(&n))
	assert.Equal(t, 1, n, "the swapped-in table must carry its index")
}

func TestUpsertIsIdempotent(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	batch := [][]any{
		barRow("AAPL", "2025-01-02", 185),
		barRow("AAPL", "2025-01-03", 186),
		barRow("MSFT", "2025-01-02", 410),
	}
	require.NoError(t, loader.Load(ctx, "stock_history", batch, false))
	require.NoError(t, loader.Load(ctx, "stock_history", batch, false))

	n, err := w.RowCount(ctx, "stock_history")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestUpsertMergesOverlappingRowsAndKeepsHistory(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("AAPL", "2025-01-02", 185),
		barRow("AAPL", "2025-01-03", 186),
	}, false))

	// Overlapping day corrected, one new day appended.
	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("AAPL", "2025-01-03", 187),
		barRow("AAPL", "2025-01-06", 188),
	}, false))

	n, err := w.RowCount(ctx, "stock_history")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var close float64
	require.NoError(t, w.DB().QueryRowContext(ctx,
		`SELECT close FROM stock_history WHERE ticker = 'AAPL' AND date = '2025-01-03'`,
	).Scan(&close))
	assert.Equal(t, 187.0, close)
}

func TestUpsertEmptyBatchIsANoOp(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("AAPL", "2025-01-02", 185),
	}, false))
	require.NoError(t, loader.Load(ctx, "stock_history", nil, false))

	n, err := w.RowCount(ctx, "stock_history")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertMigratesLegacyTableWithoutPrimaryKey(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	// Simulate a legacy schema: same columns, no key, duplicate rows.
	_, err := w.DB().ExecContext(ctx, `DROP TABLE stock_history`)
	require.NoError(t, err)
	_, err = w.DB().ExecContext(ctx, `CREATE TABLE stock_history (
		ticker TEXT, date TEXT, open REAL, high REAL, low REAL, close REAL,
		adj_close REAL, volume INTEGER
	)`)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = w.DB().ExecContext(ctx,
			`INSERT INTO stock_history VALUES ('AAPL', '2025-01-02', 184, 186, 183, 185, 185, 1000)`)
		require.NoError(t, err)
	}

	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("AAPL", "2025-01-03", 186),
	}, false))

	// Duplicates collapsed by the key migration, new row merged.
	n, err := w.RowCount(ctx, "stock_history")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var pkCols int
	require.NoError(t, w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('stock_history') WHERE pk > 0`,
	).Scan(&pkCols))
	assert.Equal(t, 2, pkCols)
}

func TestFullRefreshForcesSnapshotPath(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("AAPL", "2025-01-02", 185),
	}, false))

	// Equal-size staging passes the guard and replaces the table wholesale.
	require.NoError(t, loader.Load(ctx, "stock_history", [][]any{
		barRow("MSFT", "2025-01-02", 410),
	}, true))

	var ticker string
	require.NoError(t, w.DB().QueryRowContext(ctx,
		`SELECT ticker FROM stock_history`).Scan(&ticker))
	assert.Equal(t, "MSFT", ticker)
}

func TestLoadRejectsDirectTables(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)

	err := loader.Load(context.Background(), "untrackable_tickers", nil, false)
	assert.Error(t, err)
}

func TestLoadRejectsColumnMismatch(t *testing.T) {
	w := newTestWarehouse(t)
	loader := NewLoader(w)

	err := loader.Load(context.Background(), "stock_history", [][]any{{"AAPL"}}, false)
	assert.Error(t, err)
}
