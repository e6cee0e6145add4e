package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/edgarsync/internal/config"
)

func newTestWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(config.WarehouseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.Migrate(context.Background()))
	return w
}

func TestMigrateCreatesAllRegisteredTables(t *testing.T) {
	w := newTestWarehouse(t)
	ctx := context.Background()

	for _, spec := range Tables() {
		exists, err := w.TableExists(ctx, spec.Name)
		require.NoError(t, err)
		assert.True(t, exists, spec.Name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	w := newTestWarehouse(t)
	require.NoError(t, w.Migrate(context.Background()))
}

func TestRowCountMissingTableIsZero(t *testing.T) {
	w := newTestWarehouse(t)
	ctx := context.Background()

	_, err := w.DB().ExecContext(ctx, `DROP TABLE stock_backlog`)
	require.NoError(t, err)

	n, err := w.RowCount(ctx, "stock_backlog")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRowCountUnknownTable(t *testing.T) {
	w := newTestWarehouse(t)
	_, err := w.RowCount(context.Background(), "no_such_table")
	assert.Error(t, err)
}

func TestLookupUnknownTable(t *testing.T) {
	_, err := Lookup("definitely_not_registered")
	assert.Error(t, err)
}

func TestCreateAsRetargetsTableName(t *testing.T) {
	spec, err := Lookup("stock_history")
	require.NoError(t, err)

	sql := spec.CreateAs("stock_history_batch")
	assert.Contains(t, sql, "stock_history_batch")
	assert.Contains(t, sql, "PRIMARY KEY (ticker, date)")
}
