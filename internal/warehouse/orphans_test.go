package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertFact(t *testing.T, w *Warehouse, table, cik, accession, tag string) {
	t.Helper()
	_, err := w.DB().ExecContext(context.Background(),
		`INSERT OR REPLACE INTO `+table+` (cik, accession_number, taxonomy, tag_name, unit,
		 period_end_date, value_numeric, form, frame)
		 VALUES (?, ?, 'us-gaap', ?, 'USD', '2024-12-31', 100, '10-K', '')`,
		cik, accession, tag)
	require.NoError(t, err)
}

func insertFiling(t *testing.T, w *Warehouse, cik, accession string) {
	t.Helper()
	_, err := w.DB().ExecContext(context.Background(),
		`INSERT OR REPLACE INTO filings (accession_number, cik, form) VALUES (?, ?, '10-K')`,
		accession, cik)
	require.NoError(t, err)
}

func TestQuarantineMovesOrphansAndKeepsLinkedFacts(t *testing.T) {
	w := newTestWarehouse(t)
	ctx := context.Background()

	insertFiling(t, w, "0000320193", "acc-1")
	insertFact(t, w, "xbrl_facts", "0000320193", "acc-1", "Assets")
	insertFact(t, w, "xbrl_facts", "0000320193", "acc-missing", "Revenues")

	moved, err := w.QuarantineOrphanFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	facts, err := w.RowCount(ctx, "xbrl_facts")
	require.NoError(t, err)
	assert.Equal(t, int64(1), facts)

	orphans, err := w.RowCount(ctx, "xbrl_facts_orphaned")
	require.NoError(t, err)
	assert.Equal(t, int64(1), orphans)
}

func TestRestoreOrphansAfterFilingArrives(t *testing.T) {
	w := newTestWarehouse(t)
	ctx := context.Background()

	insertFact(t, w, "xbrl_facts", "0000320193", "acc-late", "Assets")

	moved, err := w.QuarantineOrphanFacts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), moved)

	insertFiling(t, w, "0000320193", "acc-late")

	restored, err := w.RestoreOrphanFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	facts, err := w.RowCount(ctx, "xbrl_facts")
	require.NoError(t, err)
	assert.Equal(t, int64(1), facts)

	orphans, err := w.RowCount(ctx, "xbrl_facts_orphaned")
	require.NoError(t, err)
	assert.Zero(t, orphans)
}

func TestQuarantineNoOrphans(t *testing.T) {
	w := newTestWarehouse(t)

	moved, err := w.QuarantineOrphanFacts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)
}
