package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCleaner(t *testing.T) (*Cleaner, *warehouse.Warehouse, string) {
	t.Helper()
	w, err := warehouse.Open(config.WarehouseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.Migrate(context.Background()))

	dir := t.TempDir()
	c := New(w, dir)
	c.now = func() time.Time { return testNow }
	return c, w, dir
}

func TestRemoveLoadedBatchesKeepsUnprocessed(t *testing.T) {
	c, w, dir := newTestCleaner(t)
	ctx := context.Background()

	rows := []batchfile.MacroRow{{SeriesID: "GDP", Date: "2025-01-01", Value: 1}}
	loaded, err := batchfile.WriteBatch(dir, "macro_economic_data", rows, testNow)
	require.NoError(t, err)
	pending, err := batchfile.WriteBatch(dir, "macro_economic_data", rows, testNow.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, w.MarkFileProcessed(ctx, "macro_economic_data", filepath.Base(loaded), testNow))

	stats, err := c.RemoveLoadedBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BatchesRemoved)
	assert.Equal(t, 1, stats.BatchesKept)

	_, err = os.Stat(loaded)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(pending)
	assert.NoError(t, err)
}

func TestRemoveLoadedBatchesEmptyDirs(t *testing.T) {
	c, _, _ := newTestCleaner(t)
	stats, err := c.RemoveLoadedBatches(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.BatchesRemoved)
	assert.Zero(t, stats.BatchesKept)
}

func TestRemoveStaleDownloads(t *testing.T) {
	c, _, _ := newTestCleaner(t)
	downloads := t.TempDir()

	stale := filepath.Join(downloads, "submissions.zip")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := testNow.AddDate(0, 0, -45)
	require.NoError(t, os.Chtimes(stale, old, old))

	recent := filepath.Join(downloads, "companyfacts.zip")
	require.NoError(t, os.WriteFile(recent, []byte("new"), 0o644))
	fresh := testNow.AddDate(0, 0, -2)
	require.NoError(t, os.Chtimes(recent, fresh, fresh))

	stats, err := c.RemoveStaleDownloads(downloads, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DownloadsRemoved)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestRemoveStaleDownloadsMissingDir(t *testing.T) {
	c, _, _ := newTestCleaner(t)
	stats, err := c.RemoveStaleDownloads(filepath.Join(t.TempDir(), "nope"), 30)
	require.NoError(t, err)
	assert.Zero(t, stats.DownloadsRemoved)
}

func TestRemoveStaleDownloadsDisabled(t *testing.T) {
	c, _, _ := newTestCleaner(t)
	downloads := t.TempDir()
	f := filepath.Join(downloads, "archive.zip")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	ancient := testNow.AddDate(-1, 0, 0)
	require.NoError(t, os.Chtimes(f, ancient, ancient))

	stats, err := c.RemoveStaleDownloads(downloads, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.DownloadsRemoved)
	_, err = os.Stat(f)
	assert.NoError(t, err)
}
