// Package cleanup reclaims disk space from finished pipeline stages:
// batch files already merged into the warehouse and stale bulk downloads.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// Stats summarizes one cleanup pass.
type Stats struct {
	BatchesRemoved   int
	BatchesKept      int
	DownloadsRemoved int
}

// Cleaner removes spent artifacts. It only ever deletes a batch file the
// processed-file log proves was merged; unprocessed files are left alone.
type Cleaner struct {
	w   *warehouse.Warehouse
	dir string
	log *zap.Logger
	now func() time.Time
}

func New(w *warehouse.Warehouse, parquetDir string) *Cleaner {
	return &Cleaner{
		w:   w,
		dir: parquetDir,
		log: zap.L().Named("cleanup"),
		now: time.Now,
	}
}

// RemoveLoadedBatches deletes batch files recorded as processed, across
// every batch-loaded table.
func (c *Cleaner) RemoveLoadedBatches(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, spec := range warehouse.BatchTables() {
		files, err := batchfile.ListBatches(c.dir, spec.Name)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		processed, err := c.w.ProcessedFiles(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if _, done := processed[filepath.Base(file)]; !done {
				stats.BatchesKept++
				continue
			}
			if err := batchfile.RemoveBatch(file); err != nil {
				return nil, err
			}
			stats.BatchesRemoved++
		}
	}
	c.log.Info("removed loaded batch files",
		zap.Int("removed", stats.BatchesRemoved),
		zap.Int("kept", stats.BatchesKept))
	return stats, nil
}

// RemoveStaleDownloads deletes files under downloadDir older than maxAgeDays.
// Extracted JSON trees count as downloads too; directories themselves are
// kept, only files go.
func (c *Cleaner) RemoveStaleDownloads(downloadDir string, maxAgeDays int) (*Stats, error) {
	stats := &Stats{}
	if maxAgeDays <= 0 {
		return stats, nil
	}
	cutoff := c.now().AddDate(0, 0, -maxAgeDays)

	err := filepath.WalkDir(downloadDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		stats.DownloadsRemoved++
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "cleanup: walk %s", downloadDir)
	}

	c.log.Info("removed stale downloads",
		zap.String("dir", downloadDir),
		zap.Int("removed", stats.DownloadsRemoved))
	return stats, nil
}
