// Package batchfile reads and writes the columnar batch files passed
// between pipeline stages. Each logical table owns a directory; gatherers
// append new files and never mutate written ones, so a load stage can
// resume by processing only files it has not seen.
package batchfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
)

const stampLayout = "20060102T150405"

// BatchName builds a chronologically sortable file name for a new batch.
func BatchName(table string, now time.Time) string {
	return fmt.Sprintf("%s_batch_%s_%s.parquet",
		table, now.UTC().Format(stampLayout), uuid.NewString()[:8])
}

// WriteBatch writes rows as a new batch file under dir/table/ and returns
// the file path. Empty batches produce no file.
func WriteBatch[T any](dir, table string, rows []T, now time.Time) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	tableDir := filepath.Join(dir, table)
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "batchfile: create dir %s", tableDir)
	}
	path := filepath.Join(tableDir, BatchName(table, now))
	if err := parquet.WriteFile(path, rows); err != nil {
		return "", eris.Wrapf(err, "batchfile: write %s", path)
	}
	return path, nil
}

// ReadBatch reads one batch file back into rows.
func ReadBatch[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, eris.Wrapf(err, "batchfile: read %s", path)
	}
	return rows, nil
}

// ListBatches returns the batch files for a table in chronological order.
// A missing table directory is an empty listing, not an error.
func ListBatches(dir, table string) ([]string, error) {
	pattern := filepath.Join(dir, table, "*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "batchfile: glob %s", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// RemoveBatch deletes a loaded batch file.
func RemoveBatch(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "batchfile: remove %s", path)
	}
	return nil
}
