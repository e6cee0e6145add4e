package warehouse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// The processed-file log makes batch-file ingestion idempotent: a load run
// skips files it has already merged, so re-running a stage never duplicates
// work or data.

// ProcessedFiles returns the file names already loaded for a table.
func (w *Warehouse) ProcessedFiles(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT file_name FROM processed_file_log WHERE table_name = ?`, table)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: query processed files for %s", table)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan processed file")
		}
		out[name] = struct{}{}
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate processed files")
}

// MarkFileProcessed records that a batch file has been merged into a table.
func (w *Warehouse) MarkFileProcessed(ctx context.Context, table, file string, now time.Time) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_file_log (table_name, file_name, processed_at) VALUES (?, ?, ?)`,
		table, file, now.UTC().Format(time.RFC3339))
	return eris.Wrapf(err, "warehouse: mark %s processed for %s", file, table)
}

// ForgetProcessedFiles drops the log entries for a table, forcing the next
// load to re-read every batch file. Used by full-refresh loads.
func (w *Warehouse) ForgetProcessedFiles(ctx context.Context, table string) error {
	_, err := w.db.ExecContext(ctx,
		`DELETE FROM processed_file_log WHERE table_name = ?`, table)
	return eris.Wrapf(err, "warehouse: forget processed files for %s", table)
}
