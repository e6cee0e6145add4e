// Package warehouse is the embedded analytical database layer: schema
// registry, load strategies, the untrackable-ticker ledger, the processed
// batch-file log, and the coverage queries the fetch planner runs on.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/quantlake/edgarsync/internal/config"
)

// Warehouse wraps the single database file every pipeline stage reads from
// and writes to. Writers must not run concurrently; readers may.
type Warehouse struct {
	db *sql.DB
}

// Open opens the warehouse file read-write and applies session pragmas.
func Open(cfg config.WarehouseConfig) (*Warehouse, error) {
	return open(cfg, cfg.Path)
}

// OpenReadOnly opens the warehouse for concurrent read-only access.
func OpenReadOnly(cfg config.WarehouseConfig) (*Warehouse, error) {
	return open(cfg, "file:"+cfg.Path+"?mode=ro")
}

func open(cfg config.WarehouseConfig, dsn string) (*Warehouse, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: open")
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy),
		"PRAGMA synchronous=NORMAL",
	}
	if cfg.CacheSizeMB > 0 {
		// Negative cache_size is KiB in SQLite.
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size=%d", -cfg.CacheSizeMB*1024))
	}
	if cfg.TempDir != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA temp_store_directory='%s'", cfg.TempDir))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "warehouse: exec %s", pragma)
		}
	}

	// A single writer connection keeps write transactions serialized.
	db.SetMaxOpenConns(1)

	return &Warehouse{db: db}, nil
}

// Migrate creates every registered table and index that does not yet exist.
func (w *Warehouse) Migrate(ctx context.Context) error {
	for _, spec := range Tables() {
		if _, err := w.db.ExecContext(ctx, spec.CreateSQL); err != nil {
			return eris.Wrapf(err, "warehouse: create table %s", spec.Name)
		}
	}
	for _, idx := range indexes {
		if _, err := w.db.ExecContext(ctx, idx); err != nil {
			return eris.Wrap(err, "warehouse: create index")
		}
	}
	return nil
}

// DB exposes the underlying handle for package-internal query helpers.
func (w *Warehouse) DB() *sql.DB {
	return w.db
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

// TableExists reports whether a table is present in the database.
func (w *Warehouse) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "warehouse: check table %s", name)
	}
	return n > 0, nil
}

// RowCount returns the number of rows in a registered table, or zero when
// the table does not exist yet.
func (w *Warehouse) RowCount(ctx context.Context, name string) (int64, error) {
	spec, err := Lookup(name)
	if err != nil {
		return 0, err
	}
	exists, err := w.TableExists(ctx, spec.Name)
	if err != nil || !exists {
		return 0, err
	}
	var n int64
	err = w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+spec.Name).Scan(&n)
	return n, eris.Wrapf(err, "warehouse: count %s", spec.Name)
}
