package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SwapGuardError reports an aborted snapshot swap: the staged dataset was
// empty or smaller than the live table, so the live table was kept intact.
// This is a data-integrity signal, not a transient fault, and is never
// retried automatically.
type SwapGuardError struct {
	Table  string
	Staged int64
	Live   int64
}

func (e *SwapGuardError) Error() string {
	return fmt.Sprintf("swap guard: aborting replace of %s, staged %d rows < live %d", e.Table, e.Staged, e.Live)
}

// IsSwapGuard reports whether err is a swap-guard abort.
func IsSwapGuard(err error) bool {
	var sg *SwapGuardError
	return eris.As(err, &sg)
}

// Loader persists row batches into registered tables using the table's
// configured strategy. All mutation runs inside a single transaction; any
// failure rolls back and leaves the previous state untouched.
type Loader struct {
	w   *Warehouse
	log *zap.Logger
}

func NewLoader(w *Warehouse) *Loader {
	return &Loader{w: w, log: zap.L().Named("loader")}
}

// Load writes a batch of rows into the named table. Row values must match
// the registry's column order. fullRefresh forces the snapshot path even for
// incremental tables.
func (l *Loader) Load(ctx context.Context, table string, rows [][]any, fullRefresh bool) error {
	spec, err := Lookup(table)
	if err != nil {
		return err
	}
	if spec.Strategy == StrategyDirect {
		return eris.Errorf("loader: table %s is not batch-loaded", spec.Name)
	}
	for _, row := range rows {
		if len(row) != len(spec.Columns) {
			return eris.Errorf("loader: %s row has %d values, want %d", spec.Name, len(row), len(spec.Columns))
		}
	}

	if spec.Strategy == StrategyIncrementalUpsert && !fullRefresh {
		return l.upsert(ctx, spec, rows)
	}
	return l.snapshotSwap(ctx, spec, rows)
}

// snapshotSwap stages the full dataset and replaces the live table in one
// transaction. The guard keeps the live table whenever the staged data would
// shrink it, which is the signature of a silently-truncated upstream feed.
func (l *Loader) snapshotSwap(ctx context.Context, spec TableSpec, rows [][]any) error {
	staging := spec.Name + "_new"

	tx, err := l.w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "loader: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+staging); err != nil {
		return eris.Wrapf(err, "loader: drop stale staging %s", staging)
	}
	if _, err := tx.ExecContext(ctx, spec.CreateAs(staging)); err != nil {
		return eris.Wrapf(err, "loader: create staging %s", staging)
	}
	if err := insertRows(ctx, tx, staging, spec.Columns, rows); err != nil {
		return err
	}

	var staged int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+staging).Scan(&staged); err != nil {
		return eris.Wrapf(err, "loader: count staging %s", staging)
	}

	var live int64
	liveExists, err := tableExistsTx(ctx, tx, spec.Name)
	if err != nil {
		return err
	}
	if liveExists {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+spec.Name).Scan(&live); err != nil {
			return eris.Wrapf(err, "loader: count live %s", spec.Name)
		}
	}

	if live > 0 && staged < live {
		l.log.Error("swap guard tripped, keeping live table",
			zap.String("table", spec.Name),
			zap.Int64("staged", staged),
			zap.Int64("live", live))
		return &SwapGuardError{Table: spec.Name, Staged: staged, Live: live}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+spec.Name); err != nil {
		return eris.Wrapf(err, "loader: drop live %s", spec.Name)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+staging+` RENAME TO `+spec.Name); err != nil {
		return eris.Wrapf(err, "loader: rename %s", staging)
	}
	// The rename dropped the live table's indexes with it. Rebuilding inside
	// the transaction keeps swap-plus-index atomic: a failed index rolls the
	// whole swap back rather than committing an unindexed table.
	for _, idx := range indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return eris.Wrap(err, "loader: recreate index")
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "loader: commit swap %s", spec.Name)
	}

	l.log.Info("snapshot swap complete",
		zap.String("table", spec.Name),
		zap.Int64("rows", staged))
	return nil
}

// upsert merges a batch into the live table with insert-or-replace
// semantics. A pre-existing table without the expected primary key is
// migrated in place first, since the merge depends on conflict targets.
func (l *Loader) upsert(ctx context.Context, spec TableSpec, rows [][]any) error {
	staging := spec.Name + "_batch"

	tx, err := l.w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "loader: begin")
	}
	defer tx.Rollback()

	liveExists, err := tableExistsTx(ctx, tx, spec.Name)
	if err != nil {
		return err
	}
	if !liveExists {
		if _, err := tx.ExecContext(ctx, spec.CreateSQL); err != nil {
			return eris.Wrapf(err, "loader: create %s", spec.Name)
		}
	} else if err := l.ensurePrimaryKey(ctx, tx, spec); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+staging); err != nil {
		return eris.Wrapf(err, "loader: drop stale staging %s", staging)
	}
	if _, err := tx.ExecContext(ctx, spec.CreateAs(staging)); err != nil {
		return eris.Wrapf(err, "loader: create staging %s", staging)
	}
	if err := insertRows(ctx, tx, staging, spec.Columns, rows); err != nil {
		return err
	}

	var staged int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+staging).Scan(&staged); err != nil {
		return eris.Wrapf(err, "loader: count staging %s", staging)
	}
	if staged == 0 {
		l.log.Warn("empty batch, skipping merge", zap.String("table", spec.Name))
	} else {
		cols := strings.Join(spec.Columns, ", ")
		merge := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) SELECT %s FROM %s`,
			spec.Name, cols, cols, staging)
		if _, err := tx.ExecContext(ctx, merge); err != nil {
			return eris.Wrapf(err, "loader: merge into %s", spec.Name)
		}
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE `+staging); err != nil {
		return eris.Wrapf(err, "loader: drop staging %s", staging)
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "loader: commit upsert %s", spec.Name)
	}

	l.log.Info("incremental upsert complete",
		zap.String("table", spec.Name),
		zap.Int64("rows", staged))
	return nil
}

// ensurePrimaryKey migrates a legacy table that predates its key constraint:
// back up the rows, recreate with the registered schema, restore through an
// insert-or-replace so duplicate keys collapse deterministically.
func (l *Loader) ensurePrimaryKey(ctx context.Context, tx *sql.Tx, spec TableSpec) error {
	var pkCols int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM pragma_table_info('%s') WHERE pk > 0`, spec.Name)
	if err := tx.QueryRowContext(ctx, query).Scan(&pkCols); err != nil {
		return eris.Wrapf(err, "loader: inspect key of %s", spec.Name)
	}
	if pkCols > 0 {
		return nil
	}

	l.log.Warn("table lacks primary key, migrating in place", zap.String("table", spec.Name))

	backup := spec.Name + "_backup_for_pk"
	cols := strings.Join(spec.Columns, ", ")
	steps := []string{
		`DROP TABLE IF EXISTS ` + backup,
		fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, backup, spec.Name),
		`DROP TABLE ` + spec.Name,
		spec.CreateSQL,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) SELECT %s FROM %s`, spec.Name, cols, cols, backup),
		`DROP TABLE ` + backup,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			return eris.Wrapf(err, "loader: key migration of %s", spec.Name)
		}
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		table, strings.Join(columns, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "loader: prepare insert into %s", table)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "loader: insert into %s", table)
		}
	}
	return nil
}

func tableExistsTx(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "loader: check table %s", name)
	}
	return n > 0, nil
}
