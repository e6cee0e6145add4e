package warehouse

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/model"
)

// Backlog tables are derived data, recomputed wholesale each prioritization
// run. The full ranked set is persisted, not just the head, together with
// the weights used, so a later reader can audit why a ticker ranked where
// it did.

const dateOnly = "2006-01-02"

// ReplaceBacklog drops and recreates a backlog table with a freshly ranked
// entry set. Entries must already be ranked; they are written as-is.
func (w *Warehouse) ReplaceBacklog(ctx context.Context, table string, entries []model.BacklogEntry, weightsJSON string, now time.Time) error {
	spec, err := Lookup(table)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(spec.Name, "_backlog") {
		return eris.Errorf("warehouse: %s is not a backlog table", spec.Name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "warehouse: begin backlog replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+spec.Name); err != nil {
		return eris.Wrapf(err, "warehouse: drop %s", spec.Name)
	}
	if _, err := tx.ExecContext(ctx, spec.CreateSQL); err != nil {
		return eris.Wrapf(err, "warehouse: recreate %s", spec.Name)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+spec.Name+` (
		ticker, rank, score, unique_tag_count, key_metric_count,
		recent_filings, need_score, staleness_days, record_count,
		exchange_tier, suggested_start, suggested_end, generated_at, weights_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrapf(err, "warehouse: prepare backlog insert")
	}
	defer stmt.Close()

	stamp := now.UTC().Format(time.RFC3339)
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.Ticker, e.Rank, e.Score, e.UniqueTagCount, e.KeyMetricCount,
			e.RecentFilings, e.NeedScore, e.StalenessDays, e.RecordCount,
			e.ExchangeTier, dateOrNil(e.SuggestedStart), dateOrNil(e.SuggestedEnd),
			stamp, weightsJSON,
		); err != nil {
			return eris.Wrapf(err, "warehouse: insert backlog row %s", e.Ticker)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "warehouse: commit backlog %s", spec.Name)
	}

	zap.L().Info("backlog replaced",
		zap.String("table", spec.Name),
		zap.Int("entries", len(entries)))
	return nil
}

// Backlog reads a ranked backlog back in rank order. limit <= 0 means all.
func (w *Warehouse) Backlog(ctx context.Context, table string, limit int) ([]model.BacklogEntry, error) {
	spec, err := Lookup(table)
	if err != nil {
		return nil, err
	}
	exists, err := w.TableExists(ctx, spec.Name)
	if err != nil || !exists {
		return nil, err
	}

	query := `SELECT ticker, rank, score, unique_tag_count, key_metric_count,
		recent_filings, need_score, staleness_days, record_count, exchange_tier,
		suggested_start, suggested_end FROM ` + spec.Name + ` ORDER BY rank`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: query backlog %s", spec.Name)
	}
	defer rows.Close()

	var out []model.BacklogEntry
	for rows.Next() {
		var e model.BacklogEntry
		var start, end sql.NullString
		if err := rows.Scan(&e.Ticker, &e.Rank, &e.Score, &e.UniqueTagCount,
			&e.KeyMetricCount, &e.RecentFilings, &e.NeedScore, &e.StalenessDays,
			&e.RecordCount, &e.ExchangeTier, &start, &end); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan backlog row")
		}
		if e.SuggestedStart, err = parseDateOrNil(start); err != nil {
			return nil, err
		}
		if e.SuggestedEnd, err = parseDateOrNil(end); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate backlog")
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateOnly)
}

func parseDateOrNil(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateOnly, s.String)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: bad date %q", s.String)
	}
	return &t, nil
}
