package warehouse

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// QuarantineOrphanFacts moves facts whose accession number has no matching
// filing into the orphaned relation. The rows are preserved, not dropped:
// orphans signal an incomplete upstream parse or fetch, and they rejoin the
// main table automatically once re-quarantined after the filing arrives.
func (w *Warehouse) QuarantineOrphanFacts(ctx context.Context) (int64, error) {
	for _, table := range []string{"filings", "xbrl_facts", "xbrl_facts_orphaned"} {
		exists, err := w.TableExists(ctx, table)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, nil
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: begin quarantine")
	}
	defer tx.Rollback()

	const where = `accession_number NOT IN (SELECT accession_number FROM filings)`

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO xbrl_facts_orphaned SELECT * FROM xbrl_facts WHERE `+where); err != nil {
		return 0, eris.Wrap(err, "warehouse: copy orphans")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM xbrl_facts WHERE `+where)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: delete orphans")
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: orphan rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "warehouse: commit quarantine")
	}

	if moved > 0 {
		zap.L().Warn("quarantined orphaned facts", zap.Int64("facts", moved))
	}
	return moved, nil
}

// RestoreOrphanFacts moves quarantined facts whose filing has since arrived
// back into the main facts table.
func (w *Warehouse) RestoreOrphanFacts(ctx context.Context) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: begin restore")
	}
	defer tx.Rollback()

	const where = `accession_number IN (SELECT accession_number FROM filings)`

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO xbrl_facts SELECT * FROM xbrl_facts_orphaned WHERE `+where); err != nil {
		return 0, eris.Wrap(err, "warehouse: copy restored orphans")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM xbrl_facts_orphaned WHERE `+where)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: delete restored orphans")
	}
	restored, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: restore rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "warehouse: commit restore")
	}
	return restored, nil
}
