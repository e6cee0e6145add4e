package warehouse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/model"
)

// The untrackable ledger is shared by every gatherer hitting the same
// provider: a ticker the provider has permanently rejected for price bars is
// equally dead for detail lookups, so one subsystem's mark suppresses all.

// MarkUntrackable records a permanent provider failure for a ticker. The
// upsert is idempotent; a repeat failure just refreshes the timestamp.
func (w *Warehouse) MarkUntrackable(ctx context.Context, ticker, reason string, now time.Time) error {
	ticker = model.NormalizeTicker(ticker)
	_, err := w.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO untrackable_tickers (ticker, reason, last_failed_timestamp) VALUES (?, ?, ?)`,
		ticker, reason, now.UTC().Format(time.RFC3339))
	if err != nil {
		return eris.Wrapf(err, "warehouse: mark untrackable %s", ticker)
	}
	zap.L().Info("marked ticker untrackable",
		zap.String("ticker", ticker),
		zap.String("reason", reason))
	return nil
}

// Untrackable returns the tickers whose last permanent failure is within the
// expiry window of now. Older entries are simply not returned, which makes
// them eligible for retry without any deletion.
func (w *Warehouse) Untrackable(ctx context.Context, expiryDays int, now time.Time) (map[string]struct{}, error) {
	exists, err := w.TableExists(ctx, "untrackable_tickers")
	if err != nil || !exists {
		return map[string]struct{}{}, err
	}

	cutoff := now.UTC().AddDate(0, 0, -expiryDays).Format(time.RFC3339)
	rows, err := w.db.QueryContext(ctx,
		`SELECT ticker FROM untrackable_tickers WHERE last_failed_timestamp >= ?`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query untrackable")
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan untrackable")
		}
		out[model.NormalizeTicker(ticker)] = struct{}{}
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate untrackable")
}

// UntrackableEntries returns the full ledger rows for inspection.
func (w *Warehouse) UntrackableEntries(ctx context.Context) ([]model.UntrackableTicker, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT ticker, reason, last_failed_timestamp FROM untrackable_tickers ORDER BY last_failed_timestamp DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: list untrackable")
	}
	defer rows.Close()

	var out []model.UntrackableTicker
	for rows.Next() {
		var entry model.UntrackableTicker
		var stamp string
		if err := rows.Scan(&entry.Ticker, &entry.Reason, &stamp); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan untrackable entry")
		}
		entry.LastFailed, err = time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, eris.Wrapf(err, "warehouse: bad timestamp for %s", entry.Ticker)
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate untrackable entries")
}
