package warehouse

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quantlake/edgarsync/internal/model"
)

// CoverageStat summarizes one ticker's stored price history.
type CoverageStat struct {
	LastDate *time.Time
	Records  int
}

// ExistingBarDates returns the observation dates stored for a ticker within
// the inclusive range. Both period and hyphen spellings are matched.
func (w *Warehouse) ExistingBarDates(ctx context.Context, ticker string, start, end time.Time) ([]time.Time, error) {
	exists, err := w.TableExists(ctx, "stock_history")
	if err != nil || !exists {
		return nil, err
	}

	forms := model.TickerForms(ticker)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(forms)), ", ")
	args := make([]any, 0, len(forms)+2)
	for _, f := range forms {
		args = append(args, f)
	}
	args = append(args, start.UTC().Format(dateOnly), end.UTC().Format(dateOnly))

	rows, err := w.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM stock_history WHERE ticker IN (`+placeholders+`)
		 AND date >= ? AND date <= ? ORDER BY date`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "warehouse: existing dates for %s", ticker)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan date")
		}
		d, err := time.Parse(dateOnly, raw)
		if err != nil {
			return nil, eris.Wrapf(err, "warehouse: bad stored date %q", raw)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate dates")
}

// StockCoverage returns the latest stored bar date and record count per
// ticker, for the whole stock_history table in one pass.
func (w *Warehouse) StockCoverage(ctx context.Context) (map[string]CoverageStat, error) {
	out := make(map[string]CoverageStat)
	exists, err := w.TableExists(ctx, "stock_history")
	if err != nil || !exists {
		return out, err
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT ticker, MAX(date), COUNT(*) FROM stock_history GROUP BY ticker`)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: stock coverage")
	}
	defer rows.Close()

	for rows.Next() {
		var ticker string
		var last sql.NullString
		var count int
		if err := rows.Scan(&ticker, &last, &count); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan coverage")
		}
		stat := CoverageStat{Records: count}
		if last.Valid {
			d, err := time.Parse(dateOnly, last.String)
			if err != nil {
				return nil, eris.Wrapf(err, "warehouse: bad stored date %q", last.String)
			}
			stat.LastDate = &d
		}
		out[model.NormalizeTicker(ticker)] = stat
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate coverage")
}

// InfoFetchTimes returns the last detail-fetch timestamp per ticker, used to
// skip recently-refreshed tickers in info gathering.
func (w *Warehouse) InfoFetchTimes(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	exists, err := w.TableExists(ctx, "updated_ticker_info")
	if err != nil || !exists {
		return out, err
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT ticker, fetch_timestamp FROM updated_ticker_info`)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: info fetch times")
	}
	defer rows.Close()

	for rows.Next() {
		var ticker, stamp string
		if err := rows.Scan(&ticker, &stamp); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan fetch time")
		}
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, eris.Wrapf(err, "warehouse: bad fetch timestamp %q", stamp)
		}
		out[model.NormalizeTicker(ticker)] = t
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate fetch times")
}

// ActiveTickers returns the distinct symbols known to the tickers table, the
// candidate universe for gathering when no backlog exists.
func (w *Warehouse) ActiveTickers(ctx context.Context) ([]string, error) {
	exists, err := w.TableExists(ctx, "tickers")
	if err != nil || !exists {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT DISTINCT ticker FROM tickers ORDER BY ticker`)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: active tickers")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan ticker")
		}
		out = append(out, model.NormalizeTicker(ticker))
	}
	return out, eris.Wrap(rows.Err(), "warehouse: iterate tickers")
}
