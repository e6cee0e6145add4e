package backlog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quantlake/edgarsync/internal/model"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// Key financial concepts checked by substring match on tag names. This is a
// heuristic carried over from the operating pipeline; it over-matches on
// purpose (e.g. "AssetsCurrent" counts for "Assets").
var keyMetricPatterns = []string{
	"Assets", "Liabilities", "StockholdersEquity",
	"Revenue", "NetIncome", "OperatingIncome",
	"CashAndCashEquivalents", "EarningsPerShare",
}

// Venue codes treated as tier-one exchanges. Anything else known gets
// partial credit; unknown venues score zero.
var majorExchanges = map[string]struct{}{
	"XNAS": {}, "XNYS": {}, "NASDAQ": {}, "NYSE": {}, "ARCX": {}, "BATS": {},
}

const (
	majorExchangeTier = 1.0
	otherExchangeTier = 0.3
)

// rawMetrics holds the unnormalized scoring signals for one ticker.
type rawMetrics struct {
	ticker        string
	uniqueTags    int
	keyMetrics    int
	recentFilings int
	lastBarDate   *time.Time
	recordCount   int
	exchangeTier  float64
}

// collectMetrics gathers the raw component signals for every candidate in
// a handful of passes over the warehouse.
func collectMetrics(ctx context.Context, w *warehouse.Warehouse, tickers []string, lookbackDays int, now time.Time) ([]rawMetrics, error) {
	coverage, err := w.StockCoverage(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := now.UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")

	out := make([]rawMetrics, 0, len(tickers))
	for _, t := range tickers {
		m := rawMetrics{ticker: model.NormalizeTicker(t)}

		cik, err := lookupCIK(ctx, w, m.ticker)
		if err != nil {
			return nil, err
		}
		if cik != "" {
			if m.uniqueTags, m.keyMetrics, err = factMetrics(ctx, w, cik); err != nil {
				return nil, err
			}
			if m.recentFilings, err = filingCount(ctx, w, cik, cutoff); err != nil {
				return nil, err
			}
		}

		if stat, ok := coverage[m.ticker]; ok {
			m.lastBarDate = stat.LastDate
			m.recordCount = stat.Records
		} else {
			for _, form := range model.TickerForms(m.ticker)[1:] {
				if stat, ok := coverage[form]; ok {
					m.lastBarDate = stat.LastDate
					m.recordCount = stat.Records
				}
			}
		}

		if m.exchangeTier, err = exchangeTier(ctx, w, m.ticker); err != nil {
			return nil, err
		}

		out = append(out, m)
	}
	return out, nil
}

func lookupCIK(ctx context.Context, w *warehouse.Warehouse, ticker string) (string, error) {
	exists, err := w.TableExists(ctx, "tickers")
	if err != nil || !exists {
		return "", err
	}
	forms := model.TickerForms(ticker)
	query := `SELECT cik FROM tickers WHERE ticker IN (` + placeholders(len(forms)) + `) LIMIT 1`

	var cik string
	err = w.DB().QueryRowContext(ctx, query, toArgs(forms)...).Scan(&cik)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "backlog: cik lookup for %s", ticker)
	}
	return cik, nil
}

// factMetrics returns the distinct tag count and the number of key concepts
// present for one CIK in a single scan.
func factMetrics(ctx context.Context, w *warehouse.Warehouse, cik string) (int, int, error) {
	exists, err := w.TableExists(ctx, "xbrl_facts")
	if err != nil || !exists {
		return 0, 0, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(DISTINCT tag_name)`)
	args := []any{}
	for _, pattern := range keyMetricPatterns {
		sb.WriteString(`, COALESCE(MAX(tag_name LIKE ?), 0)`)
		args = append(args, "%"+pattern+"%")
	}
	sb.WriteString(` FROM xbrl_facts WHERE cik = ?`)
	args = append(args, cik)

	dest := make([]any, 1+len(keyMetricPatterns))
	var tags int
	flags := make([]int, len(keyMetricPatterns))
	dest[0] = &tags
	for i := range flags {
		dest[i+1] = &flags[i]
	}

	if err := w.DB().QueryRowContext(ctx, sb.String(), args...).Scan(dest...); err != nil {
		return 0, 0, eris.Wrapf(err, "backlog: fact metrics for cik %s", cik)
	}

	var present int
	for _, f := range flags {
		present += f
	}
	return tags, present, nil
}

func filingCount(ctx context.Context, w *warehouse.Warehouse, cik, cutoff string) (int, error) {
	exists, err := w.TableExists(ctx, "filings")
	if err != nil || !exists {
		return 0, err
	}
	var n int
	err = w.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM filings WHERE cik = ? AND filing_date >= ?`,
		cik, cutoff).Scan(&n)
	return n, eris.Wrapf(err, "backlog: filing count for cik %s", cik)
}

func exchangeTier(ctx context.Context, w *warehouse.Warehouse, ticker string) (float64, error) {
	exists, err := w.TableExists(ctx, "updated_ticker_info")
	if err != nil || !exists {
		return 0, err
	}
	forms := model.TickerForms(ticker)
	query := `SELECT primary_exchange FROM updated_ticker_info WHERE ticker IN (` +
		placeholders(len(forms)) + `) LIMIT 1`

	var exchange sql.NullString
	err = w.DB().QueryRowContext(ctx, query, toArgs(forms)...).Scan(&exchange)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "backlog: exchange lookup for %s", ticker)
	}
	if !exchange.Valid || exchange.String == "" {
		return 0, nil
	}
	if _, major := majorExchanges[strings.ToUpper(exchange.String)]; major {
		return majorExchangeTier, nil
	}
	return otherExchangeTier, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(forms []string) []any {
	args := make([]any, len(forms))
	for i, f := range forms {
		args[i] = f
	}
	return args
}
