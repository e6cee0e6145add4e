package warehouse

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Strategy selects how batches are persisted into a table.
type Strategy string

const (
	// StrategySnapshotSwap stages the full dataset and atomically replaces
	// the live table, guarded against shrinking the data.
	StrategySnapshotSwap Strategy = "snapshot_swap"
	// StrategyIncrementalUpsert merges batches into the live table with
	// insert-or-replace semantics keyed by the primary key.
	StrategyIncrementalUpsert Strategy = "incremental_upsert"
	// StrategyDirect marks tables maintained by narrowly-scoped upserts
	// outside the batch loader (ledgers, logs, derived backlogs).
	StrategyDirect Strategy = "direct"
)

// TableSpec describes one warehouse table: its schema, insert column order,
// natural primary key, and load strategy. The loader never builds table or
// column names from anything but this registry.
type TableSpec struct {
	Name       string
	CreateSQL  string
	Columns    []string
	PrimaryKey []string
	Strategy   Strategy
}

// CreateAs returns the CreateSQL retargeted at another table name. Used for
// staging tables, which must share the live table's schema and constraints.
func (t TableSpec) CreateAs(name string) string {
	return strings.Replace(t.CreateSQL, t.Name, name, 1)
}

var registry = map[string]TableSpec{
	"companies": {
		Name: "companies",
		CreateSQL: `CREATE TABLE IF NOT EXISTS companies (
			cik                    TEXT PRIMARY KEY,
			primary_name           TEXT,
			entity_type            TEXT,
			sic                    TEXT,
			sic_description        TEXT,
			ein                    TEXT,
			category               TEXT,
			fiscal_year_end        TEXT,
			state_of_incorporation TEXT,
			phone                  TEXT,
			first_added_timestamp  TEXT,
			last_parsed_timestamp  TEXT
		)`,
		Columns: []string{
			"cik", "primary_name", "entity_type", "sic", "sic_description",
			"ein", "category", "fiscal_year_end", "state_of_incorporation",
			"phone", "first_added_timestamp", "last_parsed_timestamp",
		},
		PrimaryKey: []string{"cik"},
		Strategy:   StrategySnapshotSwap,
	},
	"tickers": {
		Name: "tickers",
		CreateSQL: `CREATE TABLE IF NOT EXISTS tickers (
			cik      TEXT NOT NULL,
			ticker   TEXT NOT NULL COLLATE NOCASE,
			exchange TEXT NOT NULL COLLATE NOCASE,
			source   TEXT,
			PRIMARY KEY (cik, ticker, exchange)
		)`,
		Columns:    []string{"cik", "ticker", "exchange", "source"},
		PrimaryKey: []string{"cik", "ticker", "exchange"},
		Strategy:   StrategySnapshotSwap,
	},
	"former_names": {
		Name: "former_names",
		CreateSQL: `CREATE TABLE IF NOT EXISTS former_names (
			cik         TEXT NOT NULL,
			former_name TEXT NOT NULL,
			date_from   TEXT NOT NULL,
			date_to     TEXT,
			PRIMARY KEY (cik, former_name, date_from)
		)`,
		Columns:    []string{"cik", "former_name", "date_from", "date_to"},
		PrimaryKey: []string{"cik", "former_name", "date_from"},
		Strategy:   StrategySnapshotSwap,
	},
	"filings": {
		Name: "filings",
		CreateSQL: `CREATE TABLE IF NOT EXISTS filings (
			accession_number     TEXT PRIMARY KEY,
			cik                  TEXT NOT NULL,
			filing_date          TEXT,
			report_date          TEXT,
			acceptance_datetime  TEXT,
			act                  TEXT,
			form                 TEXT NOT NULL,
			file_number          TEXT,
			film_number          TEXT,
			items                TEXT,
			size                 INTEGER,
			is_xbrl              INTEGER,
			is_inline_xbrl       INTEGER,
			primary_document     TEXT
		)`,
		Columns: []string{
			"accession_number", "cik", "filing_date", "report_date",
			"acceptance_datetime", "act", "form", "file_number", "film_number",
			"items", "size", "is_xbrl", "is_inline_xbrl", "primary_document",
		},
		PrimaryKey: []string{"accession_number"},
		Strategy:   StrategySnapshotSwap,
	},
	"xbrl_facts": {
		Name:       "xbrl_facts",
		CreateSQL:  factsSchema("xbrl_facts"),
		Columns:    factsColumns,
		PrimaryKey: factsKey,
		Strategy:   StrategySnapshotSwap,
	},
	"xbrl_facts_orphaned": {
		Name:       "xbrl_facts_orphaned",
		CreateSQL:  factsSchema("xbrl_facts_orphaned"),
		Columns:    factsColumns,
		PrimaryKey: factsKey,
		Strategy:   StrategySnapshotSwap,
	},
	"stock_history": {
		Name: "stock_history",
		CreateSQL: `CREATE TABLE IF NOT EXISTS stock_history (
			ticker    TEXT NOT NULL COLLATE NOCASE,
			date      TEXT NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			adj_close REAL,
			volume    INTEGER,
			PRIMARY KEY (ticker, date)
		)`,
		Columns: []string{
			"ticker", "date", "open", "high", "low", "close", "adj_close", "volume",
		},
		PrimaryKey: []string{"ticker", "date"},
		Strategy:   StrategyIncrementalUpsert,
	},
	"stock_fetch_errors": {
		Name: "stock_fetch_errors",
		CreateSQL: `CREATE TABLE IF NOT EXISTS stock_fetch_errors (
			ticker          TEXT NOT NULL COLLATE NOCASE,
			error_timestamp TEXT NOT NULL,
			error_type      TEXT NOT NULL,
			message         TEXT,
			PRIMARY KEY (ticker, error_timestamp, error_type)
		)`,
		Columns:    []string{"ticker", "error_timestamp", "error_type", "message"},
		PrimaryKey: []string{"ticker", "error_timestamp", "error_type"},
		Strategy:   StrategyIncrementalUpsert,
	},
	"updated_ticker_info": {
		Name: "updated_ticker_info",
		CreateSQL: `CREATE TABLE IF NOT EXISTS updated_ticker_info (
			ticker           TEXT NOT NULL COLLATE NOCASE PRIMARY KEY,
			cik              TEXT,
			name             TEXT,
			market           TEXT,
			locale           TEXT,
			primary_exchange TEXT,
			type             TEXT,
			active           INTEGER,
			currency_name    TEXT,
			description      TEXT,
			total_employees  INTEGER,
			list_date        TEXT,
			sic_code         TEXT,
			sic_description  TEXT,
			market_cap       REAL,
			fetch_timestamp  TEXT NOT NULL
		)`,
		Columns: []string{
			"ticker", "cik", "name", "market", "locale", "primary_exchange",
			"type", "active", "currency_name", "description", "total_employees",
			"list_date", "sic_code", "sic_description", "market_cap",
			"fetch_timestamp",
		},
		PrimaryKey: []string{"ticker"},
		Strategy:   StrategyIncrementalUpsert,
	},
	"macro_economic_data": {
		Name: "macro_economic_data",
		CreateSQL: `CREATE TABLE IF NOT EXISTS macro_economic_data (
			series_id TEXT NOT NULL,
			date      TEXT NOT NULL,
			value     REAL,
			PRIMARY KEY (series_id, date)
		)`,
		Columns:    []string{"series_id", "date", "value"},
		PrimaryKey: []string{"series_id", "date"},
		Strategy:   StrategySnapshotSwap,
	},
	"market_risk_factors": {
		Name: "market_risk_factors",
		CreateSQL: `CREATE TABLE IF NOT EXISTS market_risk_factors (
			date         TEXT NOT NULL,
			factor_model TEXT NOT NULL,
			mkt_rf       REAL,
			smb          REAL,
			hml          REAL,
			rmw          REAL,
			cma          REAL,
			rf           REAL,
			PRIMARY KEY (date, factor_model)
		)`,
		Columns: []string{
			"date", "factor_model", "mkt_rf", "smb", "hml", "rmw", "cma", "rf",
		},
		PrimaryKey: []string{"date", "factor_model"},
		Strategy:   StrategySnapshotSwap,
	},
	"untrackable_tickers": {
		Name: "untrackable_tickers",
		CreateSQL: `CREATE TABLE IF NOT EXISTS untrackable_tickers (
			ticker                TEXT NOT NULL COLLATE NOCASE PRIMARY KEY,
			reason                TEXT,
			last_failed_timestamp TEXT NOT NULL
		)`,
		Columns:    []string{"ticker", "reason", "last_failed_timestamp"},
		PrimaryKey: []string{"ticker"},
		Strategy:   StrategyDirect,
	},
	"processed_file_log": {
		Name: "processed_file_log",
		CreateSQL: `CREATE TABLE IF NOT EXISTS processed_file_log (
			table_name   TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			PRIMARY KEY (table_name, file_name)
		)`,
		Columns:    []string{"table_name", "file_name", "processed_at"},
		PrimaryKey: []string{"table_name", "file_name"},
		Strategy:   StrategyDirect,
	},
	"stock_backlog": {
		Name:       "stock_backlog",
		CreateSQL:  backlogSchema("stock_backlog"),
		Columns:    backlogColumns,
		PrimaryKey: []string{"ticker"},
		Strategy:   StrategyDirect,
	},
	"ticker_info_backlog": {
		Name:       "ticker_info_backlog",
		CreateSQL:  backlogSchema("ticker_info_backlog"),
		Columns:    backlogColumns,
		PrimaryKey: []string{"ticker"},
		Strategy:   StrategyDirect,
	},
}

var (
	factsColumns = []string{
		"cik", "accession_number", "taxonomy", "tag_name", "unit",
		"period_end_date", "value_numeric", "value_text", "fy", "fp", "form",
		"filed_date", "frame",
	}
	factsKey = []string{
		"cik", "accession_number", "taxonomy", "tag_name", "unit",
		"period_end_date", "frame",
	}

	backlogColumns = []string{
		"ticker", "rank", "score", "unique_tag_count", "key_metric_count",
		"recent_filings", "need_score", "staleness_days", "record_count",
		"exchange_tier", "suggested_start", "suggested_end", "generated_at",
		"weights_json",
	}

	indexes = []string{
		`CREATE INDEX IF NOT EXISTS idx_tickers_ticker ON tickers (ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_cik ON filings (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_form ON filings (form)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_date ON filings (filing_date)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_cik ON xbrl_facts (cik)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_tag ON xbrl_facts (tag_name)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_history_date ON stock_history (date)`,
	}
)

func factsSchema(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
		cik              TEXT NOT NULL,
		accession_number TEXT NOT NULL,
		taxonomy         TEXT NOT NULL COLLATE NOCASE,
		tag_name         TEXT NOT NULL,
		unit             TEXT NOT NULL COLLATE NOCASE,
		period_end_date  TEXT,
		value_numeric    REAL,
		value_text       TEXT,
		fy               INTEGER,
		fp               TEXT,
		form             TEXT NOT NULL,
		filed_date       TEXT,
		frame            TEXT,
		PRIMARY KEY (cik, accession_number, taxonomy, tag_name, unit, period_end_date, frame)
	)`
}

func backlogSchema(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
		ticker           TEXT NOT NULL COLLATE NOCASE PRIMARY KEY,
		rank             INTEGER NOT NULL,
		score            REAL NOT NULL,
		unique_tag_count INTEGER,
		key_metric_count INTEGER,
		recent_filings   INTEGER,
		need_score       REAL,
		staleness_days   INTEGER,
		record_count     INTEGER,
		exchange_tier    REAL,
		suggested_start  TEXT,
		suggested_end    TEXT,
		generated_at     TEXT NOT NULL,
		weights_json     TEXT NOT NULL
	)`
}

// Lookup resolves a table name against the registry.
func Lookup(name string) (TableSpec, error) {
	spec, ok := registry[name]
	if !ok {
		return TableSpec{}, eris.Errorf("warehouse: unknown table %q", name)
	}
	return spec, nil
}

// Tables returns every registered spec in a stable order.
func Tables() []TableSpec {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	// Deterministic migration order.
	sort.Strings(names)
	specs := make([]TableSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, registry[name])
	}
	return specs
}

// BatchTables returns the specs loaded from batch files, i.e. every table
// whose strategy is not direct.
func BatchTables() []TableSpec {
	var specs []TableSpec
	for _, spec := range Tables() {
		if spec.Strategy != StrategyDirect {
			specs = append(specs, spec)
		}
	}
	return specs
}
