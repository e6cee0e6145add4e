package model

import "time"

// StockBar is one daily OHLCV observation for a ticker. At most one row
// exists per (ticker, date); dates are midnight UTC.
type StockBar struct {
	Ticker   string    `json:"ticker"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// FetchError is one recorded fetch failure event. These accumulate as an
// append-only log for later inspection or manual retry.
type FetchError struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
}

// TickerInfo is the reference record for one ticker as reported by the
// market-data provider.
type TickerInfo struct {
	Ticker          string    `json:"ticker"`
	CIK             string    `json:"cik"`
	Name            string    `json:"name"`
	Market          string    `json:"market"`
	Locale          string    `json:"locale"`
	PrimaryExchange string    `json:"primary_exchange"`
	Type            string    `json:"type"`
	Active          bool      `json:"active"`
	CurrencyName    string    `json:"currency_name"`
	Description     string    `json:"description"`
	TotalEmployees  int64     `json:"total_employees"`
	ListDate        string    `json:"list_date"`
	SICCode         string    `json:"sic_code"`
	SICDescription  string    `json:"sic_description"`
	MarketCap       float64   `json:"market_cap"`
	FetchTime       time.Time `json:"fetch_time"`
}

// MacroPoint is one observation of a macro-economic series.
type MacroPoint struct {
	SeriesID string    `json:"series_id"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
}

// RiskFactor is one daily row of a factor model (e.g. Fama-French 5-factor).
// Values are percentages as published by the upstream feed.
type RiskFactor struct {
	Date        time.Time `json:"date"`
	FactorModel string    `json:"factor_model"`
	MktRF       float64   `json:"mkt_rf"`
	SMB         float64   `json:"smb"`
	HML         float64   `json:"hml"`
	RMW         float64   `json:"rmw"`
	CMA         float64   `json:"cma"`
	RF          float64   `json:"rf"`
}

// UntrackableTicker is a denylist entry for a ticker the provider has
// permanently rejected. Entries age out after the configured expiry window.
type UntrackableTicker struct {
	Ticker     string    `json:"ticker"`
	Reason     string    `json:"reason"`
	LastFailed time.Time `json:"last_failed_timestamp"`
}

// BacklogEntry is one ranked row of a prioritization run. The raw component
// metrics are persisted alongside the composite score so a reader can audit
// why the entry ranked where it did.
type BacklogEntry struct {
	Ticker         string     `json:"ticker"`
	Rank           int        `json:"rank"`
	Score          float64    `json:"score"`
	UniqueTagCount int        `json:"unique_tag_count"`
	KeyMetricCount int        `json:"key_metric_count"`
	RecentFilings  int        `json:"recent_filings"`
	NeedScore      float64    `json:"need_score"`
	StalenessDays  int        `json:"staleness_days"`
	RecordCount    int        `json:"record_count"`
	ExchangeTier   float64    `json:"exchange_tier"`
	SuggestedStart *time.Time `json:"suggested_start,omitempty"`
	SuggestedEnd   *time.Time `json:"suggested_end,omitempty"`
}
