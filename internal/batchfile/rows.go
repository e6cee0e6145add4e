package batchfile

import (
	"time"

	"github.com/quantlake/edgarsync/internal/model"
)

// Row is one parquet record that knows how to present itself to the batch
// loader in the registry's column order.
type Row interface {
	Values() []any
}

// ToValues flattens typed rows for the load strategy engine.
func ToValues[T Row](rows []T) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

const (
	dateOnly = "2006-01-02"
)

func formatDate(t time.Time) string {
	return t.UTC().Format(dateOnly)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// BarRow is the stock_history batch record.
type BarRow struct {
	Ticker   string  `parquet:"ticker"`
	Date     string  `parquet:"date"`
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
	Volume   int64   `parquet:"volume"`
}

func FromBar(b model.StockBar) BarRow {
	return BarRow{
		Ticker:   model.NormalizeTicker(b.Ticker),
		Date:     formatDate(b.Date),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		AdjClose: b.AdjClose,
		Volume:   b.Volume,
	}
}

func (r BarRow) Values() []any {
	return []any{r.Ticker, r.Date, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume}
}

// ErrorRow is the stock_fetch_errors batch record.
type ErrorRow struct {
	Ticker    string `parquet:"ticker"`
	Timestamp string `parquet:"error_timestamp"`
	ErrorType string `parquet:"error_type"`
	Message   string `parquet:"message"`
}

func FromFetchError(e model.FetchError) ErrorRow {
	return ErrorRow{
		Ticker:    model.NormalizeTicker(e.Ticker),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		ErrorType: e.ErrorType,
		Message:   e.Message,
	}
}

func (r ErrorRow) Values() []any {
	return []any{r.Ticker, r.Timestamp, r.ErrorType, r.Message}
}

// InfoRow is the updated_ticker_info batch record.
type InfoRow struct {
	Ticker          string  `parquet:"ticker"`
	CIK             string  `parquet:"cik"`
	Name            string  `parquet:"name"`
	Market          string  `parquet:"market"`
	Locale          string  `parquet:"locale"`
	PrimaryExchange string  `parquet:"primary_exchange"`
	Type            string  `parquet:"type"`
	Active          bool    `parquet:"active"`
	CurrencyName    string  `parquet:"currency_name"`
	Description     string  `parquet:"description"`
	TotalEmployees  int64   `parquet:"total_employees"`
	ListDate        string  `parquet:"list_date"`
	SICCode         string  `parquet:"sic_code"`
	SICDescription  string  `parquet:"sic_description"`
	MarketCap       float64 `parquet:"market_cap"`
	FetchTimestamp  string  `parquet:"fetch_timestamp"`
}

func FromTickerInfo(info model.TickerInfo) InfoRow {
	return InfoRow{
		Ticker:          model.NormalizeTicker(info.Ticker),
		CIK:             info.CIK,
		Name:            info.Name,
		Market:          info.Market,
		Locale:          info.Locale,
		PrimaryExchange: info.PrimaryExchange,
		Type:            info.Type,
		Active:          info.Active,
		CurrencyName:    info.CurrencyName,
		Description:     info.Description,
		TotalEmployees:  info.TotalEmployees,
		ListDate:        info.ListDate,
		SICCode:         info.SICCode,
		SICDescription:  info.SICDescription,
		MarketCap:       info.MarketCap,
		FetchTimestamp:  info.FetchTime.UTC().Format(time.RFC3339),
	}
}

func (r InfoRow) Values() []any {
	return []any{
		r.Ticker, r.CIK, r.Name, r.Market, r.Locale, r.PrimaryExchange,
		r.Type, r.Active, r.CurrencyName, r.Description, r.TotalEmployees,
		r.ListDate, r.SICCode, r.SICDescription, r.MarketCap, r.FetchTimestamp,
	}
}

// MacroRow is the macro_economic_data batch record.
type MacroRow struct {
	SeriesID string  `parquet:"series_id"`
	Date     string  `parquet:"date"`
	Value    float64 `parquet:"value"`
}

func FromMacroPoint(p model.MacroPoint) MacroRow {
	return MacroRow{SeriesID: p.SeriesID, Date: formatDate(p.Date), Value: p.Value}
}

func (r MacroRow) Values() []any {
	return []any{r.SeriesID, r.Date, r.Value}
}

// RiskRow is the market_risk_factors batch record.
type RiskRow struct {
	Date        string  `parquet:"date"`
	FactorModel string  `parquet:"factor_model"`
	MktRF       float64 `parquet:"mkt_rf"`
	SMB         float64 `parquet:"smb"`
	HML         float64 `parquet:"hml"`
	RMW         float64 `parquet:"rmw"`
	CMA         float64 `parquet:"cma"`
	RF          float64 `parquet:"rf"`
}

func FromRiskFactor(f model.RiskFactor) RiskRow {
	return RiskRow{
		Date:        formatDate(f.Date),
		FactorModel: f.FactorModel,
		MktRF:       f.MktRF,
		SMB:         f.SMB,
		HML:         f.HML,
		RMW:         f.RMW,
		CMA:         f.CMA,
		RF:          f.RF,
	}
}

func (r RiskRow) Values() []any {
	return []any{r.Date, r.FactorModel, r.MktRF, r.SMB, r.HML, r.RMW, r.CMA, r.RF}
}

// CompanyRow is the companies batch record.
type CompanyRow struct {
	CIK                  string `parquet:"cik"`
	PrimaryName          string `parquet:"primary_name"`
	EntityType           string `parquet:"entity_type"`
	SIC                  string `parquet:"sic"`
	SICDescription       string `parquet:"sic_description"`
	EIN                  string `parquet:"ein"`
	Category             string `parquet:"category"`
	FiscalYearEnd        string `parquet:"fiscal_year_end"`
	StateOfIncorporation string `parquet:"state_of_incorporation"`
	Phone                string `parquet:"phone"`
	FirstAdded           string `parquet:"first_added_timestamp"`
	LastParsed           string `parquet:"last_parsed_timestamp"`
}

func FromCompany(c model.Company) CompanyRow {
	return CompanyRow{
		CIK:                  c.CIK,
		PrimaryName:          c.PrimaryName,
		EntityType:           c.EntityType,
		SIC:                  c.SIC,
		SICDescription:       c.SICDescription,
		EIN:                  c.EIN,
		Category:             c.Category,
		FiscalYearEnd:        c.FiscalYearEnd,
		StateOfIncorporation: c.StateOfIncorporation,
		Phone:                c.Phone,
		FirstAdded:           c.FirstAdded.UTC().Format(time.RFC3339),
		LastParsed:           formatTimePtr(c.LastParsed),
	}
}

func (r CompanyRow) Values() []any {
	return []any{
		r.CIK, r.PrimaryName, r.EntityType, r.SIC, r.SICDescription, r.EIN,
		r.Category, r.FiscalYearEnd, r.StateOfIncorporation, r.Phone,
		r.FirstAdded, nullIfEmpty(r.LastParsed),
	}
}

// TickerRow is the tickers batch record.
type TickerRow struct {
	CIK      string `parquet:"cik"`
	Ticker   string `parquet:"ticker"`
	Exchange string `parquet:"exchange"`
	Source   string `parquet:"source"`
}

func FromTicker(t model.Ticker) TickerRow {
	return TickerRow{
		CIK:      t.CIK,
		Ticker:   model.NormalizeTicker(t.Symbol),
		Exchange: t.Exchange,
		Source:   t.Source,
	}
}

func (r TickerRow) Values() []any {
	return []any{r.CIK, r.Ticker, r.Exchange, r.Source}
}

// FormerNameRow is the former_names batch record.
type FormerNameRow struct {
	CIK        string `parquet:"cik"`
	FormerName string `parquet:"former_name"`
	DateFrom   string `parquet:"date_from"`
	DateTo     string `parquet:"date_to"`
}

func FromFormerName(f model.FormerName) FormerNameRow {
	return FormerNameRow{
		CIK:        f.CIK,
		FormerName: f.Name,
		DateFrom:   f.From.UTC().Format(time.RFC3339),
		DateTo:     formatTimePtr(f.To),
	}
}

func (r FormerNameRow) Values() []any {
	return []any{r.CIK, r.FormerName, r.DateFrom, nullIfEmpty(r.DateTo)}
}

// FilingRow is the filings batch record.
type FilingRow struct {
	AccessionNumber string `parquet:"accession_number"`
	CIK             string `parquet:"cik"`
	FilingDate      string `parquet:"filing_date"`
	ReportDate      string `parquet:"report_date"`
	AcceptanceTime  string `parquet:"acceptance_datetime"`
	Act             string `parquet:"act"`
	Form            string `parquet:"form"`
	FileNumber      string `parquet:"file_number"`
	FilmNumber      string `parquet:"film_number"`
	Items           string `parquet:"items"`
	Size            int64  `parquet:"size"`
	IsXBRL          bool   `parquet:"is_xbrl"`
	IsInlineXBRL    bool   `parquet:"is_inline_xbrl"`
	PrimaryDocument string `parquet:"primary_document"`
}

func FromFiling(f model.Filing) FilingRow {
	return FilingRow{
		AccessionNumber: f.AccessionNumber,
		CIK:             f.CIK,
		FilingDate:      formatDatePtr(f.FilingDate),
		ReportDate:      formatDatePtr(f.ReportDate),
		AcceptanceTime:  formatTimePtr(f.AcceptanceTime),
		Act:             f.Act,
		Form:            f.Form,
		FileNumber:      f.FileNumber,
		FilmNumber:      f.FilmNumber,
		Items:           f.Items,
		Size:            f.Size,
		IsXBRL:          f.IsXBRL,
		IsInlineXBRL:    f.IsInlineXBRL,
		PrimaryDocument: f.PrimaryDocument,
	}
}

func (r FilingRow) Values() []any {
	return []any{
		r.AccessionNumber, r.CIK, nullIfEmpty(r.FilingDate),
		nullIfEmpty(r.ReportDate), nullIfEmpty(r.AcceptanceTime), r.Act,
		r.Form, r.FileNumber, r.FilmNumber, r.Items, r.Size, r.IsXBRL,
		r.IsInlineXBRL, r.PrimaryDocument,
	}
}

// FactRow is the xbrl_facts batch record.
type FactRow struct {
	CIK             string  `parquet:"cik"`
	AccessionNumber string  `parquet:"accession_number"`
	Taxonomy        string  `parquet:"taxonomy"`
	TagName         string  `parquet:"tag_name"`
	Unit            string  `parquet:"unit"`
	PeriodEndDate   string  `parquet:"period_end_date"`
	ValueNumeric    float64 `parquet:"value_numeric"`
	HasNumeric      bool    `parquet:"has_numeric"`
	ValueText       string  `parquet:"value_text"`
	FY              int32   `parquet:"fy"`
	FP              string  `parquet:"fp"`
	Form            string  `parquet:"form"`
	FiledDate       string  `parquet:"filed_date"`
	Frame           string  `parquet:"frame"`
}

func FromFact(f model.Fact) FactRow {
	row := FactRow{
		CIK:             f.CIK,
		AccessionNumber: f.AccessionNumber,
		Taxonomy:        f.Taxonomy,
		TagName:         f.TagName,
		Unit:            f.Unit,
		PeriodEndDate:   formatDatePtr(f.PeriodEnd),
		ValueText:       f.ValueText,
		FY:              int32(f.FY),
		FP:              f.FP,
		Form:            f.Form,
		FiledDate:       formatDatePtr(f.FiledDate),
		Frame:           f.Frame,
	}
	if f.ValueNumeric != nil {
		row.ValueNumeric = *f.ValueNumeric
		row.HasNumeric = true
	}
	return row
}

func (r FactRow) Values() []any {
	var numeric any
	if r.HasNumeric {
		numeric = r.ValueNumeric
	}
	// period_end_date and frame are key columns: empty string, never NULL,
	// so insert-or-replace deduplicates reliably.
	return []any{
		r.CIK, r.AccessionNumber, r.Taxonomy, r.TagName, r.Unit,
		r.PeriodEndDate, numeric, r.ValueText, r.FY, r.FP,
		r.Form, nullIfEmpty(r.FiledDate), r.Frame,
	}
}
