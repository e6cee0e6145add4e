package model

import "time"

// Company is one EDGAR filer, keyed by CIK.
type Company struct {
	CIK                  string     `json:"cik"`
	PrimaryName          string     `json:"primary_name"`
	EntityType           string     `json:"entity_type"`
	SIC                  string     `json:"sic"`
	SICDescription       string     `json:"sic_description"`
	EIN                  string     `json:"ein"`
	Category             string     `json:"category"`
	FiscalYearEnd        string     `json:"fiscal_year_end"`
	StateOfIncorporation string     `json:"state_of_incorporation"`
	Phone                string     `json:"phone"`
	FirstAdded           time.Time  `json:"first_added_timestamp"`
	LastParsed           *time.Time `json:"last_parsed_timestamp,omitempty"`
}

// Ticker maps an exchange symbol to a CIK. A CIK may carry several symbols.
type Ticker struct {
	CIK      string `json:"cik"`
	Symbol   string `json:"ticker"`
	Exchange string `json:"exchange"`
	Source   string `json:"source"`
}

// FormerName records a historical name of a filer.
type FormerName struct {
	CIK  string     `json:"cik"`
	Name string     `json:"former_name"`
	From time.Time  `json:"date_from"`
	To   *time.Time `json:"date_to,omitempty"`
}

// Filing is one EDGAR submission, keyed by accession number.
type Filing struct {
	AccessionNumber string     `json:"accession_number"`
	CIK             string     `json:"cik"`
	FilingDate      *time.Time `json:"filing_date,omitempty"`
	ReportDate      *time.Time `json:"report_date,omitempty"`
	AcceptanceTime  *time.Time `json:"acceptance_datetime,omitempty"`
	Act             string     `json:"act"`
	Form            string     `json:"form"`
	FileNumber      string     `json:"file_number"`
	FilmNumber      string     `json:"film_number"`
	Items           string     `json:"items"`
	Size            int64      `json:"size"`
	IsXBRL          bool       `json:"is_xbrl"`
	IsInlineXBRL    bool       `json:"is_inline_xbrl"`
	PrimaryDocument string     `json:"primary_document"`
}

// Fact is one disclosed XBRL value. Facts whose accession number has no
// matching filing are quarantined instead of dropped.
type Fact struct {
	CIK             string     `json:"cik"`
	AccessionNumber string     `json:"accession_number"`
	Taxonomy        string     `json:"taxonomy"`
	TagName         string     `json:"tag_name"`
	Unit            string     `json:"unit"`
	PeriodEnd       *time.Time `json:"period_end_date,omitempty"`
	ValueNumeric    *float64   `json:"value_numeric,omitempty"`
	ValueText       string     `json:"value_text"`
	FY              int        `json:"fy"`
	FP              string     `json:"fp"`
	Form            string     `json:"form"`
	FiledDate       *time.Time `json:"filed_date,omitempty"`
	Frame           string     `json:"frame"`
}
