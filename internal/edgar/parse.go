package edgar

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quantlake/edgarsync/internal/model"
)

// SubmissionData is everything one submissions.zip member yields.
type SubmissionData struct {
	Company     model.Company
	Tickers     []model.Ticker
	FormerNames []model.FormerName
	Filings     []model.Filing
}

// FactsData is everything one companyfacts.zip member yields.
type FactsData struct {
	CIK        string
	EntityName string
	Facts      []model.Fact
}

type submissionJSON struct {
	CIK                  json.Number `json:"cik"`
	Name                 string      `json:"name"`
	EntityType           string      `json:"entityType"`
	SIC                  string      `json:"sic"`
	SICDescription       string      `json:"sicDescription"`
	EIN                  string      `json:"ein"`
	Category             string      `json:"category"`
	FiscalYearEnd        string      `json:"fiscalYearEnd"`
	StateOfIncorporation string      `json:"stateOfIncorporation"`
	Phone                string      `json:"phone"`
	Tickers              []string    `json:"tickers"`
	Exchanges            []string    `json:"exchanges"`
	FormerNames          []struct {
		Name string `json:"name"`
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"formerNames"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			AcceptanceTime  []string `json:"acceptanceDateTime"`
			Act             []string `json:"act"`
			Form            []string `json:"form"`
			FileNumber      []string `json:"fileNumber"`
			FilmNumber      []string `json:"filmNumber"`
			Items           []string `json:"items"`
			Size            []int64  `json:"size"`
			IsXBRL          []int    `json:"isXBRL"`
			IsInlineXBRL    []int    `json:"isInlineXBRL"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// ParseSubmission parses one CIK submission JSON into company, ticker,
// former-name, and filing records. Filings missing an accession number,
// form, or filing date are skipped rather than failing the whole file.
func ParseSubmission(r io.Reader, now time.Time) (*SubmissionData, error) {
	var raw submissionJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "edgar: decode submission json")
	}
	if raw.CIK.String() == "" {
		return nil, eris.New("edgar: submission json has no cik")
	}
	cik := PadCIK(raw.CIK.String())

	out := &SubmissionData{
		Company: model.Company{
			CIK:                  cik,
			PrimaryName:          raw.Name,
			EntityType:           raw.EntityType,
			SIC:                  raw.SIC,
			SICDescription:       raw.SICDescription,
			EIN:                  raw.EIN,
			Category:             raw.Category,
			FiscalYearEnd:        raw.FiscalYearEnd,
			StateOfIncorporation: raw.StateOfIncorporation,
			Phone:                raw.Phone,
			FirstAdded:           now.UTC(),
			LastParsed:           ptr(now.UTC()),
		},
	}

	for i := 0; i < len(raw.Tickers) && i < len(raw.Exchanges); i++ {
		if raw.Tickers[i] == "" || raw.Exchanges[i] == "" {
			continue
		}
		out.Tickers = append(out.Tickers, model.Ticker{
			CIK:      cik,
			Symbol:   raw.Tickers[i],
			Exchange: raw.Exchanges[i],
			Source:   "submissions.json",
		})
	}

	for _, fn := range raw.FormerNames {
		if fn.Name == "" {
			continue
		}
		from := parseTimestamp(fn.From)
		if from == nil {
			continue
		}
		out.FormerNames = append(out.FormerNames, model.FormerName{
			CIK:  cik,
			Name: fn.Name,
			From: *from,
			To:   parseTimestamp(fn.To),
		})
	}

	recent := raw.Filings.Recent
	for i := range recent.AccessionNumber {
		filing := model.Filing{
			AccessionNumber: at(recent.AccessionNumber, i),
			CIK:             cik,
			FilingDate:      parseDate(at(recent.FilingDate, i)),
			ReportDate:      parseDate(at(recent.ReportDate, i)),
			AcceptanceTime:  parseTimestamp(at(recent.AcceptanceTime, i)),
			Act:             at(recent.Act, i),
			Form:            at(recent.Form, i),
			FileNumber:      at(recent.FileNumber, i),
			FilmNumber:      at(recent.FilmNumber, i),
			Items:           at(recent.Items, i),
			PrimaryDocument: at(recent.PrimaryDocument, i),
		}
		if i < len(recent.Size) {
			filing.Size = recent.Size[i]
		}
		if i < len(recent.IsXBRL) {
			filing.IsXBRL = recent.IsXBRL[i] != 0
		}
		if i < len(recent.IsInlineXBRL) {
			filing.IsInlineXBRL = recent.IsInlineXBRL[i] != 0
		}
		if filing.AccessionNumber == "" || filing.Form == "" || filing.FilingDate == nil {
			continue
		}
		out.Filings = append(out.Filings, filing)
	}

	return out, nil
}

type factsJSON struct {
	CIK        json.Number                       `json:"cik"`
	EntityName string                            `json:"entityName"`
	Facts      map[string]map[string]factTagJSON `json:"facts"`
}

type factTagJSON struct {
	Units map[string][]factInstanceJSON `json:"units"`
}

type factInstanceJSON struct {
	Val   json.RawMessage `json:"val"`
	Accn  string          `json:"accn"`
	End   string          `json:"end"`
	FY    json.Number     `json:"fy"`
	FP    string          `json:"fp"`
	Form  string          `json:"form"`
	Filed string          `json:"filed"`
	Frame string          `json:"frame"`
}

// ParseCompanyFacts parses one companyfacts.zip member into fact records.
// Values that are not finite numbers land in the text column; facts missing
// an accession number or form are skipped.
func ParseCompanyFacts(r io.Reader) (*FactsData, error) {
	var raw factsJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "edgar: decode companyfacts json")
	}
	if raw.CIK.String() == "" {
		return nil, eris.New("edgar: companyfacts json has no cik")
	}

	out := &FactsData{
		CIK:        PadCIK(raw.CIK.String()),
		EntityName: raw.EntityName,
	}

	for taxonomy, tags := range raw.Facts {
		for tagName, details := range tags {
			for unit, instances := range details.Units {
				for _, inst := range instances {
					if inst.Accn == "" || inst.Form == "" {
						continue
					}
					fact := model.Fact{
						CIK:             out.CIK,
						AccessionNumber: inst.Accn,
						Taxonomy:        taxonomy,
						TagName:         tagName,
						Unit:            unit,
						PeriodEnd:       parseDate(inst.End),
						FP:              inst.FP,
						Form:            inst.Form,
						FiledDate:       parseDate(inst.Filed),
						Frame:           inst.Frame,
					}
					if fy, err := inst.FY.Int64(); err == nil {
						fact.FY = int(fy)
					}
					fact.ValueNumeric, fact.ValueText = splitValue(inst.Val)
					out.Facts = append(out.Facts, fact)
				}
			}
		}
	}
	return out, nil
}

// splitValue routes a raw JSON value into the numeric or text column.
func splitValue(raw json.RawMessage) (*float64, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return &f, ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nil, s
	}
	return nil, string(raw)
}

// PadCIK left-pads a CIK to the canonical 10 digits.
func PadCIK(cik string) string {
	if _, err := strconv.Atoi(cik); err != nil {
		return cik
	}
	return fmt.Sprintf("%010s", cik)
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
