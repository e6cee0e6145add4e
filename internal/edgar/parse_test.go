package edgar

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSubmission = `{
  "cik": 320193,
  "name": "Apple Inc.",
  "entityType": "operating",
  "sic": "3571",
  "sicDescription": "Electronic Computers",
  "ein": "942404110",
  "category": "Large accelerated filer",
  "fiscalYearEnd": "0927",
  "stateOfIncorporation": "CA",
  "phone": "(408) 996-1010",
  "tickers": ["AAPL", ""],
  "exchanges": ["Nasdaq", "OTC"],
  "formerNames": [
    {"name": "APPLE COMPUTER INC", "from": "1997-07-28T00:00:00.000Z", "to": "2007-01-04T00:00:00.000Z"},
    {"name": "", "from": "1990-01-01T00:00:00.000Z"}
  ],
  "filings": {
    "recent": {
      "accessionNumber": ["0000320193-25-000001", "", "0000320193-25-000003"],
      "filingDate": ["2025-01-15", "2025-01-10", ""],
      "reportDate": ["2024-12-28", "", ""],
      "acceptanceDateTime": ["2025-01-15T16:30:02.000Z", "", ""],
      "act": ["34", "", ""],
      "form": ["10-Q", "8-K", "4"],
      "fileNumber": ["001-36743", "", ""],
      "filmNumber": ["25528773", "", ""],
      "items": ["", "2.02", ""],
      "size": [9000000, 120000, 4000],
      "isXBRL": [1, 0, 0],
      "isInlineXBRL": [1, 0, 0],
      "primaryDocument": ["aapl-20241228.htm", "", ""]
    }
  }
}`

func TestParseSubmission(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	data, err := ParseSubmission(strings.NewReader(sampleSubmission), now)
	require.NoError(t, err)

	assert.Equal(t, "0000320193", data.Company.CIK)
	assert.Equal(t, "Apple Inc.", data.Company.PrimaryName)
	assert.Equal(t, "3571", data.Company.SIC)
	assert.Equal(t, "0927", data.Company.FiscalYearEnd)
	assert.Equal(t, now, data.Company.FirstAdded)
	require.NotNil(t, data.Company.LastParsed)

	// The empty second ticker is dropped.
	require.Len(t, data.Tickers, 1)
	assert.Equal(t, "AAPL", data.Tickers[0].Symbol)
	assert.Equal(t, "Nasdaq", data.Tickers[0].Exchange)
	assert.Equal(t, "submissions.json", data.Tickers[0].Source)

	require.Len(t, data.FormerNames, 1)
	assert.Equal(t, "APPLE COMPUTER INC", data.FormerNames[0].Name)
	require.NotNil(t, data.FormerNames[0].To)
	assert.Equal(t, 2007, data.FormerNames[0].To.Year())
}

func TestParseSubmissionSkipsIncompleteFilings(t *testing.T) {
	data, err := ParseSubmission(strings.NewReader(sampleSubmission), time.Now())
	require.NoError(t, err)

	// Row 2 has no accession number, row 3 has no filing date.
	require.Len(t, data.Filings, 1)
	f := data.Filings[0]
	assert.Equal(t, "0000320193-25-000001", f.AccessionNumber)
	assert.Equal(t, "10-Q", f.Form)
	assert.Equal(t, "0000320193", f.CIK)
	require.NotNil(t, f.FilingDate)
	assert.Equal(t, "2025-01-15", f.FilingDate.Format("2006-01-02"))
	require.NotNil(t, f.AcceptanceTime)
	assert.Equal(t, int64(9000000), f.Size)
	assert.True(t, f.IsXBRL)
	assert.True(t, f.IsInlineXBRL)
}

func TestParseSubmissionMissingCIK(t *testing.T) {
	_, err := ParseSubmission(strings.NewReader(`{"name": "No CIK Corp"}`), time.Now())
	require.Error(t, err)
}

const sampleFacts = `{
  "cik": 320193,
  "entityName": "Apple Inc.",
  "facts": {
    "us-gaap": {
      "Assets": {
        "units": {
          "USD": [
            {"end": "2024-09-28", "val": 364980000000, "accn": "0000320193-24-000123", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01", "frame": "CY2024Q3I"},
            {"end": "2024-12-28", "val": 344085000000, "accn": "", "fy": 2025, "fp": "Q1", "form": "10-Q", "filed": "2025-01-31"}
          ]
        }
      }
    },
    "dei": {
      "EntityRegistrantName": {
        "units": {
          "pure": [
            {"end": "2024-09-28", "val": "Apple Inc.", "accn": "0000320193-24-000123", "fy": 2024, "fp": "FY", "form": "10-K", "filed": "2024-11-01"}
          ]
        }
      }
    }
  }
}`

func TestParseCompanyFacts(t *testing.T) {
	data, err := ParseCompanyFacts(strings.NewReader(sampleFacts))
	require.NoError(t, err)

	assert.Equal(t, "0000320193", data.CIK)
	assert.Equal(t, "Apple Inc.", data.EntityName)
	// The instance without an accession number is skipped.
	require.Len(t, data.Facts, 2)

	var assets, name int
	for i, f := range data.Facts {
		switch f.TagName {
		case "Assets":
			assets = i
		case "EntityRegistrantName":
			name = i
		}
	}

	a := data.Facts[assets]
	assert.Equal(t, "us-gaap", a.Taxonomy)
	assert.Equal(t, "USD", a.Unit)
	require.NotNil(t, a.ValueNumeric)
	assert.Equal(t, 364980000000.0, *a.ValueNumeric)
	assert.Empty(t, a.ValueText)
	assert.Equal(t, 2024, a.FY)
	assert.Equal(t, "CY2024Q3I", a.Frame)
	require.NotNil(t, a.PeriodEnd)
	assert.Equal(t, "2024-09-28", a.PeriodEnd.Format("2006-01-02"))

	n := data.Facts[name]
	assert.Equal(t, "dei", n.Taxonomy)
	assert.Nil(t, n.ValueNumeric)
	assert.Equal(t, "Apple Inc.", n.ValueText)
	assert.Empty(t, n.Frame)
}

func TestSplitValue(t *testing.T) {
	num, text := splitValue([]byte(`12.5`))
	require.NotNil(t, num)
	assert.Equal(t, 12.5, *num)
	assert.Empty(t, text)

	num, text = splitValue([]byte(`"hello"`))
	assert.Nil(t, num)
	assert.Equal(t, "hello", text)

	num, text = splitValue(nil)
	assert.Nil(t, num)
	assert.Empty(t, text)

	num, text = splitValue([]byte(`null`))
	assert.Nil(t, num)
	assert.Empty(t, text)
}

func TestPadCIK(t *testing.T) {
	assert.Equal(t, "0000320193", PadCIK("320193"))
	assert.Equal(t, "0000320193", PadCIK("0000320193"))
	assert.Equal(t, "not-a-cik", PadCIK("not-a-cik"))
}
