package gather

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
)

const factorCSV = `This file was created using the 202506 CRSP database.
The Tt-1 to T returns include dividends and capital gains.

,Mkt-RF,SMB,HML,RMW,CMA,RF
20250601,0.55,-0.12,0.33,0.08,-0.02,0.018
20250602,-0.21,0.05,-0.14,0.11,0.04,0.018
not-a-date,1,2,3,4,5,6
20250603,0.10,0.02,0.01,0.00,0.03,0.018

Copyright 2025 Kenneth R. French
`

func factorZip(t *testing.T, csvName, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(csvName)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRiskFactorRunParsesDailyFile(t *testing.T) {
	archive := factorZip(t, "F-F_Research_Data_5_Factors_2x3_daily.CSV", factorCSV)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dir := t.TempDir()
	g := NewRiskFactorGatherer(config.RiskFactorsConfig{
		URL:         srv.URL,
		FactorModel: "ff5_daily",
	}, dir)
	g.now = func() time.Time { return testNow }

	sum, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, 1, sum.Batches)

	files, err := batchfile.ListBatches(dir, "market_risk_factors")
	require.NoError(t, err)
	require.Len(t, files, 1)
	rows, err := batchfile.ReadBatch[batchfile.RiskRow](files[0])
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "2025-06-01", rows[0].Date)
	assert.Equal(t, "ff5_daily", rows[0].FactorModel)
	assert.Equal(t, 0.55, rows[0].MktRF)
	assert.Equal(t, -0.12, rows[0].SMB)
	assert.Equal(t, 0.018, rows[0].RF)
	assert.Equal(t, "2025-06-03", rows[2].Date)
}

func TestRiskFactorRunNoCSVMember(t *testing.T) {
	archive := factorZip(t, "readme.txt", "nothing here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	g := NewRiskFactorGatherer(config.RiskFactorsConfig{URL: srv.URL}, t.TempDir())
	_, err := g.Run(context.Background())
	require.Error(t, err)
}

func TestRiskFactorRunEmptyDataReturnsError(t *testing.T) {
	archive := factorZip(t, "factors.csv", "just a header line\nno data rows\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	g := NewRiskFactorGatherer(config.RiskFactorsConfig{URL: srv.URL}, t.TempDir())
	_, err := g.Run(context.Background())
	require.Error(t, err)
}

func TestRiskFactorRunDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewRiskFactorGatherer(config.RiskFactorsConfig{URL: srv.URL}, t.TempDir())
	_, err := g.Run(context.Background())
	require.Error(t, err)
}
