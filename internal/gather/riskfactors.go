package gather

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/model"
)

// RiskFactorGatherer downloads a published factor-model dataset (a zipped
// CSV) and stages the full history as one snapshot batch.
type RiskFactorGatherer struct {
	cfg  config.RiskFactorsConfig
	http *http.Client
	dir  string
	log  *zap.Logger
	now  func() time.Time
}

func NewRiskFactorGatherer(cfg config.RiskFactorsConfig, parquetDir string) *RiskFactorGatherer {
	return &RiskFactorGatherer{
		cfg:  cfg,
		http: &http.Client{Timeout: 2 * time.Minute},
		dir:  parquetDir,
		log:  zap.L().Named("gather.riskfactors"),
		now:  time.Now,
	}
}

// Run downloads the archive, parses the factor CSV, and writes one snapshot
// batch for the market_risk_factors table.
func (g *RiskFactorGatherer) Run(ctx context.Context) (*Summary, error) {
	started := g.now()

	archive, err := g.download(ctx)
	if err != nil {
		return nil, err
	}

	factors, err := g.parseArchive(archive)
	if err != nil {
		return nil, err
	}
	if len(factors) == 0 {
		return nil, eris.New("gather: factor archive produced no rows")
	}

	rows := make([]batchfile.RiskRow, 0, len(factors))
	for _, f := range factors {
		rows = append(rows, batchfile.FromRiskFactor(f))
	}
	if _, err := batchfile.WriteBatch(g.dir, "market_risk_factors", rows, g.now()); err != nil {
		return nil, eris.Wrap(err, "gather: write risk factor batch")
	}

	sum := &Summary{
		Attempted: 1,
		Succeeded: 1,
		Rows:      len(rows),
		Batches:   1,
		Elapsed:   g.now().Sub(started),
	}
	g.log.Info("risk factor gather finished", sum.logFields()...)
	return sum, nil
}

func (g *RiskFactorGatherer) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gather: build factor request")
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "gather: get %s", g.cfg.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("gather: get %s: status %d", g.cfg.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gather: read factor archive")
	}
	return body, nil
}

func (g *RiskFactorGatherer) parseArchive(archive []byte) ([]model.RiskFactor, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, eris.Wrap(err, "gather: open factor archive")
	}
	for _, member := range zr.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".csv") {
			continue
		}
		f, err := member.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "gather: open member %s", member.Name)
		}
		defer f.Close()
		return g.parseCSV(f)
	}
	return nil, eris.New("gather: no csv member in factor archive")
}

// parseCSV reads the factor file, which carries a free-text preamble before
// the data section. Rows are identified by an 8-digit YYYYMMDD first field;
// everything else (headers, annual summaries, copyright footer) is skipped.
// The feed is published as Windows-1252, not UTF-8.
func (g *RiskFactorGatherer) parseCSV(r io.Reader) ([]model.RiskFactor, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.Windows1252.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.RiskFactor
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Preamble lines with stray quotes are not data.
			continue
		}
		if len(record) < 7 {
			continue
		}
		date, ok := parseFactorDate(strings.TrimSpace(record[0]))
		if !ok {
			continue
		}
		vals := make([]float64, 0, 6)
		bad := false
		for _, field := range record[1:7] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				bad = true
				break
			}
			vals = append(vals, v)
		}
		if bad {
			continue
		}
		out = append(out, model.RiskFactor{
			Date:        date,
			FactorModel: g.cfg.FactorModel,
			MktRF:       vals[0],
			SMB:         vals[1],
			HML:         vals[2],
			RMW:         vals[3],
			CMA:         vals[4],
			RF:          vals[5],
		})
	}
	return out, nil
}

func parseFactorDate(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
