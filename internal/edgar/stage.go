package edgar

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/batchfile"
)

// defaultChunkRows bounds the size of a single parquet batch so a full
// bulk-archive parse never holds every row in memory at once.
const defaultChunkRows = 250_000

// StageStats summarizes one staging run.
type StageStats struct {
	FilesParsed  int
	FilesSkipped int
	Rows         map[string]int
	Batches      []string
}

// Stager turns extracted EDGAR JSON files into typed parquet batches under
// the parquet directory, one subdirectory per warehouse table.
type Stager struct {
	parquetDir string
	chunkRows  int
	log        *zap.Logger
	now        func() time.Time
}

func NewStager(parquetDir string) *Stager {
	return &Stager{
		parquetDir: parquetDir,
		chunkRows:  defaultChunkRows,
		log:        zap.L().Named("stage"),
		now:        time.Now,
	}
}

// StageSubmissions parses every submission JSON under dir and stages
// company, ticker, former-name, and filing batches. Files that fail to
// parse are counted and skipped, not fatal. limit <= 0 means all files.
func (s *Stager) StageSubmissions(dir string, limit int) (*StageStats, error) {
	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	stats := newStageStats()
	var (
		companies []batchfile.CompanyRow
		tickers   []batchfile.TickerRow
		former    []batchfile.FormerNameRow
		filings   []batchfile.FilingRow
	)

	flush := func() error {
		if err := flushRows(s, stats, "companies", &companies); err != nil {
			return err
		}
		if err := flushRows(s, stats, "tickers", &tickers); err != nil {
			return err
		}
		if err := flushRows(s, stats, "former_names", &former); err != nil {
			return err
		}
		return flushRows(s, stats, "filings", &filings)
	}

	for _, path := range files {
		data, err := s.parseSubmissionFile(path)
		if err != nil {
			s.log.Warn("skipping unparseable submission file",
				zap.String("file", path), zap.Error(err))
			stats.FilesSkipped++
			continue
		}
		stats.FilesParsed++

		companies = append(companies, batchfile.FromCompany(data.Company))
		for _, t := range data.Tickers {
			tickers = append(tickers, batchfile.FromTicker(t))
		}
		for _, fn := range data.FormerNames {
			former = append(former, batchfile.FromFormerName(fn))
		}
		for _, f := range data.Filings {
			filings = append(filings, batchfile.FromFiling(f))
		}

		if len(filings) >= s.chunkRows {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	s.log.Info("staged submissions",
		zap.Int("files", stats.FilesParsed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("filings", stats.Rows["filings"]))
	return stats, nil
}

// StageCompanyFacts parses every companyfacts JSON under dir into xbrl_facts
// batches. limit <= 0 means all files.
func (s *Stager) StageCompanyFacts(dir string, limit int) (*StageStats, error) {
	files, err := listJSON(dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	stats := newStageStats()
	var facts []batchfile.FactRow

	for _, path := range files {
		data, err := s.parseFactsFile(path)
		if err != nil {
			s.log.Warn("skipping unparseable companyfacts file",
				zap.String("file", path), zap.Error(err))
			stats.FilesSkipped++
			continue
		}
		stats.FilesParsed++

		for _, f := range data.Facts {
			facts = append(facts, batchfile.FromFact(f))
		}

		if len(facts) >= s.chunkRows {
			if err := flushRows(s, stats, "xbrl_facts", &facts); err != nil {
				return nil, err
			}
		}
	}
	if err := flushRows(s, stats, "xbrl_facts", &facts); err != nil {
		return nil, err
	}

	s.log.Info("staged company facts",
		zap.Int("files", stats.FilesParsed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("facts", stats.Rows["xbrl_facts"]))
	return stats, nil
}

func (s *Stager) parseSubmissionFile(path string) (*SubmissionData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: open %s", path)
	}
	defer f.Close()
	return ParseSubmission(f, s.now())
}

func (s *Stager) parseFactsFile(path string) (*FactsData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: open %s", path)
	}
	defer f.Close()
	return ParseCompanyFacts(f)
}

func flushRows[T any](s *Stager, stats *StageStats, table string, rows *[]T) error {
	if len(*rows) == 0 {
		return nil
	}
	path, err := batchfile.WriteBatch(s.parquetDir, table, *rows, s.now())
	if err != nil {
		return eris.Wrapf(err, "edgar: stage %s batch", table)
	}
	stats.Rows[table] += len(*rows)
	stats.Batches = append(stats.Batches, path)
	*rows = (*rows)[:0]
	return nil
}

func newStageStats() *StageStats {
	return &StageStats{Rows: make(map[string]int)}
}

// listJSON returns the JSON files directly under dir in a deterministic
// order so staging runs are reproducible.
func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: read extract dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
