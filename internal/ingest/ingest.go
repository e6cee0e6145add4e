// Package ingest merges staged batch files into the warehouse. It is the
// only bridge between the append-only parquet directories the gatherers
// write and the live tables readers query.
//
// Ingestion is idempotent: every merged file lands in the processed-file
// log and is skipped on later runs. A full refresh forgets the log first
// and forces the snapshot path, rebuilding the table from all batches.
package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// Stats summarizes one table's load.
type Stats struct {
	Table        string
	FilesLoaded  int
	FilesSkipped int
	Rows         int
	Quarantined  int
	Restored     int
}

// Service loads staged batches table by table.
type Service struct {
	w      *warehouse.Warehouse
	loader *warehouse.Loader
	dir    string
	log    *zap.Logger
	now    func() time.Time
}

func NewService(w *warehouse.Warehouse, parquetDir string) *Service {
	return &Service{
		w:      w,
		loader: warehouse.NewLoader(w),
		dir:    parquetDir,
		log:    zap.L().Named("ingest"),
		now:    time.Now,
	}
}

// LoadTable merges all unprocessed batch files for one table. With
// fullRefresh the processed-file log is cleared first and every batch is
// replayed through the snapshot path.
func (s *Service) LoadTable(ctx context.Context, table string, fullRefresh bool) (*Stats, error) {
	switch table {
	case "companies":
		return loadTyped[batchfile.CompanyRow](ctx, s, table, fullRefresh)
	case "tickers":
		return loadTyped[batchfile.TickerRow](ctx, s, table, fullRefresh)
	case "former_names":
		return loadTyped[batchfile.FormerNameRow](ctx, s, table, fullRefresh)
	case "filings":
		return s.loadFilings(ctx, fullRefresh)
	case "xbrl_facts":
		return s.loadFacts(ctx, fullRefresh)
	case "stock_history":
		return loadTyped[batchfile.BarRow](ctx, s, table, fullRefresh)
	case "stock_fetch_errors":
		return loadTyped[batchfile.ErrorRow](ctx, s, table, fullRefresh)
	case "updated_ticker_info":
		return loadTyped[batchfile.InfoRow](ctx, s, table, fullRefresh)
	case "macro_economic_data":
		return loadTyped[batchfile.MacroRow](ctx, s, table, fullRefresh)
	case "market_risk_factors":
		return loadTyped[batchfile.RiskRow](ctx, s, table, fullRefresh)
	default:
		return nil, eris.Errorf("ingest: no batch loader for table %q", table)
	}
}

// LoadAll merges every batch-loaded table in registry order. A swap-guard
// abort is contained to its table: the live data stays, the batch files stay
// unprocessed for operator inspection, and the remaining tables still load.
func (s *Service) LoadAll(ctx context.Context, fullRefresh bool) ([]*Stats, error) {
	var out []*Stats
	for _, spec := range warehouse.BatchTables() {
		if spec.Name == "xbrl_facts_orphaned" {
			// Quarantine is maintained by the fact load, never from files.
			continue
		}
		stats, err := s.LoadTable(ctx, spec.Name, fullRefresh)
		if err != nil {
			if warehouse.IsSwapGuard(err) {
				s.log.Error("snapshot swap aborted, keeping live table",
					zap.String("table", spec.Name),
					zap.Error(err))
				continue
			}
			return out, err
		}
		out = append(out, stats)
	}
	return out, nil
}

// loadFilings loads filing batches and then restores any quarantined facts
// whose filings just arrived.
func (s *Service) loadFilings(ctx context.Context, fullRefresh bool) (*Stats, error) {
	stats, err := loadTyped[batchfile.FilingRow](ctx, s, "filings", fullRefresh)
	if err != nil {
		return nil, err
	}
	restored, err := s.w.RestoreOrphanFacts(ctx)
	if err != nil {
		return nil, err
	}
	stats.Restored = int(restored)
	return stats, nil
}

// loadFacts loads fact batches and then quarantines rows whose accession
// number has no matching filing yet.
func (s *Service) loadFacts(ctx context.Context, fullRefresh bool) (*Stats, error) {
	stats, err := loadTyped[batchfile.FactRow](ctx, s, "xbrl_facts", fullRefresh)
	if err != nil {
		return nil, err
	}
	quarantined, err := s.w.QuarantineOrphanFacts(ctx)
	if err != nil {
		return nil, err
	}
	stats.Quarantined = int(quarantined)
	return stats, nil
}

func loadTyped[T batchfile.Row](ctx context.Context, s *Service, table string, fullRefresh bool) (*Stats, error) {
	stats := &Stats{Table: table}

	if fullRefresh {
		if err := s.w.ForgetProcessedFiles(ctx, table); err != nil {
			return nil, err
		}
	}

	files, err := batchfile.ListBatches(s.dir, table)
	if err != nil {
		return nil, err
	}
	processed, err := s.w.ProcessedFiles(ctx, table)
	if err != nil {
		return nil, err
	}

	// A snapshot table replaces its live data wholesale, so all pending
	// batches must land in one staged load rather than one swap per file.
	spec, err := warehouse.Lookup(table)
	if err != nil {
		return nil, err
	}
	snapshot := spec.Strategy == warehouse.StrategySnapshotSwap || fullRefresh

	var pending []string
	for _, file := range files {
		if _, done := processed[filepath.Base(file)]; done {
			stats.FilesSkipped++
			continue
		}
		pending = append(pending, file)
	}
	if len(pending) == 0 {
		s.log.Info("no new batches", zap.String("table", table),
			zap.Int("skipped", stats.FilesSkipped))
		return stats, nil
	}

	if snapshot {
		var all [][]any
		for _, file := range pending {
			rows, err := readValues[T](file)
			if err != nil {
				return nil, err
			}
			all = append(all, rows...)
		}
		if err := s.loader.Load(ctx, table, all, fullRefresh); err != nil {
			return nil, err
		}
		stats.Rows = len(all)
	} else {
		for _, file := range pending {
			rows, err := readValues[T](file)
			if err != nil {
				return nil, err
			}
			if err := s.loader.Load(ctx, table, rows, false); err != nil {
				return nil, err
			}
			stats.Rows += len(rows)
		}
	}

	now := s.now()
	for _, file := range pending {
		if err := s.w.MarkFileProcessed(ctx, table, filepath.Base(file), now); err != nil {
			return nil, err
		}
		stats.FilesLoaded++
	}

	s.log.Info("table loaded",
		zap.String("table", table),
		zap.Int("files", stats.FilesLoaded),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("rows", stats.Rows))
	return stats, nil
}

func readValues[T batchfile.Row](file string) ([][]any, error) {
	rows, err := batchfile.ReadBatch[T](file)
	if err != nil {
		return nil, err
	}
	return batchfile.ToValues(rows), nil
}
