package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/backlog"
	"github.com/quantlake/edgarsync/internal/cleanup"
	"github.com/quantlake/edgarsync/internal/edgar"
	"github.com/quantlake/edgarsync/internal/gather"
	"github.com/quantlake/edgarsync/internal/ingest"
	"github.com/quantlake/edgarsync/internal/massive"
	"github.com/quantlake/edgarsync/internal/ratelimit"
	"github.com/quantlake/edgarsync/internal/validate"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

var allSkipFetch bool

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the full pipeline in order",
	Long: `Run every stage in dependency order: fetch, parse, load, backlog,
gather (stocks, info, macro, risk), load again, validate, cleanup. The run
aborts at the first stage that fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().Named("all")

		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		type stage struct {
			name string
			run  func(context.Context) error
		}
		stages := []stage{
			{"fetch", func(ctx context.Context) error { return allFetch(ctx) }},
			{"parse", func(ctx context.Context) error { return allParse() }},
			{"load", func(ctx context.Context) error { return allLoad(ctx, w) }},
			{"backlog", func(ctx context.Context) error { return allBacklog(ctx, w) }},
			{"gather", func(ctx context.Context) error { return allGather(ctx, w) }},
			{"load-gathered", func(ctx context.Context) error { return allLoad(ctx, w) }},
			{"validate", func(ctx context.Context) error { return allValidate(ctx, w) }},
			{"cleanup", func(ctx context.Context) error { return allCleanup(ctx, w) }},
		}
		if allSkipFetch {
			stages = stages[1:]
		}

		for _, s := range stages {
			log.Info("stage starting", zap.String("stage", s.name))
			if err := s.run(ctx); err != nil {
				return eris.Wrapf(err, "stage %s", s.name)
			}
			log.Info("stage finished", zap.String("stage", s.name))
		}
		fmt.Println("pipeline complete")
		return nil
	},
}

func allFetch(ctx context.Context) error {
	fetcher := edgar.NewFetcher(cfg.EDGAR)
	for _, a := range []struct{ name, url string }{
		{"submissions", cfg.EDGAR.SubmissionsURL},
		{"companyfacts", cfg.EDGAR.CompanyFactsURL},
	} {
		zipPath := filepath.Join(cfg.Paths.DownloadDir, a.name+".zip")
		if _, err := fetcher.Download(ctx, a.url, zipPath); err != nil {
			return err
		}
		if _, err := edgar.ExtractJSON(zipPath, filepath.Join(cfg.Paths.DownloadDir, a.name)); err != nil {
			return err
		}
	}
	mapPath := filepath.Join(cfg.Paths.DownloadDir, "company_tickers.json")
	_, err := fetcher.Download(ctx, cfg.EDGAR.TickerMapURL, mapPath)
	return err
}

func allParse() error {
	stager := edgar.NewStager(cfg.Paths.ParquetDir)
	if _, err := stager.StageSubmissions(filepath.Join(cfg.Paths.DownloadDir, "submissions"), 0); err != nil {
		return err
	}
	_, err := stager.StageCompanyFacts(filepath.Join(cfg.Paths.DownloadDir, "companyfacts"), 0)
	return err
}

func allLoad(ctx context.Context, w *warehouse.Warehouse) error {
	_, err := ingest.NewService(w, cfg.Paths.ParquetDir).LoadAll(ctx, false)
	return err
}

func allBacklog(ctx context.Context, w *warehouse.Warehouse) error {
	tickers, err := w.ActiveTickers(ctx)
	if err != nil {
		return err
	}
	scorer := backlog.NewScorer(w, cfg.Freshness, cfg.Gather.LookbackYears)
	for _, profile := range []backlog.Profile{backlog.StockProfile, backlog.InfoProfile} {
		if _, err := scorer.Generate(ctx, profile, tickers, profile.Defaults); err != nil {
			return err
		}
	}
	return nil
}

func allGather(ctx context.Context, w *warehouse.Warehouse) error {
	client := massive.NewClient(cfg.Massive, ratelimit.New(cfg.Massive.CallsPerMinute))

	stocks, err := gather.NewStockGatherer(w, client, cfg.Gather, cfg.Freshness, cfg.Paths.ParquetDir).Run(ctx, gather.StockOptions{})
	if err != nil {
		return err
	}
	printSummary("stocks", stocks)

	info, err := gather.NewInfoGatherer(w, client, cfg.Gather, cfg.Freshness, cfg.Paths.ParquetDir).Run(ctx, gather.InfoOptions{})
	if err != nil {
		return err
	}
	printSummary("info", info)

	macro, err := gather.NewMacroGatherer(cfg.FRED, cfg.Paths.ParquetDir).Run(ctx)
	if err != nil {
		return err
	}
	printSummary("macro", macro)

	risk, err := gather.NewRiskFactorGatherer(cfg.RiskFactors, cfg.Paths.ParquetDir).Run(ctx)
	if err != nil {
		return err
	}
	printSummary("risk", risk)
	return nil
}

func allValidate(ctx context.Context, w *warehouse.Warehouse) error {
	report, err := validate.New(w).Run(ctx)
	if err != nil {
		return err
	}
	if report.Failed() {
		return eris.New("validation failed")
	}
	return nil
}

func allCleanup(ctx context.Context, w *warehouse.Warehouse) error {
	c := cleanup.New(w, cfg.Paths.ParquetDir)
	if _, err := c.RemoveLoadedBatches(ctx); err != nil {
		return err
	}
	_, err := c.RemoveStaleDownloads(cfg.Paths.DownloadDir, cleanupMaxAgeDays)
	return err
}

func init() {
	allCmd.Flags().BoolVar(&allSkipFetch, "skip-fetch", false, "reuse existing downloads, skip the fetch stage")
	rootCmd.AddCommand(allCmd)
}
