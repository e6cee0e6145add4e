package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/edgar"
)

var fetchSkipExtract bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the SEC bulk archives",
	Long: `Download the submissions and company-facts bulk archives.

Each archive is fetched only when the server copy is newer than the local
one, then its JSON members are extracted for the parse stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "fetch"))

		fetcher := edgar.NewFetcher(cfg.EDGAR)
		archives := []struct {
			name string
			url  string
		}{
			{"submissions", cfg.EDGAR.SubmissionsURL},
			{"companyfacts", cfg.EDGAR.CompanyFactsURL},
		}

		for _, a := range archives {
			zipPath := filepath.Join(cfg.Paths.DownloadDir, a.name+".zip")
			fetched, err := fetcher.Download(ctx, a.url, zipPath)
			if err != nil {
				return err
			}
			if !fetched && !fetchSkipExtract {
				log.Info("archive unchanged, extracting anyway in case of a partial prior run",
					zap.String("archive", a.name))
			}
			if fetchSkipExtract {
				continue
			}
			extractDir := filepath.Join(cfg.Paths.DownloadDir, a.name)
			files, err := edgar.ExtractJSON(zipPath, extractDir)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d JSON files extracted\n", a.name, len(files))
		}

		// The ticker map is a single JSON file, no extraction needed.
		mapPath := filepath.Join(cfg.Paths.DownloadDir, "company_tickers.json")
		if _, err := fetcher.Download(ctx, cfg.EDGAR.TickerMapURL, mapPath); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchSkipExtract, "skip-extract", false, "download only, do not extract")
	rootCmd.AddCommand(fetchCmd)
}
