package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/edgar"
)

var parseLimit int

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse extracted EDGAR JSON into batch files",
	Long: `Parse the extracted submissions and company-facts JSON into typed
parquet batches under the parquet directory, one subdirectory per table.
The load stage merges those batches into the warehouse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stager := edgar.NewStager(cfg.Paths.ParquetDir)

		subStats, err := stager.StageSubmissions(
			filepath.Join(cfg.Paths.DownloadDir, "submissions"), parseLimit)
		if err != nil {
			return err
		}
		fmt.Printf("submissions: %d files parsed, %d skipped, %d filings staged\n",
			subStats.FilesParsed, subStats.FilesSkipped, subStats.Rows["filings"])

		factStats, err := stager.StageCompanyFacts(
			filepath.Join(cfg.Paths.DownloadDir, "companyfacts"), parseLimit)
		if err != nil {
			return err
		}
		fmt.Printf("companyfacts: %d files parsed, %d skipped, %d facts staged\n",
			factStats.FilesParsed, factStats.FilesSkipped, factStats.Rows["xbrl_facts"])
		return nil
	},
}

func init() {
	parseCmd.Flags().IntVar(&parseLimit, "limit", 0, "parse at most N files per archive (0 = all)")
	rootCmd.AddCommand(parseCmd)
}
