package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/cleanup"
)

var cleanupMaxAgeDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove loaded batch files and stale downloads",
	Long: `Delete parquet batches already recorded in the processed-file log and
downloaded archives older than the retention window. Unprocessed batches are
always kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		c := cleanup.New(w, cfg.Paths.ParquetDir)
		stats, err := c.RemoveLoadedBatches(ctx)
		if err != nil {
			return err
		}
		dlStats, err := c.RemoveStaleDownloads(cfg.Paths.DownloadDir, cleanupMaxAgeDays)
		if err != nil {
			return err
		}

		fmt.Printf("cleanup: %d batches removed, %d kept, %d downloads removed\n",
			stats.BatchesRemoved, stats.BatchesKept, dlStats.DownloadsRemoved)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "max-age-days", 30, "remove downloads older than this (0 disables)")
	rootCmd.AddCommand(cleanupCmd)
}
