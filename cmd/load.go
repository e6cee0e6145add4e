package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/ingest"
)

var loadFullRefresh bool

var loadCmd = &cobra.Command{
	Use:   "load [table]",
	Short: "Merge staged batch files into the warehouse",
	Long: `Merge staged parquet batches into the live tables.

Without an argument every batch-loaded table is merged. Files already
recorded in the processed-file log are skipped, so repeated loads are
idempotent. --full-refresh clears the log first and rebuilds through the
snapshot path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		svc := ingest.NewService(w, cfg.Paths.ParquetDir)

		var results []*ingest.Stats
		if len(args) == 1 {
			stats, err := svc.LoadTable(ctx, args[0], loadFullRefresh)
			if err != nil {
				return err
			}
			results = append(results, stats)
		} else {
			results, err = svc.LoadAll(ctx, loadFullRefresh)
			if err != nil {
				return err
			}
		}

		for _, s := range results {
			line := fmt.Sprintf("%s: %d files, %d rows", s.Table, s.FilesLoaded, s.Rows)
			if s.Quarantined > 0 {
				line += fmt.Sprintf(", %d quarantined", s.Quarantined)
			}
			if s.Restored > 0 {
				line += fmt.Sprintf(", %d restored", s.Restored)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadFullRefresh, "full-refresh", false, "replay all batches through the snapshot path")
	rootCmd.AddCommand(loadCmd)
}
