package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "edgarsync",
	Short: "Incremental SEC EDGAR and market-data warehouse",
	Long:  "Downloads SEC bulk archives, gathers market data by freshness priority, and merges everything into a local analytical warehouse.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openWarehouse opens the configured database and applies migrations.
func openWarehouse(cmd *cobra.Command) (*warehouse.Warehouse, error) {
	w, err := warehouse.Open(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	if err := w.Migrate(cmd.Context()); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
