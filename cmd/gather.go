package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/gather"
	"github.com/quantlake/edgarsync/internal/massive"
	"github.com/quantlake/edgarsync/internal/ratelimit"
)

var (
	gatherLimit        int
	gatherStart        string
	gatherEnd          string
	gatherForceRefresh bool
	gatherWorkers      int
	gatherMaxRuntime   int
)

// gatherConfig applies command-line overrides on top of the configured pool.
func gatherConfig() config.GatherConfig {
	gc := cfg.Gather
	if gatherWorkers > 0 {
		gc.Workers = gatherWorkers
	}
	if gatherMaxRuntime > 0 {
		gc.MaxRuntimeHours = gatherMaxRuntime
	}
	return gc
}

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Fetch external data into staged batch files",
}

var gatherStocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "Fetch daily price history for backlog tickers",
	Long: `Work through the stock backlog, fetching only the date intervals the
warehouse is missing for each ticker. Stops dispatching new tickers once the
configured runtime budget is spent; in-flight fetches finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		opts := gather.StockOptions{Limit: gatherLimit}
		if gatherStart != "" {
			t, err := parseDateFlag(gatherStart)
			if err != nil {
				return eris.Wrap(err, "invalid --start")
			}
			opts.Start = &t
		}
		if gatherEnd != "" {
			t, err := parseDateFlag(gatherEnd)
			if err != nil {
				return eris.Wrap(err, "invalid --end")
			}
			opts.End = &t
		}

		client := massive.NewClient(cfg.Massive, ratelimit.New(cfg.Massive.CallsPerMinute))
		g := gather.NewStockGatherer(w, client, gatherConfig(), cfg.Freshness, cfg.Paths.ParquetDir)
		sum, err := g.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSummary("stocks", sum)
		return nil
	},
}

var gatherInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Refresh ticker reference details",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		client := massive.NewClient(cfg.Massive, ratelimit.New(cfg.Massive.CallsPerMinute))
		g := gather.NewInfoGatherer(w, client, gatherConfig(), cfg.Freshness, cfg.Paths.ParquetDir)
		sum, err := g.Run(cmd.Context(), gather.InfoOptions{
			Limit:        gatherLimit,
			ForceRefresh: gatherForceRefresh,
		})
		if err != nil {
			return err
		}
		printSummary("info", sum)
		return nil
	},
}

var gatherMacroCmd = &cobra.Command{
	Use:   "macro",
	Short: "Snapshot the configured FRED macro series",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := gather.NewMacroGatherer(cfg.FRED, cfg.Paths.ParquetDir)
		sum, err := g.Run(cmd.Context())
		if err != nil {
			return err
		}
		printSummary("macro", sum)
		return nil
	},
}

var gatherRiskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Snapshot the daily Fama-French factor series",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := gather.NewRiskFactorGatherer(cfg.RiskFactors, cfg.Paths.ParquetDir)
		sum, err := g.Run(cmd.Context())
		if err != nil {
			return err
		}
		printSummary("risk", sum)
		return nil
	},
}

func parseDateFlag(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func printSummary(name string, s *gather.Summary) {
	fmt.Printf("%s: %d attempted, %d succeeded, %d empty, %d failed, %d untrackable, %d skipped, %d rows in %d batches (%s)\n",
		name, s.Attempted, s.Succeeded, s.Empty, s.Failed, s.Untrackable, s.Skipped,
		s.Rows, s.Batches, s.Elapsed.Round(time.Second))
}

func init() {
	gatherStocksCmd.Flags().IntVar(&gatherLimit, "limit", 0, "gather at most N tickers (0 = all)")
	gatherStocksCmd.Flags().StringVar(&gatherStart, "start", "", "override range start (YYYY-MM-DD)")
	gatherStocksCmd.Flags().StringVar(&gatherEnd, "end", "", "override range end (YYYY-MM-DD)")
	gatherInfoCmd.Flags().IntVar(&gatherLimit, "limit", 0, "gather at most N tickers (0 = all)")
	gatherInfoCmd.Flags().BoolVar(&gatherForceRefresh, "force-refresh", false, "refetch details even when recently fetched")
	for _, c := range []*cobra.Command{gatherStocksCmd, gatherInfoCmd} {
		c.Flags().IntVar(&gatherWorkers, "workers", 0, "override worker count")
		c.Flags().IntVar(&gatherMaxRuntime, "max-runtime", 0, "override runtime budget in hours")
	}

	gatherCmd.AddCommand(gatherStocksCmd, gatherInfoCmd, gatherMacroCmd, gatherRiskCmd)
	rootCmd.AddCommand(gatherCmd)
}
