package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/backlog"
)

var (
	backlogProfile     string
	backlogWeights     string
	backlogWeightsFile string
	backlogShow        int
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Rank tickers by fetch priority",
	Long: `Score every known ticker against warehouse coverage and persist the
full ranked set. The stock profile prioritizes price-history backfills; the
info profile prioritizes reference-detail refreshes.

Weights can be tuned inline (--weights "stock_data_need=0.6,xbrl_richness=0.2")
or from a YAML file; unspecified components keep their defaults and the set
is normalized to sum to one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var profile backlog.Profile
		switch backlogProfile {
		case "stock":
			profile = backlog.StockProfile
		case "info":
			profile = backlog.InfoProfile
		default:
			return eris.Errorf("unknown profile %q (want stock or info)", backlogProfile)
		}

		weights := profile.Defaults
		var err error
		switch {
		case backlogWeights != "" && backlogWeightsFile != "":
			return eris.New("--weights and --weights-file are mutually exclusive")
		case backlogWeights != "":
			weights, err = backlog.ParseWeights(backlogWeights, profile)
		case backlogWeightsFile != "":
			weights, err = backlog.LoadWeightsFile(backlogWeightsFile, profile)
		}
		if err != nil {
			return err
		}

		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		tickers, err := w.ActiveTickers(ctx)
		if err != nil {
			return err
		}

		scorer := backlog.NewScorer(w, cfg.Freshness, cfg.Gather.LookbackYears)
		entries, err := scorer.Generate(ctx, profile, tickers, weights)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d tickers ranked\n", profile.Name, len(entries))
		for i, e := range entries {
			if i >= backlogShow {
				break
			}
			fmt.Printf("%4d. %-8s score=%.4f need=%.0f staleness=%dd records=%d\n",
				e.Rank, e.Ticker, e.Score, e.NeedScore, e.StalenessDays, e.RecordCount)
		}
		return nil
	},
}

func init() {
	backlogCmd.Flags().StringVar(&backlogProfile, "profile", "stock", "prioritization profile: stock or info")
	backlogCmd.Flags().StringVar(&backlogWeights, "weights", "", "inline weight overrides, comma-separated key=value")
	backlogCmd.Flags().StringVar(&backlogWeightsFile, "weights-file", "", "YAML file of weight overrides")
	backlogCmd.Flags().IntVar(&backlogShow, "show", 10, "print the top N entries")
	rootCmd.AddCommand(backlogCmd)
}
