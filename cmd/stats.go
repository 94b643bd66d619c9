package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/monitoring"
)

var (
	statsTenant   string
	statsLookback int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print pipeline metrics",
	Long:  "Collects lead counts, error rate, fit score average, cache totals, and enrichment spend for the lookback window.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "stats")
		if err != nil {
			return err
		}
		defer env.Close()

		lookback := statsLookback
		if lookback <= 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(env.Store, env.Enricher).Collect(ctx, statsTenant, lookback)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsTenant, "tenant", "", "restrict stats to one tenant")
	statsCmd.Flags().IntVar(&statsLookback, "lookback", 0, "lookback window in hours (default: monitoring.lookback_window_hours)")

	rootCmd.AddCommand(statsCmd)
}
