package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

var (
	batchTenant string
	batchStatus string
	batchLimit  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process a batch of leads",
	Long:  "Lists leads awaiting processing and runs them through the pipeline with a bounded worker pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Batch.Size
		}

		summary, err := env.Pipeline.ProcessBatch(ctx, store.LeadFilter{
			TenantID: batchTenant,
			Status:   model.LeadStatus(batchStatus),
		}, limit)
		if err != nil {
			return eris.Wrap(err, "process batch")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTenant, "tenant", "", "restrict the batch to one tenant")
	batchCmd.Flags().StringVar(&batchStatus, "status", "", "lead status to pick up (default: normalized)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max leads this batch (default: batch.size)")

	rootCmd.AddCommand(batchCmd)
}
