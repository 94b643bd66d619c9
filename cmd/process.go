package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/pipeline"
)

var (
	processLeadID           string
	processSkipEnrichment   bool
	processSkipVerification bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single lead through the pipeline",
	Long:  "Runs one lead through normalize, dedup, enrich, verify, and score, resuming from its current stage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Pipeline.ProcessLead(ctx, processLeadID, pipeline.Options{
			SkipEnrichment:   processSkipEnrichment,
			SkipVerification: processSkipVerification,
		})
		if err != nil {
			return eris.Wrap(err, "process lead")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	processCmd.Flags().StringVar(&processLeadID, "id", "", "lead id to process (required)")
	processCmd.Flags().BoolVar(&processSkipEnrichment, "skip-enrichment", false, "skip the enrichment stage")
	processCmd.Flags().BoolVar(&processSkipVerification, "skip-verification", false, "skip the email verification stage")
	_ = processCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(processCmd)
}
