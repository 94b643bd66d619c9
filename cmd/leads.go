package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Ingest and inspect leads",
}

var (
	leadsListTenant string
	leadsListStatus string
	leadsListLimit  int
	leadsListOffset int
)

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "stats")
		if err != nil {
			return err
		}
		defer env.Close()

		leads, err := env.Store.ListLeads(ctx, store.LeadFilter{
			TenantID: leadsListTenant,
			Status:   model.LeadStatus(leadsListStatus),
			Limit:    leadsListLimit,
			Offset:   leadsListOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	},
}

var leadsAddFile string

var leadsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Ingest leads from a JSON file",
	Long:  "Reads a JSON array of lead records and inserts them with status new, ready for batch processing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(leadsAddFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", leadsAddFile)
		}

		var leads []model.Lead
		if err := json.Unmarshal(raw, &leads); err != nil {
			// Single-object files are accepted too.
			var one model.Lead
			if err2 := json.Unmarshal(raw, &one); err2 != nil {
				return eris.Wrap(err, "parse leads file")
			}
			leads = []model.Lead{one}
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		created := make([]string, 0, len(leads))
		for i := range leads {
			lead := leads[i]
			lead.ID = ""
			lead.Status = model.StatusNew
			if lead.TenantID == "" {
				return eris.Errorf("lead %d: tenant_id is required", i)
			}

			saved, err := env.Store.CreateLead(ctx, &lead)
			if err != nil {
				return eris.Wrapf(err, "create lead %d", i)
			}
			created = append(created, saved.ID)
		}

		zap.L().Info("leads ingested", zap.Int("count", len(created)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"created": created})
	},
}

func init() {
	leadsListCmd.Flags().StringVar(&leadsListTenant, "tenant", "", "restrict to one tenant")
	leadsListCmd.Flags().StringVar(&leadsListStatus, "status", "", "filter by status")
	leadsListCmd.Flags().IntVar(&leadsListLimit, "limit", 50, "max leads to return")
	leadsListCmd.Flags().IntVar(&leadsListOffset, "offset", 0, "pagination offset")

	leadsAddCmd.Flags().StringVar(&leadsAddFile, "file", "", "path to a JSON lead file (required)")
	_ = leadsAddCmd.MarkFlagRequired("file")

	leadsCmd.AddCommand(leadsListCmd, leadsAddCmd)
	rootCmd.AddCommand(leadsCmd)
}
