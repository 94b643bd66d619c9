package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/monitoring"
	"github.com/sells-group/leads-cli/internal/schedule"
	"github.com/sells-group/leads-cli/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the recurring pipeline jobs",
	Long:  "Starts the batch, retention, cache purge, and alerting jobs on their configured intervals and blocks until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		jobs := []schedule.Job{
			{
				Name:  "pipeline_batch",
				Every: time.Duration(cfg.Schedule.BatchIntervalMins) * time.Minute,
				Run: func(ctx context.Context) error {
					summary, err := env.Pipeline.ProcessBatch(ctx, store.LeadFilter{
						Status: model.StatusNormalized,
					}, cfg.Batch.Size)
					if err != nil {
						return err
					}
					zap.L().Info("scheduled batch done",
						zap.Int("processed", summary.Processed),
						zap.Int("errored", summary.Errored))
					return nil
				},
			},
			{
				Name:  "retention_sweep",
				Every: time.Duration(cfg.Schedule.RetentionIntervalHrs) * time.Hour,
				Run: func(ctx context.Context) error {
					cutoff := time.Now().AddDate(0, 0, -cfg.Pipeline.RetentionDays)
					n, err := env.Store.ArchiveStaleErrorLeads(ctx, cutoff)
					if err != nil {
						return err
					}
					if n > 0 {
						zap.L().Info("archived stale error leads", zap.Int("count", n))
					}
					return nil
				},
			},
			{
				Name:  "cache_purge",
				Every: time.Duration(cfg.Schedule.CachePurgeIntervalHrs) * time.Hour,
				Run: func(ctx context.Context) error {
					n, err := env.Store.DeleteExpiredCacheEntries(ctx)
					if err != nil {
						return err
					}
					if n > 0 {
						zap.L().Info("purged expired cache entries", zap.Int("count", n))
					}
					return nil
				},
			},
		}

		if cfg.Monitoring.WebhookURL != "" {
			collector := monitoring.NewCollector(env.Store, env.Enricher)
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			jobs = append(jobs, schedule.Job{
				Name:  "alert_check",
				Every: time.Duration(cfg.Monitoring.CheckIntervalSecs) * time.Second,
				Run: func(ctx context.Context) error {
					snap, err := collector.Collect(ctx, "", cfg.Monitoring.LookbackWindowHours)
					if err != nil {
						return err
					}
					alerts := alerter.Evaluate(snap)
					if len(alerts) > 0 {
						alerter.SendAlerts(ctx, alerts)
					}
					return nil
				},
			})
		} else {
			zap.L().Debug("alerting disabled, no webhook URL")
		}

		sched := schedule.New(jobs...)
		sched.Start(ctx)
		zap.L().Info("scheduler started", zap.Int("jobs", len(jobs)))

		<-ctx.Done()
		zap.L().Info("shutting down, draining jobs")
		sched.Stop()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
