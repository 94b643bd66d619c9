package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// Summary aggregates the outcome of one batch run.
type Summary struct {
	Processed          int `json:"processed"`
	Errored            int `json:"errored"`
	RejectedDuplicates int `json:"rejected_duplicates"`
	Enriched           int `json:"enriched"`
	Verified           int `json:"verified"`
}

// ProcessBatch runs the pipeline over up to batchSize leads matching the
// filter, in parallel up to the configured worker count. Individual lead
// failures are counted, never aborting the rest of the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, filter store.LeadFilter, batchSize int) (*Summary, error) {
	if batchSize > 0 {
		filter.Limit = batchSize
	}
	if filter.Status == "" {
		filter.Status = model.StatusNormalized
	}

	leads, err := p.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, err
	}

	var processed, errored, rejected, enriched, verified atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, l := range leads {
		leadID := l.ID
		g.Go(func() error {
			lead, outcome, err := p.run(ctx, leadID, Options{})
			processed.Add(1)
			if err != nil {
				errored.Add(1)
				zap.L().Error("lead processing failed",
					zap.String("lead_id", leadID),
					zap.Error(err))
				return nil
			}
			switch lead.Status {
			case model.StatusError:
				errored.Add(1)
			case model.StatusRejectedDuplicate:
				rejected.Add(1)
			}
			if outcome.enriched {
				enriched.Add(1)
			}
			if outcome.verified {
				verified.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		Processed:          int(processed.Load()),
		Errored:            int(errored.Load()),
		RejectedDuplicates: int(rejected.Load()),
		Enriched:           int(enriched.Load()),
		Verified:           int(verified.Load()),
	}
	zap.L().Info("batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("errored", summary.Errored),
		zap.Int("rejected_duplicates", summary.RejectedDuplicates))
	return summary, nil
}
