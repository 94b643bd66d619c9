// Package schedule runs named recurring jobs on independent tickers with
// per-job single-flight: a job still running when its ticker fires again is
// skipped, never stacked.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a named recurring task.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler owns a set of jobs and their tickers.
type Scheduler struct {
	jobs []*runningJob

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type runningJob struct {
	job      Job
	inFlight atomic.Bool
	runs     atomic.Int64
	skips    atomic.Int64
}

// New creates a Scheduler for the given jobs. Jobs with a non-positive
// interval are rejected by Start.
func New(jobs ...Job) *Scheduler {
	s := &Scheduler{}
	for _, j := range jobs {
		s.jobs = append(s.jobs, &runningJob{job: j})
	}
	return s
}

// Start launches one ticker goroutine per job. It returns immediately;
// jobs run until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, rj := range s.jobs {
		if rj.job.Every <= 0 {
			zap.L().Warn("job has no interval, not scheduling",
				zap.String("job", rj.job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, rj)
	}
}

// Stop cancels all tickers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// JobStats reports per-job run and skip counts.
type JobStats struct {
	Name  string `json:"name"`
	Runs  int64  `json:"runs"`
	Skips int64  `json:"skips"`
}

// Stats returns run counters for every job, in registration order.
func (s *Scheduler) Stats() []JobStats {
	out := make([]JobStats, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, JobStats{
			Name:  rj.job.Name,
			Runs:  rj.runs.Load(),
			Skips: rj.skips.Load(),
		})
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, rj *runningJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(rj.job.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, rj)
		}
	}
}

// fire runs the job unless a previous run is still in flight.
func (s *Scheduler) fire(ctx context.Context, rj *runningJob) {
	if !rj.inFlight.CompareAndSwap(false, true) {
		rj.skips.Add(1)
		zap.L().Warn("job still running, skipping this fire",
			zap.String("job", rj.job.Name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer rj.inFlight.Store(false)

		start := time.Now()
		rj.runs.Add(1)
		if err := rj.job.Run(ctx); err != nil {
			zap.L().Error("job failed",
				zap.String("job", rj.job.Name),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
			return
		}
		zap.L().Debug("job complete",
			zap.String("job", rj.job.Name),
			zap.Duration("took", time.Since(start)))
	}()
}
