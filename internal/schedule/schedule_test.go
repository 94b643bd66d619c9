package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobOnInterval(t *testing.T) {
	var runs atomic.Int64
	s := New(Job{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestScheduler_OverlappingFireSkipped(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	s := New(Job{
		Name:  "slow",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			started.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	// Only one run started despite many ticks; the rest were skipped.
	assert.Equal(t, int64(1), started.Load())
	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Runs)
	assert.GreaterOrEqual(t, stats[0].Skips, int64(3))

	close(release)
	s.Stop()
}

func TestScheduler_StopDrainsInFlightRun(t *testing.T) {
	done := make(chan struct{})
	s := New(Job{
		Name:  "drain",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			close(done)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the in-flight run finished")
	}
}

func TestScheduler_IndependentJobs(t *testing.T) {
	var fast, slow atomic.Int64
	block := make(chan struct{})
	s := New(
		Job{Name: "fast", Every: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "slow", Every: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			slow.Add(1)
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil
		}},
	)

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	close(block)
	s.Stop()

	// A stuck job never starves its siblings.
	assert.GreaterOrEqual(t, fast.Load(), int64(3))
	assert.Equal(t, int64(1), slow.Load())
}

func TestScheduler_JobErrorDoesNotStopTicker(t *testing.T) {
	var runs atomic.Int64
	s := New(Job{
		Name:  "flaky",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return eris.New("boom")
		},
	})

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestScheduler_ZeroIntervalJobNotScheduled(t *testing.T) {
	var runs atomic.Int64
	s := New(Job{
		Name: "never",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Zero(t, runs.Load())
}

func TestScheduler_DoubleStartIsNoop(t *testing.T) {
	var runs atomic.Int64
	s := New(Job{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	// A second Start must not double the tick rate.
	assert.LessOrEqual(t, runs.Load(), int64(6))
}
