package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

func newSeededStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s store.Store, email string, status model.LeadStatus, fit *float64) {
	t.Helper()
	_, err := s.CreateLead(context.Background(), &model.Lead{
		TenantID: "tenant-1",
		Email:    email,
		Status:   status,
		FitScore: fit,
	})
	require.NoError(t, err)
}

func fitScore(v float64) *float64 { return &v }

func TestCollector_Collect(t *testing.T) {
	s := newSeededStore(t)
	seed(t, s, "a@one.example", model.StatusPendingReview, fitScore(90))
	seed(t, s, "b@two.example", model.StatusPendingReview, fitScore(60))
	seed(t, s, "c@three.example", model.StatusError, nil)
	seed(t, s, "d@four.example", model.StatusNew, nil)
	seed(t, s, "e@five.example", model.StatusRejectedDuplicate, nil)

	snap, err := NewCollector(s, nil).Collect(context.Background(), "tenant-1", 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.LeadTotal)
	assert.Equal(t, 2, snap.StatusCounts[model.StatusPendingReview])
	assert.Equal(t, 1, snap.StatusCounts[model.StatusError])
	assert.Equal(t, 1, snap.StatusCounts[model.StatusNew])
	// 1 errored out of 4 settled (error + 2 pending_review + rejected).
	assert.InDelta(t, 0.25, snap.ErrorRate, 0.001)
	assert.InDelta(t, 75.0, snap.AvgFitScore, 0.001)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_EmptyStore(t *testing.T) {
	s := newSeededStore(t)

	snap, err := NewCollector(s, nil).Collect(context.Background(), "tenant-1", 24)
	require.NoError(t, err)

	assert.Zero(t, snap.LeadTotal)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.AvgFitScore)
	assert.Zero(t, snap.CacheEntries)
}

func TestCollector_IncludesCacheStats(t *testing.T) {
	s := newSeededStore(t)
	require.NoError(t, s.SaveCacheEntry(context.Background(), &model.CacheEntry{
		TenantID:  "tenant-1",
		CacheType: model.CacheTypeCompanyEnrichment,
		KeyHash:   "deadbeef",
		Data:      model.FieldBag{model.FieldIndustry: "SaaS"},
		CostUSD:   0.002,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	snap, err := NewCollector(s, nil).Collect(context.Background(), "tenant-1", 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CacheEntries)
	assert.InDelta(t, 0.002, snap.CacheCostUSD, 1e-9)
}

func TestCollector_ScopedToTenant(t *testing.T) {
	s := newSeededStore(t)
	seed(t, s, "a@one.example", model.StatusPendingReview, fitScore(90))
	_, err := s.CreateLead(context.Background(), &model.Lead{
		TenantID: "tenant-2",
		Email:    "b@two.example",
		Status:   model.StatusError,
	})
	require.NoError(t, err)

	snap, err := NewCollector(s, nil).Collect(context.Background(), "tenant-1", 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.LeadTotal)
	assert.Zero(t, snap.StatusCounts[model.StatusError])
}
