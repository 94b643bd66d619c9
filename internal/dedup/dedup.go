// Package dedup guards against concurrent and historical duplicate leads
// using a fast-tier claim plus a durable fingerprint index.
package dedup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cache"
	"github.com/sells-group/leads-cli/internal/store"
)

// DefaultClaimTTL bounds how long an in-flight claim blocks other workers
// processing the same fingerprint.
const DefaultClaimTTL = 5 * time.Minute

// Claim is the outcome of a duplicate check.
type Claim struct {
	IsDuplicate    bool
	ExistingLeadID string
}

// Deduplicator answers "has this tenant already got an active lead with this
// fingerprint". The fast tier catches races between concurrent workers; the
// durable store is consulted by the claim winner. When the fast tier is
// unreachable the check fails open to the durable index alone.
type Deduplicator struct {
	fast     cache.Cache
	store    store.Store
	claimTTL time.Duration
}

// New creates a Deduplicator. A non-positive claimTTL uses DefaultClaimTTL.
func New(fast cache.Cache, st store.Store, claimTTL time.Duration) *Deduplicator {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Deduplicator{fast: fast, store: st, claimTTL: claimTTL}
}

// CheckAndClaim atomically claims the fingerprint for leadID. Exactly one of
// N concurrent callers with the same fingerprint wins; losers get a Claim
// naming the holder. The winner still consults the durable index so leads
// processed before the claim expired are caught.
func (d *Deduplicator) CheckAndClaim(ctx context.Context, tenantID, fingerprint, leadID string) (Claim, error) {
	if fingerprint == "" {
		return Claim{}, nil
	}

	key := claimKey(tenantID, fingerprint)
	set, err := d.fast.SetIfAbsent(ctx, key, leadID, d.claimTTL)
	if err != nil {
		zap.L().Warn("dedup claim unavailable, falling back to durable index",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return d.checkDurable(ctx, tenantID, fingerprint, leadID, false)
	}
	if !set {
		holder, ok, err := d.fast.Get(ctx, key)
		if err == nil && ok && holder != leadID {
			return Claim{IsDuplicate: true, ExistingLeadID: holder}, nil
		}
		// Claim expired between SetIfAbsent and Get, or we already hold it.
		if holder == leadID {
			return d.checkDurable(ctx, tenantID, fingerprint, leadID, false)
		}
	}

	return d.checkDurable(ctx, tenantID, fingerprint, leadID, true)
}

// Release drops the fast-tier claim, letting the next lead with the same
// fingerprint be evaluated against the durable index immediately.
func (d *Deduplicator) Release(ctx context.Context, tenantID, fingerprint string) {
	if fingerprint == "" {
		return
	}
	if err := d.fast.Delete(ctx, claimKey(tenantID, fingerprint)); err != nil {
		zap.L().Warn("dedup claim release failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

func (d *Deduplicator) checkDurable(ctx context.Context, tenantID, fingerprint, leadID string, backfill bool) (Claim, error) {
	existingID, err := d.store.FindActiveLeadByFingerprint(ctx, tenantID, fingerprint)
	if err != nil {
		return Claim{}, err
	}
	if existingID == "" || existingID == leadID {
		return Claim{}, nil
	}

	if backfill {
		// Point the claim at the durable winner so later racers resolve
		// without a store round trip.
		if err := d.fast.SetWithTTL(ctx, claimKey(tenantID, fingerprint), existingID, d.claimTTL); err != nil {
			zap.L().Warn("dedup claim backfill failed", zap.Error(err))
		}
	}
	return Claim{IsDuplicate: true, ExistingLeadID: existingID}, nil
}

func claimKey(tenantID, fingerprint string) string {
	return fmt.Sprintf("dedup:%s:%s", tenantID, fingerprint)
}
