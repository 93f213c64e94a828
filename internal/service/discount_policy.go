package service

import (
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
)

// Discount tiers in basis points. These are fixed constants rather than
// configuration: the rate consulted when selecting batches and the rate
// consulted when deducting must always be computed by the same table.
const (
	expiryGuardDays = 14 // No discount on a batch about to lapse
	earlyTierMaxAge = 30 // Days since issue for the top rate
	midTierMaxAge   = 60

	earlyTierBps = 1000 // 10%
	midTierBps   = 700  // 7%
	lateTierBps  = 500  // 5%
)

// TieredDiscountPolicy implements ports.DiscountPolicy with the age-based
// tier table. The discount decays as the batch ages and drops to zero
// inside the 14-day window before expiry, so a batch that is about to
// lapse cannot be spent at a rate it can no longer earn back.
type TieredDiscountPolicy struct{}

// NewTieredDiscountPolicy creates the standard tiered policy.
func NewTieredDiscountPolicy() *TieredDiscountPolicy {
	return &TieredDiscountPolicy{}
}

// DiscountBps returns the batch's usage discount at now, in basis points.
// Pure function of (issued-at, expires-at, now).
func (p *TieredDiscountPolicy) DiscountBps(batch *domain.Batch, now time.Time) int64 {
	daysLeft := wholeDays(batch.ExpiresAt.Sub(now))
	if daysLeft <= expiryGuardDays {
		return 0
	}

	age := wholeDays(now.Sub(batch.IssuedAt))
	switch {
	case age <= earlyTierMaxAge:
		return earlyTierBps
	case age <= midTierMaxAge:
		return midTierBps
	}

	validityDays := wholeDays(batch.ExpiresAt.Sub(batch.IssuedAt))
	if age <= validityDays-expiryGuardDays {
		return lateTierBps
	}
	return 0
}

func wholeDays(d time.Duration) int64 {
	return int64(d / (24 * time.Hour))
}
