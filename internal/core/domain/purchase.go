package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopspring/decimal"
)

// AdScope is the targeting breadth of an ad purchase.
type AdScope string

const (
	ScopeDistrict AdScope = "DISTRICT"
	ScopeCity     AdScope = "CITY"
	ScopeRegion   AdScope = "REGION"
	ScopeNational AdScope = "NATIONAL"
)

// ValidScope reports whether s is a known targeting scope.
func ValidScope(s AdScope) bool {
	switch s {
	case ScopeDistrict, ScopeCity, ScopeRegion, ScopeNational:
		return true
	}
	return false
}

// AdPurchase is the immutable record of one ad-slot purchase: the raw
// pre-discount cost, the effective cost actually deducted, the discount
// that won, and the exact per-batch breakdown.
type AdPurchase struct {
	ID            uuid.UUID         `json:"id"`
	MerchantID    uuid.UUID         `json:"merchant_id"`
	WalletID      uuid.UUID         `json:"wallet_id"`
	ReferenceID   string            `json:"reference_id"`
	Scope         AdScope           `json:"scope"`
	RawCost       int64             `json:"raw_cost"`
	EffectiveCost int64             `json:"effective_cost"`
	DiscountBps   int64             `json:"discount_bps"`
	Lines         []ConsumptionLine `json:"lines"`
	StartsAt      time.Time         `json:"starts_at"`
	EndsAt        time.Time         `json:"ends_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DiscountFraction returns the applied discount as a decimal fraction,
// e.g. 1000 bps -> 0.1.
func (p *AdPurchase) DiscountFraction() decimal.Decimal {
	return decimal.New(p.DiscountBps, -4)
}

// EffectiveCostFor computes ceil(rawCost * (1 - bps/10000)) in pure
// integer arithmetic. Ceiling rounding means the platform is never
// underpaid by fractional tokens.
func EffectiveCostFor(rawCost int64, discountBps int64) int64 {
	if discountBps <= 0 {
		return rawCost
	}
	if discountBps >= 10000 {
		return 0
	}
	return (rawCost*(10000-discountBps) + 9999) / 10000
}
