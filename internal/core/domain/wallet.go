package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a merchant's prepaid token credit. The cached balance must
// equal the sum of remaining amounts across the wallet's batches after
// every committed operation. Wallets are created lazily on first credit
// and never deleted.
type Wallet struct {
	ID         uuid.UUID `json:"id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Balance    int64     `json:"balance"` // Token minor units, cached sum of batch remainders
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BatchProvenance records how a token batch was granted.
type BatchProvenance string

const (
	ProvenancePurchase     BatchProvenance = "PURCHASE"
	ProvenanceSubscription BatchProvenance = "SUBSCRIPTION"
	ProvenancePromotion    BatchProvenance = "PROMOTION"
)

// Batch is one purchased or granted block of token credit. Batches are
// drained FIFO by issued-at and kept forever once empty or expired as an
// audit trail.
type Batch struct {
	ID         uuid.UUID       `json:"id"`
	WalletID   uuid.UUID       `json:"wallet_id"`
	Amount     int64           `json:"amount"`
	Remaining  int64           `json:"remaining"`
	UnitPrice  int64           `json:"unit_price"` // Currency minor units paid per token
	Provenance BatchProvenance `json:"provenance"`
	IssuedAt   time.Time       `json:"issued_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Expired returns true once the batch's validity window has lapsed.
func (b *Batch) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// Consumable returns true if the batch can still cover spend.
func (b *Batch) Consumable(now time.Time) bool {
	return b.Remaining > 0 && !b.Expired(now)
}

// ConsumptionLine is one batch's share of a consumption plan.
// PriorRemaining is the remaining amount the plan was computed against;
// the commit step re-checks it so a plan computed from stale state aborts.
type ConsumptionLine struct {
	BatchID        uuid.UUID `json:"batch_id"`
	Amount         int64     `json:"amount"`
	PriorRemaining int64     `json:"-"`
}

// ConsumptionPlan is the result of previewing a FIFO debit. It does not
// mutate anything: callers inspect Shortfall, possibly recompute the
// target amount, and commit a fresh plan.
type ConsumptionPlan struct {
	Lines     []ConsumptionLine `json:"lines"`
	Total     int64             `json:"total"`
	Shortfall int64             `json:"shortfall"`
}

// Covered returns true if the plan fully covers the requested amount.
func (p *ConsumptionPlan) Covered() bool {
	return p.Shortfall == 0
}

// PlanConsumption walks batches in the given order (callers supply them
// sorted by issued-at ascending), skipping empty or expired ones, and
// accumulates consumption until amount is covered or batches run out.
// A zero amount yields an empty, fully covered plan.
func PlanConsumption(batches []Batch, amount int64, now time.Time) ConsumptionPlan {
	plan := ConsumptionPlan{}
	left := amount

	for i := range batches {
		if left == 0 {
			break
		}
		b := &batches[i]
		if !b.Consumable(now) {
			continue
		}
		take := b.Remaining
		if take > left {
			take = left
		}
		plan.Lines = append(plan.Lines, ConsumptionLine{
			BatchID:        b.ID,
			Amount:         take,
			PriorRemaining: b.Remaining,
		})
		plan.Total += take
		left -= take
	}

	plan.Shortfall = left
	return plan
}
