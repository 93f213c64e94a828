package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopspring/decimal"
)

// EarningType distinguishes job payouts from withdrawals. Both live in the
// same append-only ledger; a withdrawal is a separate negative-amount
// entry, never a mutation of the payout it draws on.
type EarningType string

const (
	EarningTypeJobPayout  EarningType = "JOB_PAYOUT"
	EarningTypeWithdrawal EarningType = "WITHDRAWAL"
)

// EarningStatus is the display state of an entry.
type EarningStatus string

const (
	EarningStatusPendingVesting EarningStatus = "PENDING_VESTING"
	EarningStatusAvailable      EarningStatus = "AVAILABLE"
	EarningStatusWithdrawn      EarningStatus = "WITHDRAWN"
)

// Earning is one append-only ledger entry for a creator. Payouts carry a
// positive amount and vest at AvailableAt; withdrawals carry a negative
// amount and take effect immediately.
type Earning struct {
	ID          uuid.UUID     `json:"id"`
	CreatorID   uuid.UUID     `json:"creator_id"`
	JobID       *uuid.UUID    `json:"job_id,omitempty"`
	Type        EarningType   `json:"type"`
	Amount      int64         `json:"amount"`
	Status      EarningStatus `json:"status"`
	EarnedAt    time.Time     `json:"earned_at"`
	AvailableAt time.Time     `json:"available_at"`
}

// CountsTowardAvailable reports whether the entry contributes to the
// creator's withdrawable balance at the given instant.
func (e *Earning) CountsTowardAvailable(now time.Time) bool {
	if e.Type == EarningTypeWithdrawal {
		return true
	}
	return !e.AvailableAt.After(now)
}

// EffectiveStatus derives the display status from the vesting clock.
func (e *Earning) EffectiveStatus(now time.Time) EarningStatus {
	if e.Type == EarningTypeWithdrawal {
		return EarningStatusWithdrawn
	}
	if e.AvailableAt.After(now) {
		return EarningStatusPendingVesting
	}
	return EarningStatusAvailable
}

// CommissionFor returns floor(price * rateBps / 10000), the platform's cut
// of a completed job.
func CommissionFor(price int64, rateBps int64) int64 {
	return price * rateBps / 10000
}

// TaxBracket is one slice of the progressive tax table. UpTo is the
// bracket's upper bound in currency minor units; zero means unbounded.
type TaxBracket struct {
	UpTo int64
	Rate decimal.Decimal
}

// DefaultTaxBrackets returns the fixed progressive table used for the
// reporting-only tax estimate. Bounds are in currency minor units.
func DefaultTaxBrackets() []TaxBracket {
	return []TaxBracket{
		{UpTo: 15_000_000, Rate: decimal.Zero},
		{UpTo: 30_000_000, Rate: decimal.New(5, -2)},
		{UpTo: 50_000_000, Rate: decimal.New(10, -2)},
		{UpTo: 75_000_000, Rate: decimal.New(15, -2)},
		{UpTo: 100_000_000, Rate: decimal.New(20, -2)},
		{UpTo: 200_000_000, Rate: decimal.New(25, -2)},
		{UpTo: 500_000_000, Rate: decimal.New(30, -2)},
		{UpTo: 0, Rate: decimal.New(35, -2)},
	}
}

// EstimateTax applies the progressive bracket table to income: each
// bracket's marginal rate applies only to the slice of income inside that
// bracket. The result is truncated to whole minor units. Reporting only;
// it never changes a payable amount.
func EstimateTax(income int64, brackets []TaxBracket) int64 {
	if income <= 0 {
		return 0
	}

	total := decimal.Zero
	lower := int64(0)
	for _, b := range brackets {
		upper := b.UpTo
		if upper == 0 || upper > income {
			upper = income
		}
		if upper <= lower {
			if b.UpTo != 0 && b.UpTo <= lower {
				continue
			}
			break
		}
		slice := decimal.NewFromInt(upper - lower)
		total = total.Add(slice.Mul(b.Rate))
		lower = upper
		if lower >= income {
			break
		}
	}

	return total.IntPart()
}
