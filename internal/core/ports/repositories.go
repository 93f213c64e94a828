package ports

import (
	"context"
	"errors"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrStaleRemaining is returned by BatchRepository.ConsumeRemaining when a
// batch's remaining amount no longer matches the value a consumption plan
// was computed against. Callers must recompute the plan from fresh state.
var ErrStaleRemaining = errors.New("batch remaining changed since plan was computed")

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Account, error)
}

// WalletRepository defines persistence operations for token wallets.
// Methods accepting pgx.Tx run inside transaction blocks; the ForUpdate
// variants take a row lock that serializes all ledger mutations on the
// wallet.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error)
	GetByMerchantIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error)
	// AdjustBalance applies a delta to the cached balance. The update is
	// guarded so the balance can never go negative.
	AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) error
}

// BatchRepository defines persistence operations for token batches.
type BatchRepository interface {
	Create(ctx context.Context, tx pgx.Tx, batch *domain.Batch) error
	// ListConsumable returns batches with remaining > 0 and expiry after
	// now, ordered by issued-at ascending (the FIFO consumption order).
	ListConsumable(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, now time.Time) ([]domain.Batch, error)
	// ListByWallet returns all batches including drained and expired ones.
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Batch, error)
	// ConsumeRemaining decrements a batch's remaining by take, guarded by a
	// compare against expectedRemaining. Returns ErrStaleRemaining when the
	// guard fails.
	ConsumeRemaining(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, take int64, expectedRemaining int64) error
}

// AdPurchaseRepository defines persistence for immutable ad purchase records.
type AdPurchaseRepository interface {
	Create(ctx context.Context, tx pgx.Tx, purchase *domain.AdPurchase) error
	GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.AdPurchase, error)
	List(ctx context.Context, merchantID uuid.UUID, page, pageSize int) ([]domain.AdPurchase, int64, error)
}

// CampaignRepository defines persistence operations for campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	// ReserveBudget atomically decrements remaining budget if sufficient.
	// Returns false (and no change) when the budget cannot cover amount.
	ReserveBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) (bool, error)
	// ReleaseBudget returns a reservation to the pool. The update is guarded
	// so remaining can never exceed total.
	ReleaseBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) error
}

// JobRepository defines persistence operations for campaign jobs. Create
// takes a tx so the job row and its budget reservation commit together.
type JobRepository interface {
	Create(ctx context.Context, tx pgx.Tx, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Job, error)
	// Update persists the mutable transition fields (status, timestamps,
	// reason, commission, payable). AgreedPrice is never written back.
	Update(ctx context.Context, tx pgx.Tx, job *domain.Job) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error)
}

// EarningRepository defines persistence for the append-only earnings ledger.
type EarningRepository interface {
	Create(ctx context.Context, tx pgx.Tx, earning *domain.Earning) error
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Earning, error)
	ListByCreatorPeriod(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]domain.Earning, error)
	// AvailableBalance sums entries effective at now: withdrawals always,
	// payouts once vested. Runs inside tx so withdrawals see a consistent
	// view under the account row lock.
	AvailableBalance(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID, now time.Time) (int64, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
