package ports

import (
	"context"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DiscountPolicy computes the usage discount a batch earns at spend time,
// in basis points. The same implementation must be consulted at both batch
// selection and deduction so the two phases can never disagree on a rate.
type DiscountPolicy interface {
	DiscountBps(batch *domain.Batch, now time.Time) int64
}

// EncryptionService handles AES-256-GCM encryption/decryption of stored
// secrets.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing for the ad-serving API.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role domain.AccountRole) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      domain.AccountRole
}

// IdempotencyCache is the Redis-layer idempotency check for ad purchases.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, accountID string, nonce string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// LedgerService owns wallets and their FIFO token batches.
type LedgerService interface {
	Credit(ctx context.Context, req CreditRequest) (*domain.Batch, error)
	GetBalance(ctx context.Context, merchantID uuid.UUID) (int64, error)
	ListBatches(ctx context.Context, merchantID uuid.UUID) ([]domain.Batch, error)
}

// CreditRequest holds validated input for crediting a token batch.
type CreditRequest struct {
	MerchantID uuid.UUID
	Amount     int64
	UnitPrice  int64
	ExpiresAt  time.Time // Zero value: the configured default validity applies
	Provenance domain.BatchProvenance
}

// AllocationService implements the two-phase raw-then-discounted ad spend.
type AllocationService interface {
	Purchase(ctx context.Context, req AdPurchaseRequest) (*domain.AdPurchase, error)
	ListPurchases(ctx context.Context, merchantID uuid.UUID, page, pageSize int) ([]domain.AdPurchase, int64, error)
}

// AdPurchaseRequest holds validated input for an ad purchase.
type AdPurchaseRequest struct {
	MerchantID  uuid.UUID
	ReferenceID string
	Scope       domain.AdScope
	RawCost     int64
	StartsAt    time.Time
	EndsAt      time.Time
}

// EscrowService owns campaign budgets and the job state machine. It is the
// only code path that mutates remaining budget or job status.
type EscrowService interface {
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*domain.Campaign, error)
	GetCampaign(ctx context.Context, merchantID, campaignID uuid.UUID) (*domain.Campaign, error)
	CreateJob(ctx context.Context, req CreateJobRequest) (*domain.Job, error)
	Accept(ctx context.Context, jobID, creatorID uuid.UUID) (*JobUpdate, error)
	Cancel(ctx context.Context, jobID, creatorID uuid.UUID, reason string) (*JobUpdate, error)
	Submit(ctx context.Context, jobID, creatorID uuid.UUID, deliverableRef string) (*JobUpdate, error)
	Approve(ctx context.Context, jobID, merchantID uuid.UUID) (*JobUpdate, error)
	Reject(ctx context.Context, jobID, merchantID uuid.UUID, reason string) (*JobUpdate, error)
}

// CreateCampaignRequest holds validated input for creating a campaign.
type CreateCampaignRequest struct {
	MerchantID uuid.UUID
	Title      string
	Budget     int64
}

// CreateJobRequest holds validated input for inviting a creator to a
// campaign. AgreedPrice becomes the job's locked price.
type CreateJobRequest struct {
	MerchantID  uuid.UUID
	CampaignID  uuid.UUID
	CreatorID   uuid.UUID
	AgreedPrice int64
}

// JobUpdate is the outcome of a job transition: the updated job plus the
// budget delta the transition applied to the campaign's remaining pool.
type JobUpdate struct {
	Job         *domain.Job
	BudgetDelta int64
}

// EarningsService derives creator earnings from completed jobs and serves
// the earnings ledger.
type EarningsService interface {
	// RecordJobPayout computes the commission split for a completed job,
	// fills the job's commission and payable fields, and appends the payout
	// entry. It runs inside the caller's transaction.
	RecordJobPayout(ctx context.Context, tx pgx.Tx, job *domain.Job, now time.Time) (*domain.Earning, error)
	List(ctx context.Context, creatorID uuid.UUID) ([]domain.Earning, error)
	Summarize(ctx context.Context, creatorID uuid.UUID, from, to time.Time) (*EarningsSummary, error)
	Withdraw(ctx context.Context, creatorID uuid.UUID, amount int64) (*domain.Earning, error)
}

// EarningsSummary aggregates a creator's ledger over a period.
type EarningsSummary struct {
	TotalPayable     int64 // Sum of payouts earned in the period
	TotalWithdrawn   int64 // Lifetime withdrawals, as a positive number
	AvailableBalance int64 // Withdrawable right now
	TaxEstimate      int64 // Progressive-bracket estimate on TotalPayable
}

// AuthService defines registration and login.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
	Role        domain.AccountRole
}

// RegisterResponse holds the registration result shown once.
type RegisterResponse struct {
	AccountID uuid.UUID
	AccessKey string
	SecretKey string // Plaintext, shown only at registration
}
