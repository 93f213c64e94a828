package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// EarningsServiceImpl implements ports.EarningsService over the append-only
// earnings ledger. Balances are derived by summation, never stored.
type EarningsServiceImpl struct {
	earningRepo       ports.EarningRepository
	accountRepo       ports.AccountRepository
	transactor        ports.DBTransactor
	commissionRateBps int64
	vestingPeriod     time.Duration
	taxBrackets       []domain.TaxBracket
	log               zerolog.Logger
}

// NewEarningsService creates a new EarningsServiceImpl.
func NewEarningsService(
	earningRepo ports.EarningRepository,
	accountRepo ports.AccountRepository,
	transactor ports.DBTransactor,
	commissionRateBps int64,
	vestingPeriod time.Duration,
	log zerolog.Logger,
) *EarningsServiceImpl {
	return &EarningsServiceImpl{
		earningRepo:       earningRepo,
		accountRepo:       accountRepo,
		transactor:        transactor,
		commissionRateBps: commissionRateBps,
		vestingPeriod:     vestingPeriod,
		taxBrackets:       domain.DefaultTaxBrackets(),
		log:               log,
	}
}

// RecordJobPayout splits the job's agreed price into commission and payable,
// writes the split back onto the job, and appends the payout entry. The
// entry vests after the configured period. Runs in the caller's tx so the
// job completion and the payout commit atomically.
func (s *EarningsServiceImpl) RecordJobPayout(ctx context.Context, tx pgx.Tx, job *domain.Job, now time.Time) (*domain.Earning, error) {
	commission := domain.CommissionFor(job.AgreedPrice, s.commissionRateBps)
	payable := job.AgreedPrice - commission

	job.CommissionAmount = commission
	job.PayableAmount = payable

	jobID := job.ID
	earning := &domain.Earning{
		ID:          uuid.New(),
		CreatorID:   job.CreatorID,
		JobID:       &jobID,
		Type:        domain.EarningTypeJobPayout,
		Amount:      payable,
		Status:      domain.EarningStatusPendingVesting,
		EarnedAt:    now,
		AvailableAt: now.Add(s.vestingPeriod),
	}
	if err := s.earningRepo.Create(ctx, tx, earning); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payout entry: %w", err))
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("creator_id", job.CreatorID.String()).
		Int64("agreed_price", job.AgreedPrice).
		Int64("commission", commission).
		Int64("payable", payable).
		Msg("job payout recorded")

	return earning, nil
}

// List returns the creator's full ledger, newest first, with each entry's
// status derived from the vesting clock.
func (s *EarningsServiceImpl) List(ctx context.Context, creatorID uuid.UUID) ([]domain.Earning, error) {
	earnings, err := s.earningRepo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list earnings: %w", err))
	}

	now := time.Now().UTC()
	for i := range earnings {
		earnings[i].Status = earnings[i].EffectiveStatus(now)
	}
	return earnings, nil
}

// Summarize aggregates the creator's ledger: payouts earned inside the
// period, lifetime withdrawals, current withdrawable balance, and the
// progressive tax estimate on the period's payouts.
func (s *EarningsServiceImpl) Summarize(ctx context.Context, creatorID uuid.UUID, from, to time.Time) (*ports.EarningsSummary, error) {
	if !to.After(from) {
		return nil, apperror.ErrInvalidInput("period must end after it starts")
	}

	periodEntries, err := s.earningRepo.ListByCreatorPeriod(ctx, creatorID, from, to)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list period earnings: %w", err))
	}
	allEntries, err := s.earningRepo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list earnings: %w", err))
	}

	now := time.Now().UTC()
	summary := &ports.EarningsSummary{}
	for _, e := range periodEntries {
		if e.Type == domain.EarningTypeJobPayout {
			summary.TotalPayable += e.Amount
		}
	}
	for _, e := range allEntries {
		if e.Type == domain.EarningTypeWithdrawal {
			summary.TotalWithdrawn += -e.Amount
		}
		if e.CountsTowardAvailable(now) {
			summary.AvailableBalance += e.Amount
		}
	}
	summary.TaxEstimate = domain.EstimateTax(summary.TotalPayable, s.taxBrackets)

	return summary, nil
}

// Withdraw appends a negative ledger entry for the creator. The account row
// lock serializes concurrent withdrawals so the availability check and the
// append are atomic.
func (s *EarningsServiceImpl) Withdraw(ctx context.Context, creatorID uuid.UUID, amount int64) (*domain.Earning, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidInput("withdrawal amount must be positive")
	}

	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err := s.accountRepo.GetByIDForUpdate(ctx, dbTx, creatorID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}

	available, err := s.earningRepo.AvailableBalance(ctx, dbTx, creatorID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("available balance: %w", err))
	}
	if available < amount {
		return nil, apperror.ErrInsufficientEarnings()
	}

	earning := &domain.Earning{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		Type:        domain.EarningTypeWithdrawal,
		Amount:      -amount,
		Status:      domain.EarningStatusWithdrawn,
		EarnedAt:    now,
		AvailableAt: now,
	}
	if err := s.earningRepo.Create(ctx, dbTx, earning); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal entry: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("creator_id", creatorID.String()).
		Int64("amount", amount).
		Int64("available_before", available).
		Msg("withdrawal recorded")

	return earning, nil
}
