package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. All wallet and batch
// mutations in the system go through this service or through the
// allocation engine's commit, both of which hold the wallet row lock.
type LedgerServiceImpl struct {
	walletRepo      ports.WalletRepository
	batchRepo       ports.BatchRepository
	transactor      ports.DBTransactor
	defaultValidity time.Duration
	log             zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	batchRepo ports.BatchRepository,
	transactor ports.DBTransactor,
	defaultValidity time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo:      walletRepo,
		batchRepo:       batchRepo,
		transactor:      transactor,
		defaultValidity: defaultValidity,
		log:             log,
	}
}

// Credit appends a new token batch to the merchant's wallet and bumps the
// cached balance by the same amount. The wallet is created lazily on the
// first credit.
func (s *LedgerServiceImpl) Credit(ctx context.Context, req ports.CreditRequest) (*domain.Batch, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidInput("credit amount must be positive")
	}
	if req.UnitPrice < 0 {
		return nil, apperror.ErrInvalidInput("unit price cannot be negative")
	}

	now := time.Now().UTC()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.defaultValidity)
	}
	if !expiresAt.After(now) {
		return nil, apperror.ErrInvalidInput("expiry must be in the future")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByMerchantIDForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		wallet = &domain.Wallet{
			ID:         uuid.New(),
			MerchantID: req.MerchantID,
			Balance:    0,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
	}

	batch := &domain.Batch{
		ID:         uuid.New(),
		WalletID:   wallet.ID,
		Amount:     req.Amount,
		Remaining:  req.Amount,
		UnitPrice:  req.UnitPrice,
		Provenance: req.Provenance,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := s.batchRepo.Create(ctx, dbTx, batch); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create batch: %w", err))
	}

	if err := s.walletRepo.AdjustBalance(ctx, dbTx, wallet.ID, req.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("batch_id", batch.ID.String()).
		Int64("amount", req.Amount).
		Str("provenance", string(req.Provenance)).
		Msg("token batch credited")

	return batch, nil
}

// GetBalance returns the cached wallet balance. A merchant who has never
// been credited reads as zero.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, merchantID uuid.UUID) (int64, error) {
	wallet, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, nil
	}
	return wallet.Balance, nil
}

// ListBatches returns every batch in the merchant's wallet, drained and
// expired ones included, for the audit view.
func (s *LedgerServiceImpl) ListBatches(ctx context.Context, merchantID uuid.UUID) ([]domain.Batch, error) {
	wallet, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return []domain.Batch{}, nil
	}

	batches, err := s.batchRepo.ListByWallet(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list batches: %w", err))
	}
	return batches, nil
}
