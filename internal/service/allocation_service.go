package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	purchaseIdempotencyTTL = 24 * time.Hour

	// One automatic retry from a fresh preview after a stale-plan abort;
	// further conflicts are reported to the caller.
	maxPurchaseAttempts = 2
)

// AllocationServiceImpl implements ports.AllocationService: the two-phase
// raw-then-discounted spend used by ad purchases.
//
// The two phases must not be collapsed. The merchant's discount is earned
// by the batches that cover the RAW cost; computing it from the already
// discounted consumption set would change which batches qualify.
type AllocationServiceImpl struct {
	walletRepo   ports.WalletRepository
	batchRepo    ports.BatchRepository
	purchaseRepo ports.AdPurchaseRepository
	policy       ports.DiscountPolicy
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewAllocationService creates a new AllocationServiceImpl.
func NewAllocationService(
	walletRepo ports.WalletRepository,
	batchRepo ports.BatchRepository,
	purchaseRepo ports.AdPurchaseRepository,
	policy ports.DiscountPolicy,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *AllocationServiceImpl {
	return &AllocationServiceImpl{
		walletRepo:   walletRepo,
		batchRepo:    batchRepo,
		purchaseRepo: purchaseRepo,
		policy:       policy,
		idempCache:   idempCache,
		transactor:   transactor,
		log:          log,
	}
}

// Purchase executes an ad purchase against the merchant's token wallet.
// Idempotent by (merchant, reference): a repeated reference returns the
// original record.
func (s *AllocationServiceImpl) Purchase(ctx context.Context, req ports.AdPurchaseRequest) (*domain.AdPurchase, error) {
	if req.RawCost <= 0 {
		return nil, apperror.ErrInvalidInput("raw cost must be positive")
	}
	if req.ReferenceID == "" {
		return nil, apperror.ErrInvalidInput("reference id is required")
	}
	if !domain.ValidScope(req.Scope) {
		return nil, apperror.ErrInvalidInput("unknown targeting scope")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, apperror.ErrInvalidInput("validity window must end after it starts")
	}

	idempKey := purchaseIdempotencyKey(req.MerchantID, req.ReferenceID)

	// Layer 1: Redis idempotency check.
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalCachedPurchase(cached)
	}

	// Layer 2: DB idempotency check against the purchase record itself.
	existing, err := s.purchaseRepo.GetByReference(ctx, req.MerchantID, req.ReferenceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	var purchase *domain.AdPurchase
	for attempt := 1; attempt <= maxPurchaseAttempts; attempt++ {
		purchase, err = s.tryPurchase(ctx, req)
		if err == nil {
			break
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == apperror.CodeConcurrentModification && attempt < maxPurchaseAttempts {
			s.log.Warn().
				Str("merchant_id", req.MerchantID.String()).
				Str("reference_id", req.ReferenceID).
				Int("attempt", attempt).
				Msg("consumption plan went stale, retrying from fresh preview")
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	// Post-process: cache in Redis (best-effort).
	if respJSON, merr := json.Marshal(purchase); merr == nil {
		if cerr := s.idempCache.Set(ctx, idempKey, respJSON, purchaseIdempotencyTTL); cerr != nil {
			s.log.Warn().Err(cerr).Str("key", idempKey).Msg("failed to cache purchase in redis")
		}
	}

	s.log.Info().
		Str("purchase_id", purchase.ID.String()).
		Str("merchant_id", req.MerchantID.String()).
		Int64("raw_cost", purchase.RawCost).
		Int64("effective_cost", purchase.EffectiveCost).
		Int64("discount_bps", purchase.DiscountBps).
		Msg("ad purchase allocated")

	return purchase, nil
}

// tryPurchase runs one full preview+commit attempt inside a transaction.
func (s *AllocationServiceImpl) tryPurchase(ctx context.Context, req ports.AdPurchaseRequest) (*domain.AdPurchase, error) {
	now := time.Now().UTC()

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
		// No wallet means no tokens were ever credited.
		return nil, apperror.ErrInsufficientTokens()
	}

	batches, err := s.batchRepo.ListConsumable(ctx, dbTx, wallet.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list batches: %w", err))
	}

	// Phase 1: can the wallet cover the undiscounted price at all?
	rawPlan := domain.PlanConsumption(batches, req.RawCost, now)
	if !rawPlan.Covered() {
		return nil, apperror.ErrInsufficientTokens()
	}

	// The single best rate among the batches touched by the RAW preview
	// governs the whole purchase.
	maxBps := int64(0)
	touched := make(map[uuid.UUID]*domain.Batch, len(rawPlan.Lines))
	for i := range batches {
		touched[batches[i].ID] = &batches[i]
	}
	for _, line := range rawPlan.Lines {
		if bps := s.policy.DiscountBps(touched[line.BatchID], now); bps > maxBps {
			maxBps = bps
		}
	}

	effectiveCost := domain.EffectiveCostFor(req.RawCost, maxBps)

	// Phase 2: plan and commit the effective cost. It is <= rawCost, so
	// coverage is guaranteed against the same batch snapshot.
	plan := domain.PlanConsumption(batches, effectiveCost, now)
	for _, line := range plan.Lines {
		err := s.batchRepo.ConsumeRemaining(ctx, dbTx, line.BatchID, line.Amount, line.PriorRemaining)
		if err != nil {
			if errors.Is(err, ports.ErrStaleRemaining) {
				return nil, apperror.ErrConcurrentModification()
			}
			return nil, apperror.InternalError(fmt.Errorf("consume batch: %w", err))
		}
	}

	if plan.Total > 0 {
		if err := s.walletRepo.AdjustBalance(ctx, dbTx, wallet.ID, -plan.Total); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
		}
	}

	purchase := &domain.AdPurchase{
		ID:            uuid.New(),
		MerchantID:    req.MerchantID,
		WalletID:      wallet.ID,
		ReferenceID:   req.ReferenceID,
		Scope:         req.Scope,
		RawCost:       req.RawCost,
		EffectiveCost: effectiveCost,
		DiscountBps:   maxBps,
		Lines:         plan.Lines,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		CreatedAt:     now,
	}
	if err := s.purchaseRepo.Create(ctx, dbTx, purchase); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create purchase: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return purchase, nil
}

// ListPurchases returns the merchant's purchase history, newest first.
func (s *AllocationServiceImpl) ListPurchases(ctx context.Context, merchantID uuid.UUID, page, pageSize int) ([]domain.AdPurchase, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	purchases, total, err := s.purchaseRepo.List(ctx, merchantID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list purchases: %w", err))
	}
	return purchases, total, nil
}

func purchaseIdempotencyKey(merchantID uuid.UUID, referenceID string) string {
	return "adpurchase:" + merchantID.String() + ":" + referenceID
}

func unmarshalCachedPurchase(data []byte) (*domain.AdPurchase, error) {
	p := &domain.AdPurchase{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached purchase: %w", err))
	}
	return p, nil
}
