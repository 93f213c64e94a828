package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/internal/core/ports/mocks"
	"github.com/zablink/token-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type allocationTestDeps struct {
	svc          *AllocationServiceImpl
	walletRepo   *mocks.MockWalletRepository
	batchRepo    *mocks.MockBatchRepository
	purchaseRepo *mocks.MockAdPurchaseRepository
	policy       *mocks.MockDiscountPolicy
	idempCache   *mocks.MockIdempotencyCache
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupAllocationService(t *testing.T) *allocationTestDeps {
	ctrl := gomock.NewController(t)
	d := &allocationTestDeps{
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		batchRepo:    mocks.NewMockBatchRepository(ctrl),
		purchaseRepo: mocks.NewMockAdPurchaseRepository(ctrl),
		policy:       mocks.NewMockDiscountPolicy(ctrl),
		idempCache:   mocks.NewMockIdempotencyCache(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewAllocationService(
		d.walletRepo, d.batchRepo, d.purchaseRepo,
		d.policy, d.idempCache, d.transactor, zerolog.Nop(),
	)
	return d
}

func validPurchaseReq(merchantID uuid.UUID) ports.AdPurchaseRequest {
	now := time.Now().UTC()
	return ports.AdPurchaseRequest{
		MerchantID:  merchantID,
		ReferenceID: "AD-001",
		Scope:       domain.ScopeCity,
		RawCost:     80,
		StartsAt:    now,
		EndsAt:      now.Add(7 * 24 * time.Hour),
	}
}

func TestAllocationService_Purchase_TwoPhaseDiscount(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)

	now := time.Now().UTC()
	older := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 50, Remaining: 50,
		IssuedAt: now.Add(-40 * 24 * time.Hour), ExpiresAt: now.Add(50 * 24 * time.Hour),
	}
	newer := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 100, Remaining: 100,
		IssuedAt: now.Add(-5 * 24 * time.Hour), ExpiresAt: now.Add(85 * 24 * time.Hour),
	}
	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 150}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil)
	d.batchRepo.EXPECT().ListConsumable(ctx, tx, walletID, gomock.Any()).Return([]domain.Batch{older, newer}, nil)

	// Raw plan touches both batches; the best rate between them wins.
	d.policy.EXPECT().DiscountBps(gomock.Any(), gomock.Any()).DoAndReturn(
		func(b *domain.Batch, _ time.Time) int64 {
			if b.ID == older.ID {
				return 700
			}
			return 1000
		}).Times(2)

	// effective = ceil(80 * 0.9) = 72, drained 50 from older + 22 from newer.
	d.batchRepo.EXPECT().ConsumeRemaining(ctx, tx, older.ID, int64(50), int64(50)).Return(nil)
	d.batchRepo.EXPECT().ConsumeRemaining(ctx, tx, newer.ID, int64(22), int64(100)).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, walletID, int64(-72)).Return(nil)
	d.purchaseRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	purchase, err := d.svc.Purchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(80), purchase.RawCost)
	assert.Equal(t, int64(72), purchase.EffectiveCost)
	assert.Equal(t, int64(1000), purchase.DiscountBps)
	require.Len(t, purchase.Lines, 2)
	assert.Equal(t, int64(50), purchase.Lines[0].Amount)
	assert.Equal(t, int64(22), purchase.Lines[1].Amount)
}

func TestAllocationService_Purchase_InsufficientTokens(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)

	now := time.Now().UTC()
	small := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 30, Remaining: 30,
		IssuedAt: now.Add(-24 * time.Hour), ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 30}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil)
	d.batchRepo.EXPECT().ListConsumable(ctx, tx, walletID, gomock.Any()).Return([]domain.Batch{small}, nil)

	_, err := d.svc.Purchase(ctx, req)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_002", appErr.Code)
}

func TestAllocationService_Purchase_SufficiencyJudgedOnRawCost(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)
	req.RawCost = 100

	// 95 tokens could cover the discounted cost but not the raw cost.
	// The purchase must still fail.
	now := time.Now().UTC()
	batch := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 95, Remaining: 95,
		IssuedAt: now.Add(-24 * time.Hour), ExpiresAt: now.Add(60 * 24 * time.Hour),
	}
	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 95}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil)
	d.batchRepo.EXPECT().ListConsumable(ctx, tx, walletID, gomock.Any()).Return([]domain.Batch{batch}, nil)

	_, err := d.svc.Purchase(ctx, req)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_002", appErr.Code)
}

func TestAllocationService_Purchase_NoWallet(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(nil, nil)

	_, err := d.svc.Purchase(ctx, req)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_002", appErr.Code)
}

func TestAllocationService_Purchase_IdempotentFromCache(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	req := validPurchaseReq(merchantID)

	cached := &domain.AdPurchase{ID: uuid.New(), MerchantID: merchantID, ReferenceID: "AD-001", EffectiveCost: 72}
	cachedJSON, _ := json.Marshal(cached)

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(cachedJSON, nil)

	purchase, err := d.svc.Purchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, cached.ID, purchase.ID)
	assert.Equal(t, int64(72), purchase.EffectiveCost)
}

func TestAllocationService_Purchase_IdempotentFromDB(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	req := validPurchaseReq(merchantID)

	existing := &domain.AdPurchase{ID: uuid.New(), MerchantID: merchantID, ReferenceID: "AD-001"}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(existing, nil)

	purchase, err := d.svc.Purchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, purchase.ID)
}

func TestAllocationService_Purchase_RetriesOnceOnStalePlan(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)
	req.RawCost = 40

	now := time.Now().UTC()
	batch := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 100, Remaining: 100,
		IssuedAt: now.Add(-24 * time.Hour), ExpiresAt: now.Add(60 * 24 * time.Hour),
	}
	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 100}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil).Times(2)
	d.batchRepo.EXPECT().ListConsumable(ctx, tx, walletID, gomock.Any()).Return([]domain.Batch{batch}, nil).Times(2)
	d.policy.EXPECT().DiscountBps(gomock.Any(), gomock.Any()).Return(int64(0)).Times(2)

	// First attempt hits a stale guard; second succeeds.
	first := d.batchRepo.EXPECT().ConsumeRemaining(ctx, tx, batch.ID, int64(40), int64(100)).Return(ports.ErrStaleRemaining)
	d.batchRepo.EXPECT().ConsumeRemaining(ctx, tx, batch.ID, int64(40), int64(100)).Return(nil).After(first)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, walletID, int64(-40)).Return(nil)
	d.purchaseRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	purchase, err := d.svc.Purchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(40), purchase.EffectiveCost)
}

func TestAllocationService_Purchase_ConflictAfterRetryExhausted(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	req := validPurchaseReq(merchantID)
	req.RawCost = 40

	now := time.Now().UTC()
	batch := domain.Batch{
		ID: uuid.New(), WalletID: walletID, Amount: 100, Remaining: 100,
		IssuedAt: now.Add(-24 * time.Hour), ExpiresAt: now.Add(60 * 24 * time.Hour),
	}
	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 100}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.purchaseRepo.EXPECT().GetByReference(ctx, merchantID, "AD-001").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil).Times(2)
	d.batchRepo.EXPECT().ListConsumable(ctx, tx, walletID, gomock.Any()).Return([]domain.Batch{batch}, nil).Times(2)
	d.policy.EXPECT().DiscountBps(gomock.Any(), gomock.Any()).Return(int64(0)).Times(2)
	d.batchRepo.EXPECT().ConsumeRemaining(ctx, tx, batch.ID, int64(40), int64(100)).Return(ports.ErrStaleRemaining).Times(2)

	_, err := d.svc.Purchase(ctx, req)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_003", appErr.Code)
}

func TestAllocationService_Purchase_InvalidInput(t *testing.T) {
	d := setupAllocationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*ports.AdPurchaseRequest)
	}{
		{"zero raw cost", func(r *ports.AdPurchaseRequest) { r.RawCost = 0 }},
		{"missing reference", func(r *ports.AdPurchaseRequest) { r.ReferenceID = "" }},
		{"unknown scope", func(r *ports.AdPurchaseRequest) { r.Scope = "GALAXY" }},
		{"inverted window", func(r *ports.AdPurchaseRequest) { r.EndsAt = r.StartsAt.Add(-time.Hour) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validPurchaseReq(merchantID)
			tt.mutate(&req)
			_, err := d.svc.Purchase(ctx, req)
			require.Error(t, err)
			appErr, ok := err.(*apperror.AppError)
			require.True(t, ok)
			assert.Equal(t, "TOK_001", appErr.Code)
		})
	}
}
