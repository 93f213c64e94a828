package service

import (
	"context"
	"testing"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/internal/core/ports/mocks"
	"github.com/zablink/token-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	batchRepo  *mocks.MockBatchRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		batchRepo:  mocks.NewMockBatchRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.walletRepo, d.batchRepo, d.transactor, 90*24*time.Hour, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func TestLedgerService_Credit_ExistingWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	wallet := &domain.Wallet{ID: walletID, MerchantID: merchantID, Balance: 100}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, walletID, int64(50)).Return(nil)

	batch, err := d.svc.Credit(ctx, ports.CreditRequest{
		MerchantID: merchantID,
		Amount:     50,
		UnitPrice:  1000,
		Provenance: domain.ProvenancePurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, walletID, batch.WalletID)
	assert.Equal(t, int64(50), batch.Amount)
	assert.Equal(t, int64(50), batch.Remaining, "remaining starts equal to amount")
}

func TestLedgerService_Credit_CreatesWalletLazily(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, w *domain.Wallet) error {
			assert.Equal(t, merchantID, w.MerchantID)
			assert.Zero(t, w.Balance)
			return nil
		})
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, gomock.Any(), int64(200)).Return(nil)

	batch, err := d.svc.Credit(ctx, ports.CreditRequest{
		MerchantID: merchantID,
		Amount:     200,
		Provenance: domain.ProvenanceSubscription,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), batch.Amount)
}

func TestLedgerService_Credit_DefaultExpiry(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	wallet := &domain.Wallet{ID: uuid.New(), MerchantID: merchantID}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByMerchantIDForUpdate(ctx, tx, merchantID).Return(wallet, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, wallet.ID, int64(10)).Return(nil)

	batch, err := d.svc.Credit(ctx, ports.CreditRequest{
		MerchantID: merchantID,
		Amount:     10,
		Provenance: domain.ProvenancePromotion,
	})
	require.NoError(t, err)

	// Zero ExpiresAt falls back to the configured 90-day validity.
	wantExpiry := time.Now().UTC().Add(90 * 24 * time.Hour)
	assert.WithinDuration(t, wantExpiry, batch.ExpiresAt, time.Minute)
}

func TestLedgerService_Credit_RejectsNonPositiveAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		MerchantID: uuid.New(),
		Amount:     0,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_001", appErr.Code)
}

func TestLedgerService_Credit_RejectsPastExpiry(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Credit(context.Background(), ports.CreditRequest{
		MerchantID: uuid.New(),
		Amount:     10,
		ExpiresAt:  time.Now().Add(-time.Hour),
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_001", appErr.Code)
}

func TestLedgerService_GetBalance_NoWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.walletRepo.EXPECT().GetByMerchantID(ctx, merchantID).Return(nil, nil)

	balance, err := d.svc.GetBalance(ctx, merchantID)
	require.NoError(t, err)
	assert.Zero(t, balance, "merchant without a wallet reads as zero")
}

func TestLedgerService_ListBatches_NoWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.walletRepo.EXPECT().GetByMerchantID(ctx, merchantID).Return(nil, nil)

	batches, err := d.svc.ListBatches(ctx, merchantID)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
