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
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type escrowTestDeps struct {
	svc          *EscrowServiceImpl
	campaignRepo *mocks.MockCampaignRepository
	jobRepo      *mocks.MockJobRepository
	earnings     *mocks.MockEarningsService
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupEscrowService(t *testing.T) *escrowTestDeps {
	ctrl := gomock.NewController(t)
	d := &escrowTestDeps{
		campaignRepo: mocks.NewMockCampaignRepository(ctrl),
		jobRepo:      mocks.NewMockJobRepository(ctrl),
		earnings:     mocks.NewMockEarningsService(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewEscrowService(d.campaignRepo, d.jobRepo, d.earnings, d.transactor, zerolog.Nop())
	return d
}

func activeCampaign(merchantID uuid.UUID, total, remaining int64) *domain.Campaign {
	return &domain.Campaign{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		Title:           "Spring launch",
		TotalBudget:     total,
		RemainingBudget: remaining,
		Status:          domain.CampaignStatusActive,
	}
}

func pendingJob(campaign *domain.Campaign, creatorID uuid.UUID, price int64) *domain.Job {
	return &domain.Job{
		ID:          uuid.New(),
		CampaignID:  campaign.ID,
		MerchantID:  campaign.MerchantID,
		CreatorID:   creatorID,
		AgreedPrice: price,
		Status:      domain.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestEscrowService_CreateCampaign(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.campaignRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	campaign, err := d.svc.CreateCampaign(ctx, ports.CreateCampaignRequest{
		MerchantID: merchantID,
		Title:      "Spring launch",
		Budget:     1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), campaign.TotalBudget)
	assert.Equal(t, int64(1000), campaign.RemainingBudget, "full budget starts unreserved")
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)
}

func TestEscrowService_CreateCampaign_RejectsZeroBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.CreateCampaign(context.Background(), ports.CreateCampaignRequest{
		MerchantID: uuid.New(),
		Title:      "Empty",
		Budget:     0,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_001", appErr.Code)
}

func TestEscrowService_CreateJob_PendingHoldsNoBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(merchantID, 1000, 1000)

	// No ReserveBudget expectation: creation only pre-checks affordability.
	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	job, err := d.svc.CreateJob(ctx, ports.CreateJobRequest{
		MerchantID:  merchantID,
		CampaignID:  campaign.ID,
		CreatorID:   creatorID,
		AgreedPrice: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, int64(300), job.AgreedPrice)
}

func TestEscrowService_CreateJob_InsufficientBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	campaign := activeCampaign(merchantID, 1000, 200)

	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)

	_, err := d.svc.CreateJob(ctx, ports.CreateJobRequest{
		MerchantID:  merchantID,
		CampaignID:  campaign.ID,
		CreatorID:   uuid.New(),
		AgreedPrice: 300,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_001", appErr.Code)
}

func TestEscrowService_CreateJob_OverbooksBeyondBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(merchantID, 1000, 1000)

	// Two invitations totalling 1100 against a 1000 pool both pass the
	// pre-check; the budget is only contested at acceptance.
	for _, price := range []int64{600, 500} {
		d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
		d.jobRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

		job, err := d.svc.CreateJob(ctx, ports.CreateJobRequest{
			MerchantID:  merchantID,
			CampaignID:  campaign.ID,
			CreatorID:   uuid.New(),
			AgreedPrice: price,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, job.Status)
	}
}

func TestEscrowService_CreateJob_WrongMerchant(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := activeCampaign(uuid.New(), 1000, 1000)

	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)

	_, err := d.svc.CreateJob(ctx, ports.CreateJobRequest{
		MerchantID:  uuid.New(), // not the owner
		CampaignID:  campaign.ID,
		CreatorID:   uuid.New(),
		AgreedPrice: 100,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_004", appErr.Code)
}

func TestEscrowService_Accept_ReservesBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 1000)
	job := pendingJob(campaign, creatorID, 300)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.campaignRepo.EXPECT().ReserveBudget(ctx, tx, campaign.ID, int64(300)).Return(true, nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Accept(ctx, job.ID, creatorID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusAccepted, update.Job.Status)
	assert.Equal(t, int64(-300), update.BudgetDelta, "acceptance takes the reservation")
	assert.NotNil(t, update.Job.AcceptedAt)
}

func TestEscrowService_Accept_InsufficientBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 400)
	job := pendingJob(campaign, creatorID, 500)

	// The atomic decrement loses; the job must stay pending, so no Update.
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.campaignRepo.EXPECT().ReserveBudget(ctx, tx, campaign.ID, int64(500)).Return(false, nil)

	_, err := d.svc.Accept(ctx, job.ID, creatorID)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_001", appErr.Code)
}

func TestEscrowService_Accept_WrongCreator(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, uuid.New(), 300)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)

	_, err := d.svc.Accept(ctx, job.ID, uuid.New())
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_003", appErr.Code)
}

func TestEscrowService_Cancel_ReleasesBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, creatorID, 300)
	job.Status = domain.JobStatusAccepted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.campaignRepo.EXPECT().ReleaseBudget(ctx, tx, campaign.ID, int64(300)).Return(nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Cancel(ctx, job.ID, creatorID, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, update.Job.Status)
	assert.Equal(t, int64(300), update.BudgetDelta)
	require.NotNil(t, update.Job.Reason)
	assert.Equal(t, "schedule conflict", *update.Job.Reason)
}

func TestEscrowService_Cancel_FromPendingReleasesNothing(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 1000)
	job := pendingJob(campaign, creatorID, 300)

	// A pending invitation never reserved anything, so no ReleaseBudget.
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Cancel(ctx, job.ID, creatorID, "not interested")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, update.Job.Status)
	assert.Zero(t, update.BudgetDelta)
}

func TestEscrowService_Submit(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, creatorID, 300)
	job.Status = domain.JobStatusAccepted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Submit(ctx, job.ID, creatorID, "https://cdn.example.com/deliverable.mp4")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSubmitted, update.Job.Status)
	require.NotNil(t, update.Job.DeliverableRef)
	assert.Equal(t, "https://cdn.example.com/deliverable.mp4", *update.Job.DeliverableRef)
}

func TestEscrowService_Submit_FromPendingRejected(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, creatorID, 300) // still PENDING

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)

	_, err := d.svc.Submit(ctx, job.ID, creatorID, "ref")
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_002", appErr.Code)
}

func TestEscrowService_Approve_RecordsPayout(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(merchantID, 1000, 700)
	job := pendingJob(campaign, creatorID, 300)
	job.Status = domain.JobStatusSubmitted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.earnings.EXPECT().RecordJobPayout(ctx, tx, gomock.Any(), gomock.Any()).Return(&domain.Earning{}, nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Approve(ctx, job.ID, merchantID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, update.Job.Status)
	assert.Zero(t, update.BudgetDelta, "approval converts the reservation to spend")
	assert.NotNil(t, update.Job.CompletedAt)
}

func TestEscrowService_Approve_WrongMerchant(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, uuid.New(), 300)
	job.Status = domain.JobStatusSubmitted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)

	_, err := d.svc.Approve(ctx, job.ID, uuid.New())
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_003", appErr.Code)
}

func TestEscrowService_Reject_ReleasesBudget(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(merchantID, 1000, 700)
	job := pendingJob(campaign, uuid.New(), 300)
	job.Status = domain.JobStatusSubmitted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)
	d.campaignRepo.EXPECT().ReleaseBudget(ctx, tx, campaign.ID, int64(300)).Return(nil)
	d.jobRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	update, err := d.svc.Reject(ctx, job.ID, merchantID, "off brief")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRejected, update.Job.Status)
	assert.Equal(t, int64(300), update.BudgetDelta)
}

func TestEscrowService_Reject_RequiresReason(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Reject(context.Background(), uuid.New(), uuid.New(), "")
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TOK_001", appErr.Code)
}

func TestEscrowService_TerminalJobRefusesFurtherEvents(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creatorID := uuid.New()
	tx := &mockTx{}
	campaign := activeCampaign(uuid.New(), 1000, 700)
	job := pendingJob(campaign, creatorID, 300)
	job.Status = domain.JobStatusCancelled

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.jobRepo.EXPECT().GetByIDForUpdate(ctx, tx, job.ID).Return(job, nil)

	_, err := d.svc.Accept(ctx, job.ID, creatorID)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CMP_002", appErr.Code)
}
