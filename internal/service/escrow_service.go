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

// EscrowServiceImpl implements ports.EscrowService. Campaign budgets and job
// state only change inside its transactions, with the job row locked before
// any transition check.
type EscrowServiceImpl struct {
	campaignRepo ports.CampaignRepository
	jobRepo      ports.JobRepository
	earnings     ports.EarningsService
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl.
func NewEscrowService(
	campaignRepo ports.CampaignRepository,
	jobRepo ports.JobRepository,
	earnings ports.EarningsService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		campaignRepo: campaignRepo,
		jobRepo:      jobRepo,
		earnings:     earnings,
		transactor:   transactor,
		log:          log,
	}
}

// CreateCampaign opens a campaign with its full budget unreserved.
func (s *EscrowServiceImpl) CreateCampaign(ctx context.Context, req ports.CreateCampaignRequest) (*domain.Campaign, error) {
	if req.Title == "" {
		return nil, apperror.ErrInvalidInput("campaign title is required")
	}
	if req.Budget <= 0 {
		return nil, apperror.ErrInvalidInput("campaign budget must be positive")
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:              uuid.New(),
		MerchantID:      req.MerchantID,
		Title:           req.Title,
		TotalBudget:     req.Budget,
		RemainingBudget: req.Budget,
		Status:          domain.CampaignStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create campaign: %w", err))
	}

	s.log.Info().
		Str("campaign_id", campaign.ID.String()).
		Str("merchant_id", req.MerchantID.String()).
		Int64("budget", req.Budget).
		Msg("campaign created")

	return campaign, nil
}

// GetCampaign returns the merchant's campaign.
func (s *EscrowServiceImpl) GetCampaign(ctx context.Context, merchantID, campaignID uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get campaign: %w", err))
	}
	if campaign == nil || campaign.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("campaign")
	}
	return campaign, nil
}

// CreateJob invites a creator at an agreed price. Creation is an
// affordability pre-check against the remaining budget; nothing is
// reserved until the creator accepts, so several pending invitations may
// together exceed the pool and get settled first-accepted-first-served.
func (s *EscrowServiceImpl) CreateJob(ctx context.Context, req ports.CreateJobRequest) (*domain.Job, error) {
	if req.AgreedPrice <= 0 {
		return nil, apperror.ErrInvalidInput("agreed price must be positive")
	}

	campaign, err := s.campaignRepo.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get campaign: %w", err))
	}
	if campaign == nil || campaign.MerchantID != req.MerchantID {
		return nil, apperror.ErrNotFound("campaign")
	}
	if campaign.Status != domain.CampaignStatusActive {
		return nil, apperror.ErrInvalidInput("campaign is not active")
	}
	if campaign.RemainingBudget < req.AgreedPrice {
		return nil, apperror.ErrInsufficientBudget()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.New(),
		CampaignID:  req.CampaignID,
		MerchantID:  req.MerchantID,
		CreatorID:   req.CreatorID,
		AgreedPrice: req.AgreedPrice,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobRepo.Create(ctx, dbTx, job); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create job: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("campaign_id", req.CampaignID.String()).
		Str("creator_id", req.CreatorID.String()).
		Int64("agreed_price", req.AgreedPrice).
		Msg("job created")

	return job, nil
}

// Accept moves a pending job to accepted and reserves its agreed price
// from the campaign's remaining budget. The reservation is an atomic
// decrement-if-sufficient; when the pool no longer covers the price the
// job stays pending and the creator sees InsufficientBudget. Creator
// action.
func (s *EscrowServiceImpl) Accept(ctx context.Context, jobID, creatorID uuid.UUID) (*ports.JobUpdate, error) {
	return s.transition(ctx, jobID, domain.JobEventAccept, func(job *domain.Job, now time.Time) error {
		if job.CreatorID != creatorID {
			return apperror.ErrNotJobParty()
		}
		job.AcceptedAt = &now
		return nil
	})
}

// Cancel closes a pending or accepted job. An accepted job's reservation
// is released; a pending one never took any. Creator action.
func (s *EscrowServiceImpl) Cancel(ctx context.Context, jobID, creatorID uuid.UUID, reason string) (*ports.JobUpdate, error) {
	return s.transition(ctx, jobID, domain.JobEventCancel, func(job *domain.Job, now time.Time) error {
		if job.CreatorID != creatorID {
			return apperror.ErrNotJobParty()
		}
		if reason != "" {
			job.Reason = &reason
		}
		job.ClosedAt = &now
		return nil
	})
}

// Submit attaches the deliverable and moves the job to submitted. Creator
// action.
func (s *EscrowServiceImpl) Submit(ctx context.Context, jobID, creatorID uuid.UUID, deliverableRef string) (*ports.JobUpdate, error) {
	if deliverableRef == "" {
		return nil, apperror.ErrInvalidInput("deliverable reference is required")
	}
	return s.transition(ctx, jobID, domain.JobEventSubmit, func(job *domain.Job, now time.Time) error {
		if job.CreatorID != creatorID {
			return apperror.ErrNotJobParty()
		}
		job.DeliverableRef = &deliverableRef
		job.SubmittedAt = &now
		return nil
	})
}

// Approve completes a submitted job: the reservation converts to spend and
// the creator's payout is recorded in the same transaction. Merchant action.
func (s *EscrowServiceImpl) Approve(ctx context.Context, jobID, merchantID uuid.UUID) (*ports.JobUpdate, error) {
	return s.transition(ctx, jobID, domain.JobEventApprove, func(job *domain.Job, now time.Time) error {
		if job.MerchantID != merchantID {
			return apperror.ErrNotJobParty()
		}
		job.CompletedAt = &now
		job.ClosedAt = &now
		return nil
	})
}

// Reject closes a submitted job and releases its reservation. Merchant
// action.
func (s *EscrowServiceImpl) Reject(ctx context.Context, jobID, merchantID uuid.UUID, reason string) (*ports.JobUpdate, error) {
	if reason == "" {
		return nil, apperror.ErrInvalidInput("rejection reason is required")
	}
	return s.transition(ctx, jobID, domain.JobEventReject, func(job *domain.Job, now time.Time) error {
		if job.MerchantID != merchantID {
			return apperror.ErrNotJobParty()
		}
		job.Reason = &reason
		job.ClosedAt = &now
		return nil
	})
}

// transition runs one job state transition: lock the row, check the actor
// and the state machine, apply the event's budget effect, persist.
func (s *EscrowServiceImpl) transition(ctx context.Context, jobID uuid.UUID, event domain.JobEvent, mutate func(*domain.Job, time.Time) error) (*ports.JobUpdate, error) {
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	job, err := s.jobRepo.GetByIDForUpdate(ctx, dbTx, jobID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock job: %w", err))
	}
	if job == nil {
		return nil, apperror.ErrNotFound("job")
	}

	if err := mutate(job, now); err != nil {
		return nil, err
	}
	if !job.Status.Allows(event) {
		return nil, apperror.ErrInvalidTransition(string(job.Status), string(event))
	}

	prior := job.Status
	job.Status = event.Target()
	job.UpdatedAt = now

	budgetDelta, err := s.applyBudgetEffect(ctx, dbTx, job, prior, event, now)
	if err != nil {
		return nil, err
	}

	if err := s.jobRepo.Update(ctx, dbTx, job); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update job: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("event", string(event)).
		Str("from", string(prior)).
		Str("to", string(job.Status)).
		Int64("budget_delta", budgetDelta).
		Msg("job transitioned")

	return &ports.JobUpdate{Job: job, BudgetDelta: budgetDelta}, nil
}

// applyBudgetEffect applies the event's budget movement. Accept takes the
// reservation; cancel and reject hand it back to the pool, but only when
// the state being left actually held one (cancelling a pending invitation
// releases nothing); approve keeps it spent and books the creator's
// payout.
func (s *EscrowServiceImpl) applyBudgetEffect(ctx context.Context, tx pgx.Tx, job *domain.Job, prior domain.JobStatus, event domain.JobEvent, now time.Time) (int64, error) {
	switch event {
	case domain.JobEventAccept:
		reserved, err := s.campaignRepo.ReserveBudget(ctx, tx, job.CampaignID, job.AgreedPrice)
		if err != nil {
			return 0, apperror.InternalError(fmt.Errorf("reserve budget: %w", err))
		}
		if !reserved {
			return 0, apperror.ErrInsufficientBudget()
		}
		return -job.AgreedPrice, nil
	case domain.JobEventCancel, domain.JobEventReject:
		if !prior.BudgetReserved() {
			return 0, nil
		}
		if err := s.campaignRepo.ReleaseBudget(ctx, tx, job.CampaignID, job.AgreedPrice); err != nil {
			return 0, apperror.InternalError(fmt.Errorf("release budget: %w", err))
		}
		return job.AgreedPrice, nil
	case domain.JobEventApprove:
		if _, err := s.earnings.RecordJobPayout(ctx, tx, job, now); err != nil {
			return 0, err
		}
		return 0, nil
	default:
		return 0, nil
	}
}
