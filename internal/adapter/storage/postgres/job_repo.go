package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobRepo implements ports.JobRepository.
type JobRepo struct {
	pool Pool
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(pool Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, campaign_id, merchant_id, creator_id, agreed_price, status, deliverable_ref, reason, commission_amount, payable_amount, created_at, accepted_at, submitted_at, completed_at, closed_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	j := &domain.Job{}
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.MerchantID, &j.CreatorID, &j.AgreedPrice,
		&j.Status, &j.DeliverableRef, &j.Reason,
		&j.CommissionAmount, &j.PayableAmount,
		&j.CreatedAt, &j.AcceptedAt, &j.SubmittedAt, &j.CompletedAt, &j.ClosedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

// Create inserts a new job within the budget-reservation transaction.
func (r *JobRepo) Create(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	query := `INSERT INTO campaign_jobs (id, campaign_id, merchant_id, creator_id, agreed_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		j.ID, j.CampaignID, j.MerchantID, j.CreatorID, j.AgreedPrice,
		j.Status, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its UUID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE id = $1`

	j, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return j, nil
}

// GetByIDForUpdate fetches a job with a row lock. Every transition takes
// the lock before checking the state machine, so concurrent events on one
// job serialize. MUST be called within a transaction.
func (r *JobRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE id = $1 FOR UPDATE`

	j, err := scanJob(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get job for update: %w", err)
	}
	return j, nil
}

// Update persists the mutable transition fields. AgreedPrice is never
// written back.
func (r *JobRepo) Update(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	query := `UPDATE campaign_jobs SET
		status = $1, deliverable_ref = $2, reason = $3,
		commission_amount = $4, payable_amount = $5,
		accepted_at = $6, submitted_at = $7, completed_at = $8, closed_at = $9,
		updated_at = $10
		WHERE id = $11`

	tag, err := tx.Exec(ctx, query,
		j.Status, j.DeliverableRef, j.Reason,
		j.CommissionAmount, j.PayableAmount,
		j.AcceptedAt, j.SubmittedAt, j.CompletedAt, j.ClosedAt,
		j.UpdatedAt, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", j.ID)
	}
	return nil
}

// ListByCampaign returns the campaign's jobs, newest first.
func (r *JobRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs
		WHERE campaign_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		err := rows.Scan(
			&j.ID, &j.CampaignID, &j.MerchantID, &j.CreatorID, &j.AgreedPrice,
			&j.Status, &j.DeliverableRef, &j.Reason,
			&j.CommissionAmount, &j.PayableAmount,
			&j.CreatedAt, &j.AcceptedAt, &j.SubmittedAt, &j.CompletedAt, &j.ClosedAt, &j.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
