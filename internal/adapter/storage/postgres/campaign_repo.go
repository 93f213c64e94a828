package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CampaignRepo implements ports.CampaignRepository.
type CampaignRepo struct {
	pool Pool
}

// NewCampaignRepo creates a new CampaignRepo.
func NewCampaignRepo(pool Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

// Create inserts a new campaign into the database.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	query := `INSERT INTO campaigns (id, merchant_id, title, total_budget, remaining_budget, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.MerchantID, c.Title, c.TotalBudget, c.RemainingBudget,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID fetches a campaign by its UUID.
func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	query := `SELECT id, merchant_id, title, total_budget, remaining_budget, status, created_at, updated_at
		FROM campaigns WHERE id = $1`

	c := &domain.Campaign{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.MerchantID, &c.Title, &c.TotalBudget, &c.RemainingBudget,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return c, nil
}

// ReserveBudget atomically decrements remaining budget if it covers amount.
// The WHERE clause is the gate: a zero-row update means the pool could not
// cover the reservation and nothing changed.
func (r *CampaignRepo) ReserveBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) (bool, error) {
	query := `UPDATE campaigns SET remaining_budget = remaining_budget - $1, updated_at = NOW()
		WHERE id = $2 AND remaining_budget >= $1`

	tag, err := tx.Exec(ctx, query, amount, campaignID)
	if err != nil {
		return false, fmt.Errorf("reserve campaign budget: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseBudget returns a reservation to the pool, guarded so remaining can
// never exceed total.
func (r *CampaignRepo) ReleaseBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) error {
	query := `UPDATE campaigns SET remaining_budget = remaining_budget + $1, updated_at = NOW()
		WHERE id = $2 AND remaining_budget + $1 <= total_budget`

	tag, err := tx.Exec(ctx, query, amount, campaignID)
	if err != nil {
		return fmt.Errorf("release campaign budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s: release of %d would exceed total budget", campaignID, amount)
	}
	return nil
}
