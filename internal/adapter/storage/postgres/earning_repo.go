package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EarningRepo implements ports.EarningRepository. The earnings table is
// append-only: entries are inserted and summed, never updated or deleted.
type EarningRepo struct {
	pool Pool
}

// NewEarningRepo creates a new EarningRepo.
func NewEarningRepo(pool Pool) *EarningRepo {
	return &EarningRepo{pool: pool}
}

const earningColumns = `id, creator_id, job_id, type, amount, status, earned_at, available_at`

// Create appends a ledger entry within a transaction.
func (r *EarningRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Earning) error {
	query := `INSERT INTO earnings (id, creator_id, job_id, type, amount, status, earned_at, available_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.CreatorID, e.JobID, e.Type, e.Amount, e.Status,
		e.EarnedAt, e.AvailableAt,
	)
	if err != nil {
		return fmt.Errorf("insert earning: %w", err)
	}
	return nil
}

// ListByCreator returns the creator's full ledger, newest first.
func (r *EarningRepo) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Earning, error) {
	query := `SELECT ` + earningColumns + ` FROM earnings
		WHERE creator_id = $1 ORDER BY earned_at DESC`

	rows, err := r.pool.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	defer rows.Close()

	return collectEarnings(rows)
}

// ListByCreatorPeriod returns entries earned inside [from, to).
func (r *EarningRepo) ListByCreatorPeriod(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]domain.Earning, error) {
	query := `SELECT ` + earningColumns + ` FROM earnings
		WHERE creator_id = $1 AND earned_at >= $2 AND earned_at < $3
		ORDER BY earned_at DESC`

	rows, err := r.pool.Query(ctx, query, creatorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list earnings by period: %w", err)
	}
	defer rows.Close()

	return collectEarnings(rows)
}

// AvailableBalance sums the entries effective at now: withdrawals always
// count, payouts only once vested. Runs inside the withdrawal transaction
// under the account row lock.
func (r *EarningRepo) AvailableBalance(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID, now time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM earnings
		WHERE creator_id = $1 AND (type = 'WITHDRAWAL' OR available_at <= $2)`

	var balance int64
	if err := tx.QueryRow(ctx, query, creatorID, now).Scan(&balance); err != nil {
		return 0, fmt.Errorf("sum available balance: %w", err)
	}
	return balance, nil
}

func collectEarnings(rows pgx.Rows) ([]domain.Earning, error) {
	var earnings []domain.Earning
	for rows.Next() {
		var e domain.Earning
		err := rows.Scan(
			&e.ID, &e.CreatorID, &e.JobID, &e.Type, &e.Amount, &e.Status,
			&e.EarnedAt, &e.AvailableAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate earnings: %w", err)
	}
	return earnings, nil
}
