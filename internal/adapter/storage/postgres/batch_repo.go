package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BatchRepo implements ports.BatchRepository.
type BatchRepo struct {
	pool Pool
}

// NewBatchRepo creates a new BatchRepo.
func NewBatchRepo(pool Pool) *BatchRepo {
	return &BatchRepo{pool: pool}
}

const batchColumns = `id, wallet_id, amount, remaining, unit_price, provenance, issued_at, expires_at, created_at`

// Create inserts a new token batch within a transaction.
func (r *BatchRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.Batch) error {
	query := `INSERT INTO token_batches (id, wallet_id, amount, remaining, unit_price, provenance, issued_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		b.ID, b.WalletID, b.Amount, b.Remaining, b.UnitPrice,
		b.Provenance, b.IssuedAt, b.ExpiresAt, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ListConsumable returns the wallet's spendable batches in FIFO order
// (issued-at ascending). Runs inside the wallet-lock transaction so the
// snapshot is stable for planning.
func (r *BatchRepo) ListConsumable(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, now time.Time) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM token_batches
		WHERE wallet_id = $1 AND remaining > 0 AND expires_at > $2
		ORDER BY issued_at ASC, created_at ASC`

	rows, err := tx.Query(ctx, query, walletID, now)
	if err != nil {
		return nil, fmt.Errorf("list consumable batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

// ListByWallet returns all batches including drained and expired ones.
func (r *BatchRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM token_batches
		WHERE wallet_id = $1
		ORDER BY issued_at ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	return collectBatches(rows)
}

// ConsumeRemaining decrements remaining by take, guarded by a compare
// against the remaining value the plan was computed from. A zero-row
// update means another committed spend got there first.
func (r *BatchRepo) ConsumeRemaining(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, take, expectedRemaining int64) error {
	query := `UPDATE token_batches SET remaining = remaining - $1
		WHERE id = $2 AND remaining = $3 AND remaining >= $1`

	tag, err := tx.Exec(ctx, query, take, batchID, expectedRemaining)
	if err != nil {
		return fmt.Errorf("consume batch remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrStaleRemaining
	}
	return nil
}

func collectBatches(rows pgx.Rows) ([]domain.Batch, error) {
	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		err := rows.Scan(
			&b.ID, &b.WalletID, &b.Amount, &b.Remaining, &b.UnitPrice,
			&b.Provenance, &b.IssuedAt, &b.ExpiresAt, &b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}
