package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AdPurchaseRepo implements ports.AdPurchaseRepository. Purchase headers
// and their per-batch lines are written together and never updated.
type AdPurchaseRepo struct {
	pool Pool
}

// NewAdPurchaseRepo creates a new AdPurchaseRepo.
func NewAdPurchaseRepo(pool Pool) *AdPurchaseRepo {
	return &AdPurchaseRepo{pool: pool}
}

const purchaseColumns = `id, merchant_id, wallet_id, reference_id, scope, raw_cost, effective_cost, discount_bps, starts_at, ends_at, created_at`

// Create inserts the purchase record and its consumption lines within the
// allocation transaction.
func (r *AdPurchaseRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.AdPurchase) error {
	query := `INSERT INTO ad_purchases (id, merchant_id, wallet_id, reference_id, scope, raw_cost, effective_cost, discount_bps, starts_at, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.MerchantID, p.WalletID, p.ReferenceID, p.Scope,
		p.RawCost, p.EffectiveCost, p.DiscountBps,
		p.StartsAt, p.EndsAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ad purchase: %w", err)
	}

	lineQuery := `INSERT INTO ad_purchase_lines (purchase_id, batch_id, amount)
		VALUES ($1, $2, $3)`
	for _, line := range p.Lines {
		if _, err := tx.Exec(ctx, lineQuery, p.ID, line.BatchID, line.Amount); err != nil {
			return fmt.Errorf("insert ad purchase line: %w", err)
		}
	}
	return nil
}

// GetByReference fetches a purchase by the merchant's reference ID.
// Returns nil when the reference has not been used.
func (r *AdPurchaseRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.AdPurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM ad_purchases
		WHERE merchant_id = $1 AND reference_id = $2`

	p, err := scanPurchase(r.pool.QueryRow(ctx, query, merchantID, referenceID))
	if err != nil {
		return nil, fmt.Errorf("get purchase by reference: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	if err := r.loadLines(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the merchant's purchases, newest first, with a total count
// for pagination.
func (r *AdPurchaseRepo) List(ctx context.Context, merchantID uuid.UUID, page, pageSize int) ([]domain.AdPurchase, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM ad_purchases WHERE merchant_id = $1`
	if err := r.pool.QueryRow(ctx, countQuery, merchantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchases: %w", err)
	}

	query := `SELECT ` + purchaseColumns + ` FROM ad_purchases
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx, query, merchantID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []domain.AdPurchase
	for rows.Next() {
		var p domain.AdPurchase
		err := rows.Scan(
			&p.ID, &p.MerchantID, &p.WalletID, &p.ReferenceID, &p.Scope,
			&p.RawCost, &p.EffectiveCost, &p.DiscountBps,
			&p.StartsAt, &p.EndsAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate purchases: %w", err)
	}

	return purchases, total, nil
}

func (r *AdPurchaseRepo) loadLines(ctx context.Context, p *domain.AdPurchase) error {
	query := `SELECT batch_id, amount FROM ad_purchase_lines WHERE purchase_id = $1`

	rows, err := r.pool.Query(ctx, query, p.ID)
	if err != nil {
		return fmt.Errorf("load purchase lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.ConsumptionLine
		if err := rows.Scan(&line.BatchID, &line.Amount); err != nil {
			return fmt.Errorf("scan purchase line: %w", err)
		}
		p.Lines = append(p.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate purchase lines: %w", err)
	}
	return nil
}

func scanPurchase(row pgx.Row) (*domain.AdPurchase, error) {
	p := &domain.AdPurchase{}
	err := row.Scan(
		&p.ID, &p.MerchantID, &p.WalletID, &p.ReferenceID, &p.Scope,
		&p.RawCost, &p.EffectiveCost, &p.DiscountBps,
		&p.StartsAt, &p.EndsAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
