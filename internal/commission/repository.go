package commission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshmarket/backend/internal/models"
)

// Repository handles conversion persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a conversions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending conversion awaiting commission settlement.
func (r *Repository) Create(ctx context.Context, conv *models.Conversion) error {
	const q = `INSERT INTO conversions (id, link_id, order_ref, sale_price, currency)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, conv.LinkID, conv.OrderRef, conv.SalePrice, conv.Currency).
		Scan(&conv.ID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
}

// GetByID returns a conversion by ID, or nil when unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	const q = `SELECT id, link_id, order_ref, sale_price, currency, platform_amount, affiliate_amount, seller_amount, status, created_at, updated_at
		FROM conversions WHERE id = $1`
	var conv models.Conversion
	err := r.pool.QueryRow(ctx, q, id).Scan(&conv.ID, &conv.LinkID, &conv.OrderRef, &conv.SalePrice, &conv.Currency,
		&conv.PlatformAmount, &conv.AffiliateAmount, &conv.SellerAmount, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Settle records the computed split and marks the conversion completed.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, split Split) error {
	const q = `UPDATE conversions
		SET platform_amount = $1, affiliate_amount = $2, seller_amount = $3, status = $4, updated_at = NOW()
		WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, split.Platform, split.Affiliate, split.Seller, models.ConversionStatusCompleted, id)
	return err
}

// MarkFailed marks a conversion failed after exhausted settlement retries.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE conversions SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.ConversionStatusFailed, id)
	return err
}

// ListByLink returns conversions for an affiliate link, newest first.
func (r *Repository) ListByLink(ctx context.Context, linkID uuid.UUID) ([]models.Conversion, error) {
	const q = `SELECT id, link_id, order_ref, sale_price, currency, platform_amount, affiliate_amount, seller_amount, status, created_at, updated_at
		FROM conversions WHERE link_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Conversion
	for rows.Next() {
		var conv models.Conversion
		if err := rows.Scan(&conv.ID, &conv.LinkID, &conv.OrderRef, &conv.SalePrice, &conv.Currency,
			&conv.PlatformAmount, &conv.AffiliateAmount, &conv.SellerAmount, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, conv)
	}
	return list, rows.Err()
}
