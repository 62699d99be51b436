package tracking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshmarket/backend/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Repository handles affiliate link and click persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an affiliate links repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertLink inserts an affiliate link. Returns ErrCodeTaken when the
// tracking code already exists, so the Issuer can regenerate.
func (r *Repository) InsertLink(ctx context.Context, link *models.AffiliateLink) error {
	const q = `INSERT INTO affiliate_links (id, campaign_id, affiliate_id, tracking_code, destination_url)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, link.CampaignID, link.AffiliateID, link.TrackingCode, link.DestinationURL).
		Scan(&link.ID, &link.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrCodeTaken
	}
	return err
}

// GetByCode returns the affiliate link for a tracking code, or nil when unknown.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.AffiliateLink, error) {
	const q = `SELECT id, campaign_id, affiliate_id, tracking_code, destination_url, created_at
		FROM affiliate_links WHERE tracking_code = $1`
	var link models.AffiliateLink
	err := r.pool.QueryRow(ctx, q, code).Scan(&link.ID, &link.CampaignID, &link.AffiliateID, &link.TrackingCode, &link.DestinationURL, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// GetByID returns the affiliate link by ID, or nil when unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AffiliateLink, error) {
	const q = `SELECT id, campaign_id, affiliate_id, tracking_code, destination_url, created_at
		FROM affiliate_links WHERE id = $1`
	var link models.AffiliateLink
	err := r.pool.QueryRow(ctx, q, id).Scan(&link.ID, &link.CampaignID, &link.AffiliateID, &link.TrackingCode, &link.DestinationURL, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByAffiliate returns all links issued to an affiliate, newest first.
func (r *Repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.AffiliateLink, error) {
	const q = `SELECT id, campaign_id, affiliate_id, tracking_code, destination_url, created_at
		FROM affiliate_links WHERE affiliate_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, affiliateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.AffiliateLink
	for rows.Next() {
		var link models.AffiliateLink
		if err := rows.Scan(&link.ID, &link.CampaignID, &link.AffiliateID, &link.TrackingCode, &link.DestinationURL, &link.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, link)
	}
	return list, rows.Err()
}

// Delete removes an affiliate link, retiring its tracking code.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM affiliate_links WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// RecordClick logs a click-through on a link.
func (r *Repository) RecordClick(ctx context.Context, linkID uuid.UUID, referrerURL string) error {
	const q = `INSERT INTO link_clicks (id, link_id, referrer_url) VALUES (gen_random_uuid(), $1, $2)`
	_, err := r.pool.Exec(ctx, q, linkID, referrerURL)
	return err
}
