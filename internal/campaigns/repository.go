package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshmarket/backend/internal/models"
)

// Repository handles campaign persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a campaigns repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a campaign.
func (r *Repository) Create(ctx context.Context, camp *models.Campaign) error {
	const q = `INSERT INTO campaigns (id, name, slug, owner_id)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, camp.Name, camp.Slug, camp.OwnerID).
		Scan(&camp.ID, &camp.CreatedAt, &camp.UpdatedAt)
}

// GetByID returns a campaign by ID, or nil when unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	const q = `SELECT id, name, slug, owner_id, created_at, updated_at FROM campaigns WHERE id = $1`
	var camp models.Campaign
	err := r.pool.QueryRow(ctx, q, id).Scan(&camp.ID, &camp.Name, &camp.Slug, &camp.OwnerID, &camp.CreatedAt, &camp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &camp, nil
}

// GetBySlug returns a campaign by slug, or nil when unknown.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Campaign, error) {
	const q = `SELECT id, name, slug, owner_id, created_at, updated_at FROM campaigns WHERE slug = $1`
	var camp models.Campaign
	err := r.pool.QueryRow(ctx, q, slug).Scan(&camp.ID, &camp.Name, &camp.Slug, &camp.OwnerID, &camp.CreatedAt, &camp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &camp, nil
}

// ListByOwner returns campaigns owned by a user, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Campaign, error) {
	const q = `SELECT id, name, slug, owner_id, created_at, updated_at FROM campaigns WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Campaign
	for rows.Next() {
		var camp models.Campaign
		if err := rows.Scan(&camp.ID, &camp.Name, &camp.Slug, &camp.OwnerID, &camp.CreatedAt, &camp.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, camp)
	}
	return list, rows.Err()
}
