package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign groups affiliate links under a named promotion owned by a user.
type Campaign struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
