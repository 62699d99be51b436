package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleAdmin     = "admin"
	RoleAffiliate = "affiliate"
	RoleMember    = "member"
)

// User represents a platform account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
