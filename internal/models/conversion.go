package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversion statuses.
const (
	ConversionStatusPending   = "pending"
	ConversionStatusCompleted = "completed"
	ConversionStatusFailed    = "failed"
)

// Conversion is a sale attributed to an affiliate link. Amounts are in
// currency units (the commission split preserves price = platform +
// affiliate + seller exactly).
type Conversion struct {
	ID              uuid.UUID `json:"id"`
	LinkID          uuid.UUID `json:"link_id"`
	OrderRef        string    `json:"order_ref"`
	SalePrice       float64   `json:"sale_price"`
	Currency        string    `json:"currency"`
	PlatformAmount  float64   `json:"platform_amount"`
	AffiliateAmount float64   `json:"affiliate_amount"`
	SellerAmount    float64   `json:"seller_amount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
