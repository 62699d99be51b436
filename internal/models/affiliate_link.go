package models

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateLink maps a tracking code to a destination URL for attribution.
// The tracking code is immutable once issued; it is retired only by
// deleting the link.
type AffiliateLink struct {
	ID             uuid.UUID  `json:"id"`
	CampaignID     *uuid.UUID `json:"campaign_id,omitempty"`
	AffiliateID    uuid.UUID  `json:"affiliate_id"`
	TrackingCode   string     `json:"tracking_code"`
	DestinationURL string     `json:"destination_url"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LinkClick records a single click-through on an affiliate link.
type LinkClick struct {
	ID          uuid.UUID `json:"id"`
	LinkID      uuid.UUID `json:"link_id"`
	ReferrerURL string    `json:"referrer_url,omitempty"`
	ClickedAt   time.Time `json:"clicked_at"`
}
