package commission

import (
	"errors"
	"math"
)

// Default split rates: platform keeps 5%, the referring affiliate 3%,
// the seller receives the remainder.
const (
	DefaultPlatformRate  = 0.05
	DefaultAffiliateRate = 0.03
)

// ErrInvalidPrice is returned for non-positive or non-finite sale prices.
var ErrInvalidPrice = errors.New("invalid sale price")

// Split is the three-way division of a sale price. The amounts always
// sum exactly to the input price: platform and affiliate shares are
// rounded half-even to cents and the seller takes the exact remainder,
// unrounded, so prices off the cent grid still recompose.
type Split struct {
	Platform  float64 `json:"platform_amount"`
	Affiliate float64 `json:"affiliate_amount"`
	Seller    float64 `json:"seller_amount"`
}

// Ledger computes commission splits at fixed rates.
type Ledger struct {
	platformRate  float64
	affiliateRate float64
}

// NewLedger creates a ledger with the given rates. Non-positive rates
// fall back to the defaults.
func NewLedger(platformRate, affiliateRate float64) *Ledger {
	if platformRate <= 0 {
		platformRate = DefaultPlatformRate
	}
	if affiliateRate <= 0 {
		affiliateRate = DefaultAffiliateRate
	}
	return &Ledger{platformRate: platformRate, affiliateRate: affiliateRate}
}

// Split divides price into platform, affiliate, and seller amounts.
// Returns ErrInvalidPrice when price is zero, negative, NaN, or infinite.
func (l *Ledger) Split(price float64) (Split, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Split{}, ErrInvalidPrice
	}
	platform := roundCents(price * l.platformRate)
	affiliate := roundCents(price * l.affiliateRate)
	// Not rounded: rounding the remainder would break the exact-sum
	// property for prices with sub-cent precision.
	seller := price - platform - affiliate
	return Split{Platform: platform, Affiliate: affiliate, Seller: seller}, nil
}

// roundCents rounds to 2 decimal places using round-half-even, the
// bankers' rounding used for currency minor units.
func roundCents(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
