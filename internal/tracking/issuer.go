package tracking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/models"
)

// DefaultMaxRetries bounds the generate-and-insert loop on code collision.
const DefaultMaxRetries = 5

var (
	// ErrCodeTaken is returned by a LinkInserter when the generated code
	// already exists (unique violation).
	ErrCodeTaken = errors.New("tracking code already taken")
	// ErrExhaustedRetries is returned when every generated code collided.
	ErrExhaustedRetries = errors.New("exhausted tracking code retries")
)

// LinkInserter persists an affiliate link, failing with ErrCodeTaken on
// a tracking code collision.
type LinkInserter interface {
	InsertLink(ctx context.Context, link *models.AffiliateLink) error
}

// Issuer issues affiliate links with unique tracking codes: generate a
// code, attempt the insert, regenerate on collision, bounded by maxRetries.
type Issuer struct {
	inserter   LinkInserter
	codeLength int
	maxRetries int
	logger     *zap.Logger
}

// NewIssuer creates an issuer. Non-positive codeLength or maxRetries
// fall back to the defaults.
func NewIssuer(inserter LinkInserter, codeLength, maxRetries int, logger *zap.Logger) *Issuer {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{inserter: inserter, codeLength: codeLength, maxRetries: maxRetries, logger: logger}
}

// Issue fills link.TrackingCode with a fresh unique code and persists the
// link. Returns ErrExhaustedRetries after maxRetries collisions.
func (i *Issuer) Issue(ctx context.Context, link *models.AffiliateLink) error {
	for attempt := 1; attempt <= i.maxRetries; attempt++ {
		code, err := Generate(i.codeLength)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		link.TrackingCode = code
		err = i.inserter.InsertLink(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return err
		}
		i.logger.Debug("tracking code collision, regenerating", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return ErrExhaustedRetries
}
