package tracking

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/models"
)

var hexCode8 = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestGenerateFormat(t *testing.T) {
	code, err := Generate(8)
	require.NoError(t, err)
	assert.Regexp(t, hexCode8, code)

	// Odd lengths truncate the final hex digit.
	code, err = Generate(7)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{7}$`, code)
}

func TestGenerateDistinctDraws(t *testing.T) {
	a, err := Generate(8)
	require.NoError(t, err)
	b, err := Generate(8)
	require.NoError(t, err)
	assert.Regexp(t, hexCode8, a)
	assert.Regexp(t, hexCode8, b)
	assert.NotEqual(t, a, b)
}

func TestGenerateNoDuplicatesBirthdayBound(t *testing.T) {
	// 10k draws from a 16^8 space: duplicate probability ~1e-5.
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code, err := Generate(8)
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s at draw %d", code, i)
		seen[code] = struct{}{}
	}
}

func TestGenerateInvalidLength(t *testing.T) {
	for _, n := range []int{0, -1, -8} {
		_, err := Generate(n)
		assert.ErrorIs(t, err, ErrInvalidLength)
	}
}

// collidingInserter fails with ErrCodeTaken a fixed number of times
// before accepting.
type collidingInserter struct {
	collisions int
	calls      int
	codes      []string
}

func (f *collidingInserter) InsertLink(_ context.Context, link *models.AffiliateLink) error {
	f.calls++
	f.codes = append(f.codes, link.TrackingCode)
	if f.calls <= f.collisions {
		return ErrCodeTaken
	}
	return nil
}

func TestIssuerRetriesOnCollision(t *testing.T) {
	inserter := &collidingInserter{collisions: 2}
	issuer := NewIssuer(inserter, 8, 5, zap.NewNop())

	link := &models.AffiliateLink{DestinationURL: "https://example.com/item/1"}
	err := issuer.Issue(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, 3, inserter.calls)
	assert.Regexp(t, hexCode8, link.TrackingCode)
	// Each attempt used a fresh code.
	assert.Equal(t, link.TrackingCode, inserter.codes[2])
}

func TestIssuerExhaustedRetries(t *testing.T) {
	inserter := &collidingInserter{collisions: 100}
	issuer := NewIssuer(inserter, 8, 5, zap.NewNop())

	err := issuer.Issue(context.Background(), &models.AffiliateLink{})
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, 5, inserter.calls)
}

// brokenInserter fails with a non-collision error.
type brokenInserter struct{}

func (brokenInserter) InsertLink(context.Context, *models.AffiliateLink) error {
	return assert.AnError
}

func TestIssuerSurfacesPersistenceErrors(t *testing.T) {
	issuer := NewIssuer(brokenInserter{}, 8, 5, zap.NewNop())
	err := issuer.Issue(context.Background(), &models.AffiliateLink{})
	assert.ErrorIs(t, err, assert.AnError)
}
