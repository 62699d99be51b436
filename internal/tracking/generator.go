package tracking

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultCodeLength is the tracking code length used when none is configured.
const DefaultCodeLength = 8

// ErrInvalidLength is returned for non-positive code lengths.
var ErrInvalidLength = errors.New("invalid code length")

// Generate produces a random lowercase hex tracking code of the given
// length. Collision probability is 1/16^length per draw; the generator
// does not guarantee global uniqueness — callers must enforce it on
// insert (see Issuer).
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf)[:length], nil
}
