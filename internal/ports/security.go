package ports

import (
	"time"

	"github.com/viralforge/sessionauth/internal/domain"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify never fails on a malformed digest; it reports false instead.
	Verify(password, hash string) bool
}

// TokenCodec signs and verifies self-contained tokens.
// Decode returns domain.ErrInvalidToken for every rejection reason.
type TokenCodec interface {
	Encode(claims map[string]any, ttl time.Duration) (string, error)
	Decode(token string) (map[string]any, error)
	IssuePair(subject string, tokenVersion int64) (domain.TokenPair, error)
	PublicJWKs() ([]map[string]any, error)
}
