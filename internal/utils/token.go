package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenBytes is the amount of randomness in an issued token (256 bits).
const TokenBytes = 32

// IssuedToken is a freshly minted one-time token. Token goes to the user;
// only Digest and ExpiresAt are stored.
type IssuedToken struct {
	Token     string
	Digest    string
	ExpiresAt time.Time
}

// TokenGenerator mints random tokens with a caller-chosen validity window.
type TokenGenerator struct {
	now func() time.Time
}

// NewTokenGenerator returns a generator using the wall clock.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{now: time.Now}
}

// NewTokenGeneratorWithClock returns a generator reading time from now.
func NewTokenGeneratorWithClock(now func() time.Time) *TokenGenerator {
	return &TokenGenerator{now: now}
}

// Issue creates a token valid for window from now.
func (g *TokenGenerator) Issue(window time.Duration) (IssuedToken, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return IssuedToken{}, err
	}
	token := hex.EncodeToString(buf)
	return IssuedToken{
		Token:     token,
		Digest:    DigestToken(token),
		ExpiresAt: g.now().Add(window).UTC(),
	}, nil
}

// DigestToken returns the hex SHA-256 of token. It is deterministic so stored
// digests can be looked up by equality.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
