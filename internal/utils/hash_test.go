package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherHash(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	t.Run("digest differs from plaintext", func(t *testing.T) {
		digest, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, "secret1", digest)
		assert.True(t, strings.HasPrefix(digest, "$2a$"))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		d1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		d2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, d1, d2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, ErrEmptyPassword)
	})

	t.Run("uses configured cost", func(t *testing.T) {
		digest, err := hasher.Hash("secret1")
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(digest))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost, cost)
	})
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewBcryptHasher(99).Cost())
	assert.Equal(t, 10, NewBcryptHasher(10).Cost())
}

func TestBcryptHasherMatches(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)
	digest, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	assert.True(t, hasher.Matches("correctpassword", digest))
	assert.False(t, hasher.Matches("wrongpassword", digest))
	assert.False(t, hasher.Matches("correctpassword", ""))
	assert.False(t, hasher.Matches("correctpassword", "not-a-bcrypt-digest"))
	assert.False(t, hasher.Matches("correctpassword", "correctpassword"))
}
