package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyPassword_LegacyAndModernBothMatch(t *testing.T) {
	modern, err := HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(modern, "$2a$"))

	legacy := "$2y$" + modern[len("$2a$"):]

	assert.True(t, VerifyPassword(modern, "s3cret!"))
	assert.True(t, VerifyPassword(legacy, "s3cret!"))
	assert.True(t, VerifyPassword(legacy+"\n", "s3cret!"), "stored hashes are trimmed")
	assert.True(t, VerifyPassword(modern, "  s3cret! "), "submitted passwords are trimmed")
	assert.False(t, VerifyPassword(legacy, "wrong"))
}

func TestVerifyPassword_BadHashNeverMatches(t *testing.T) {
	assert.False(t, VerifyPassword("", ""))
	assert.False(t, VerifyPassword("not-a-hash", "not-a-hash"))
}

func TestNormalizeLegacyHash(t *testing.T) {
	assert.Equal(t, "$2a$10$xyz", NormalizeLegacyHash("$2y$10$xyz"))
	assert.Equal(t, "$2b$10$xyz", NormalizeLegacyHash("$2b$10$xyz"))
	assert.Equal(t, "plain", NormalizeLegacyHash("plain"))
}

func TestHashPassword_ClampsCost(t *testing.T) {
	h, err := HashPassword("pw", 1)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestRandomDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, err := RandomDigits(6)
		require.NoError(t, err)
		assert.Len(t, s, 6)
		for _, r := range s {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}

func TestRandomHexAndHash(t *testing.T) {
	a, err := RandomHex(32)
	require.NoError(t, err)
	b, err := RandomHex(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)

	assert.Len(t, SHA256Hex(a), 64)
	assert.True(t, EqualHash(SHA256Hex(a), SHA256Hex(a)))
	assert.False(t, EqualHash(SHA256Hex(a), SHA256Hex(b)))
}

func TestSessionToken_RoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := NewSessionToken("k", SessionClaims{
		UserID: 5, OrganizationID: 2, Role: "admin",
		Roles: []string{"admin"}, Permissions: []string{"users.verify"},
	}, now, time.Hour)
	require.NoError(t, err)

	c, err := ParseSessionToken("k", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.UserID)
	assert.Equal(t, []string{"users.verify"}, c.Permissions)

	_, err = ParseSessionToken("other", tok.Token)
	assert.Error(t, err)
	_, err = ParseOrganizationToken("k", tok.Token)
	assert.ErrorIs(t, err, ErrTokenType)
}

func TestSessionToken_Expired(t *testing.T) {
	tok, err := NewSessionToken("k", SessionClaims{UserID: 1}, time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = ParseSessionToken("k", tok.Token)
	assert.Error(t, err)
}

func TestOrganizationToken(t *testing.T) {
	tok, err := NewOrganizationToken("k", 9, time.Now(), time.Hour)
	require.NoError(t, err)
	c, err := ParseOrganizationToken("k", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), c.OrganizationID)

	_, err = ParseSessionToken("k", tok.Token)
	assert.ErrorIs(t, err, ErrTokenType)
}
