package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// legacyPrefix marks hashes produced by PHP's password_hash().  The
// algorithm is identical to $2a$/$2b$; only the version tag differs, and
// x/crypto/bcrypt does not recognise it.
const legacyPrefix = "$2y$"

// HashPassword returns bcrypt hash using the given cost.  Costs outside
// bcrypt's accepted range are clamped.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NormalizeLegacyHash rewrites a $2y$ hash into the equivalent $2a$ form.
// Any other input is returned unchanged.
func NormalizeLegacyHash(hash string) string {
	if strings.HasPrefix(hash, legacyPrefix) {
		return "$2a$" + hash[len(legacyPrefix):]
	}
	return hash
}

// VerifyPassword safely compares bcrypt hash and plain password.  The
// submitted password is trimmed and legacy hashes are accepted.  An empty
// or malformed hash never matches.
func VerifyPassword(hash, plain string) bool {
	hash = strings.TrimSpace(hash)
	plain = strings.TrimSpace(plain)
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(NormalizeLegacyHash(hash)), []byte(plain)) == nil
}
