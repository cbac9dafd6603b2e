package utils // package utils provides helpers for token creation and hashing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "typ" claim.  A session token proves a login;
// an organization token only pins an anonymous visitor to a tenant.
const (
	TokenTypeSession      = "session"
	TokenTypeOrganization = "org"
)

var ErrTokenType = errors.New("unexpected token type")

// SessionClaims is the payload of a session token.  Roles and Permissions
// are deduplicated and sorted by the issuer.
type SessionClaims struct {
	Type           string   `json:"typ"`
	UserID         uint64   `json:"userId"`
	OrganizationID uint64   `json:"organizationId"`
	Role           string   `json:"role"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
	jwt.RegisteredClaims
}

// OrganizationClaims is the payload of an anonymous organization token.
type OrganizationClaims struct {
	Type           string `json:"typ"`
	OrganizationID uint64 `json:"organizationId"`
	jwt.RegisteredClaims
}

// SignedToken is a serialized JWT along with its expiry.
type SignedToken struct {
	Token string
	Exp   time.Time
}

// NewSessionToken builds and signs an HS256 session token valid for ttl
// starting at now.
func NewSessionToken(secret string, c SessionClaims, now time.Time, ttl time.Duration) (SignedToken, error) {
	exp := now.UTC().Add(ttl)
	c.Type = TokenTypeSession
	c.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.UTC()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return sign(secret, c, exp)
}

// NewOrganizationToken signs an organization-context token for orgID.
func NewOrganizationToken(secret string, orgID uint64, now time.Time, ttl time.Duration) (SignedToken, error) {
	exp := now.UTC().Add(ttl)
	c := OrganizationClaims{
		Type:           TokenTypeOrganization,
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.UTC()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return sign(secret, c, exp)
}

func sign(secret string, claims jwt.Claims, exp time.Time) (SignedToken, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken validates signature, expiry and type of a session token.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
	c := &SessionClaims{}
	if err := parse(secret, raw, c); err != nil {
		return nil, err
	}
	if c.Type != TokenTypeSession {
		return nil, ErrTokenType
	}
	return c, nil
}

// ParseOrganizationToken validates an organization-context token.
func ParseOrganizationToken(secret, raw string) (*OrganizationClaims, error) {
	c := &OrganizationClaims{}
	if err := parse(secret, raw, c); err != nil {
		return nil, err
	}
	if c.Type != TokenTypeOrganization {
		return nil, ErrTokenType
	}
	return c, nil
}

func parse(secret, raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return err
}
