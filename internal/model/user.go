package model

import "time"

// Credential is the authentication view of a `users` row scoped to one
// organization.  Email is stored lowercase and trimmed.
//
// Fields:
//  ID             – users.id
//  OrganizationID – organization the lookup was scoped to
//  Email          – unique email address
//  PasswordHash   – bcrypt hash, possibly in the legacy $2y$ form
//  Verified       – whether the account may log in
//  FullName       – display name
type Credential struct {
	ID             uint64
	OrganizationID uint64
	Email          string
	PasswordHash   string
	Verified       bool
	FullName       string
}

// Role represents a row in the `roles` table.
type Role struct {
	ID   uint16 // roles.id
	Name string // roles.name
}

// Role names known to the authentication core.
const (
	RoleAdmin     = "admin"
	RoleAnimation = "animation"
	RoleParent    = "parent"
)

// TwoFactorChallenge models a `two_factor_codes` row.  Only the SHA-256 of
// the code is stored; the plaintext leaves the process once, by email.
type TwoFactorChallenge struct {
	ID             uint64
	UserID         uint64
	OrganizationID uint64
	CodeHash       string
	Attempts       int
	Verified       bool
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// TrustedDevice models a `trusted_devices` row.  TokenHash is the SHA-256
// of the opaque token handed to the client in the device-token header.
type TrustedDevice struct {
	ID             uint64
	UserID         uint64
	OrganizationID uint64
	TokenHash      string
	Fingerprint    string
	DeviceName     string
	Active         bool
	CreatedAt      time.Time
	LastUsedAt     time.Time
	ExpiresAt      time.Time
}

// LinkedProfile is a participant registered with the user's email as
// guardian but not yet claimed by any account.
type LinkedProfile struct {
	ID       uint64 `json:"id"`
	FullName string `json:"fullName"`
}

// Organization is a tenant.
type Organization struct {
	ID   uint64
	Slug string
	Name string
}
