package service

import (
	"context"
	"time"

	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/model"
)

// CredentialStore is the subset of repository.CredentialRepo the services use.
type CredentialStore interface {
	FindCredential(ctx context.Context, email string, orgID uint64) (model.Credential, error)
	FindCredentialByID(ctx context.Context, userID, orgID uint64) (model.Credential, error)
	UpdatePassword(ctx context.Context, userID uint64, hash string) error
	SetVerified(ctx context.Context, userID, orgID uint64) error
	CreateUserTx(ctx context.Context, tx database.DBTX, email, hash, fullName string, verified bool) (uint64, error)
	LinkUserToOrganizationTx(ctx context.Context, tx database.DBTX, userID, orgID uint64, roleID uint16) error
	AdminEmails(ctx context.Context, orgID uint64) ([]string, error)
}

// RoleStore reads role assignments.
type RoleStore interface {
	FindRolesAndPermissions(ctx context.Context, userID, orgID uint64) (roles, permissions []string, err error)
	RoleIDByName(ctx context.Context, q database.DBTX, name string) (uint16, error)
}

// ChallengeStore persists two-factor challenges.
type ChallengeStore interface {
	Create(ctx context.Context, c *model.TwoFactorChallenge) error
	Attempt(ctx context.Context, userID, orgID uint64, now time.Time, decide func(c *model.TwoFactorChallenge) bool) (bool, error)
}

// DeviceStore persists trusted devices.
type DeviceStore interface {
	Create(ctx context.Context, d *model.TrustedDevice) error
	FindActive(ctx context.Context, userID, orgID uint64, tokenHash string, now time.Time) (model.TrustedDevice, error)
	TouchLastUsed(ctx context.Context, id uint64, at time.Time) error
}

// ResetStore persists password-reset tokens.
type ResetStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Consume(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error
}

// GuardianStore finds participant profiles awaiting a guardian account.
type GuardianStore interface {
	FindUnclaimed(ctx context.Context, email string, orgID uint64) ([]model.LinkedProfile, error)
}

// OrganizationStore resolves tenants.
type OrganizationStore interface {
	GetBySlug(ctx context.Context, slug string) (model.Organization, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) error
