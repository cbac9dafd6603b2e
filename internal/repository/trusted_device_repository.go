package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/membership-backend/internal/model"
)

// TrustedDeviceRepo provides data access to the trusted_devices table.
type TrustedDeviceRepo struct{ DB *sql.DB }

func NewTrustedDeviceRepo(db *sql.DB) *TrustedDeviceRepo { return &TrustedDeviceRepo{DB: db} }

// Create inserts a device and sets its ID.
func (r *TrustedDeviceRepo) Create(ctx context.Context, d *model.TrustedDevice) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO trusted_devices
		 (user_id, organization_id, token_hash, fingerprint, device_name, active, created_at, last_used_at, expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		d.UserID, d.OrganizationID, d.TokenHash, d.Fingerprint, d.DeviceName, d.Active,
		d.CreatedAt.UTC(), d.LastUsedAt.UTC(), d.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// FindActive returns the active, unexpired device of (userID, orgID) whose
// token hash matches exactly, or ErrNotFound.
func (r *TrustedDeviceRepo) FindActive(ctx context.Context, userID, orgID uint64, tokenHash string, now time.Time) (model.TrustedDevice, error) {
	var d model.TrustedDevice
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, organization_id, token_hash, fingerprint, device_name, active, created_at, last_used_at, expires_at
		 FROM trusted_devices
		 WHERE user_id = ? AND organization_id = ? AND token_hash = ? AND active = 1 AND expires_at > ?
		 LIMIT 1`,
		userID, orgID, tokenHash, now.UTC()).Scan(&d.ID, &d.UserID, &d.OrganizationID, &d.TokenHash, &d.Fingerprint,
		&d.DeviceName, &d.Active, &d.CreatedAt, &d.LastUsedAt, &d.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrustedDevice{}, ErrNotFound
	}
	return d, err
}

// TouchLastUsed records a successful device-trust check.  Expiry is left
// untouched.
func (r *TrustedDeviceRepo) TouchLastUsed(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE trusted_devices SET last_used_at = ? WHERE id = ?", at.UTC(), id)
	return err
}
