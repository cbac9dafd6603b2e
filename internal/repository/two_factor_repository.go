package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/model"
)

// TwoFactorRepo provides data access to the two_factor_codes table.
type TwoFactorRepo struct{ DB *sql.DB }

func NewTwoFactorRepo(db *sql.DB) *TwoFactorRepo { return &TwoFactorRepo{DB: db} }

// Create inserts a challenge and sets its ID.
func (r *TwoFactorRepo) Create(ctx context.Context, c *model.TwoFactorChallenge) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO two_factor_codes
		 (user_id, organization_id, code_hash, attempts, verified, ip_address, user_agent, created_at, expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		c.UserID, c.OrganizationID, c.CodeHash, c.Attempts, c.Verified, c.IPAddress, c.UserAgent,
		c.CreatedAt.UTC(), c.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// Attempt locks the newest unverified challenge of (userID, orgID) that is
// still valid at now and hands it to decide.  When decide returns true the
// challenge's Attempts and Verified fields are written back before the
// lock is released, so two concurrent submissions cannot both observe the
// same attempt count.  found is false when no pending challenge exists.
func (r *TwoFactorRepo) Attempt(ctx context.Context, userID, orgID uint64, now time.Time, decide func(c *model.TwoFactorChallenge) bool) (found bool, err error) {
	err = database.WithTx(ctx, r.DB, func(ctx context.Context, tx database.DBTX) error {
		var c model.TwoFactorChallenge
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, organization_id, code_hash, attempts, verified, ip_address, user_agent, created_at, expires_at
			 FROM two_factor_codes
			 WHERE user_id = ? AND organization_id = ? AND verified = 0 AND expires_at > ?
			 ORDER BY created_at DESC, id DESC
			 LIMIT 1
			 FOR UPDATE`,
			userID, orgID, now.UTC()).Scan(&c.ID, &c.UserID, &c.OrganizationID, &c.CodeHash, &c.Attempts,
			&c.Verified, &c.IPAddress, &c.UserAgent, &c.CreatedAt, &c.ExpiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if !decide(&c) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE two_factor_codes SET attempts = ?, verified = ? WHERE id = ?",
			c.Attempts, c.Verified, c.ID)
		return err
	})
	return found, err
}
