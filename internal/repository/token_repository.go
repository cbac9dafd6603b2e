package repository

import (
	"context"
	"database/sql"
	"time"
)

// ResetTokenRepo persists password-reset tokens on the `users` row.  Only
// the SHA-256 hash is stored and a user holds at most one token: storing a
// new one overwrites the previous value.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Store sets the reset token hash and expiry for userID.
func (r *ResetTokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ?",
		tokenHash, exp.UTC(), userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Consume swaps in newPasswordHash and clears the token in one statement,
// provided tokenHash is still present and unexpired at now.  The check and
// the invalidation cannot be separated, so a token is usable exactly once.
// It returns ErrNotFound when no live token matches.
func (r *ResetTokenRepo) Consume(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL
		 WHERE reset_token_hash = ? AND reset_token_expires_at > ?`,
		newPasswordHash, tokenHash, now.UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}
