package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/model"
)

// CredentialRepo reads and writes the credential columns of `users` and the
// user↔organization↔role links.
type CredentialRepo struct{ DB *sql.DB }

func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{DB: db} }

// FindCredential fetches the credential for email among members of orgID.
func (r *CredentialRepo) FindCredential(ctx context.Context, email string, orgID uint64) (model.Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	c := model.Credential{OrganizationID: orgID}
	err := r.DB.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.verified, u.full_name
		 FROM users u
		 WHERE u.email = ?
		   AND EXISTS (SELECT 1 FROM user_organization_roles uor WHERE uor.user_id = u.id AND uor.organization_id = ?)
		 LIMIT 1`,
		email, orgID).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Verified, &c.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, ErrNotFound
	}
	return c, err
}

// FindCredentialByID fetches the credential of userID if it is a member of
// orgID.
func (r *CredentialRepo) FindCredentialByID(ctx context.Context, userID, orgID uint64) (model.Credential, error) {
	c := model.Credential{OrganizationID: orgID}
	err := r.DB.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.verified, u.full_name
		 FROM users u
		 WHERE u.id = ?
		   AND EXISTS (SELECT 1 FROM user_organization_roles uor WHERE uor.user_id = u.id AND uor.organization_id = ?)`,
		userID, orgID).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Verified, &c.FullName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, ErrNotFound
	}
	return c, err
}

// UpdatePassword replaces the stored hash for userID.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetVerified marks a member of orgID as verified.
func (r *CredentialRepo) SetVerified(ctx context.Context, userID, orgID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users u SET u.verified = 1
		 WHERE u.id = ?
		   AND EXISTS (SELECT 1 FROM user_organization_roles uor WHERE uor.user_id = u.id AND uor.organization_id = ?)`,
		userID, orgID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// CreateUserTx inserts a user and returns its ID.  The email must already
// be normalized by the caller.
func (r *CredentialRepo) CreateUserTx(ctx context.Context, tx database.DBTX, email, hash, fullName string, verified bool) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, verified) VALUES (?,?,?,?)",
		email, hash, fullName, verified)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LinkUserToOrganizationTx grants roleID to userID inside orgID.
func (r *CredentialRepo) LinkUserToOrganizationTx(ctx context.Context, tx database.DBTX, userID, orgID uint64, roleID uint16) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO user_organization_roles (user_id, organization_id, role_id, created_at) VALUES (?,?,?,?)",
		userID, orgID, roleID, time.Now().UTC())
	return err
}

// AdminEmails lists the addresses of verified admins of orgID.
func (r *CredentialRepo) AdminEmails(ctx context.Context, orgID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT u.email
		 FROM users u
		 JOIN user_organization_roles uor ON uor.user_id = u.id
		 JOIN roles r ON r.id = uor.role_id
		 WHERE uor.organization_id = ? AND r.name = ? AND u.verified = 1`,
		orgID, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
