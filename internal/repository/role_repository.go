package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/membership-backend/internal/database"
)

// RoleRepo reads the role/permission join tables.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// FindRolesAndPermissions returns every role name the user holds in orgID
// and every permission key reachable through those roles.  The slices may
// contain duplicates; callers deduplicate.
func (r *RoleRepo) FindRolesAndPermissions(ctx context.Context, userID, orgID uint64) (roles, permissions []string, err error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.name, p.perm_key
		 FROM user_organization_roles uor
		 JOIN roles r ON r.id = uor.role_id
		 LEFT JOIN role_permissions rp ON rp.role_id = r.id
		 LEFT JOIN permissions p ON p.id = rp.permission_id
		 WHERE uor.user_id = ? AND uor.organization_id = ?`,
		userID, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			role string
			perm sql.NullString
		)
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, nil, err
		}
		roles = append(roles, role)
		if perm.Valid {
			permissions = append(permissions, perm.String)
		}
	}
	return roles, permissions, rows.Err()
}

// RoleIDByName resolves a role name.  It accepts a transaction so that
// registration can read and link within the same unit of work.
func (r *RoleRepo) RoleIDByName(ctx context.Context, q database.DBTX, name string) (uint16, error) {
	var id uint16
	err := q.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = ? LIMIT 1", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}
