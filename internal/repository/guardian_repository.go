package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/membership-backend/internal/model"
)

// GuardianRepo finds participant profiles registered under a guardian email.
type GuardianRepo struct{ DB *sql.DB }

func NewGuardianRepo(db *sql.DB) *GuardianRepo { return &GuardianRepo{DB: db} }

// FindUnclaimed lists participants of orgID whose guardian email matches
// and that no account has claimed yet.
func (r *GuardianRepo) FindUnclaimed(ctx context.Context, email string, orgID uint64) ([]model.LinkedProfile, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, full_name FROM participants
		 WHERE organization_id = ? AND guardian_email = ? AND user_id IS NULL
		 ORDER BY id`,
		orgID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.LinkedProfile{}
	for rows.Next() {
		var p model.LinkedProfile
		if err := rows.Scan(&p.ID, &p.FullName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
