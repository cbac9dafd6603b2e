package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/membership-backend/internal/model"
)

// OrganizationRepo looks up tenants.
type OrganizationRepo struct{ DB *sql.DB }

func NewOrganizationRepo(db *sql.DB) *OrganizationRepo { return &OrganizationRepo{DB: db} }

// GetBySlug fetches an organization by its URL slug.
func (r *OrganizationRepo) GetBySlug(ctx context.Context, slug string) (model.Organization, error) {
	var o model.Organization
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, slug, name FROM organizations WHERE slug = ? LIMIT 1",
		strings.ToLower(strings.TrimSpace(slug))).Scan(&o.ID, &o.Slug, &o.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Organization{}, ErrNotFound
	}
	return o, err
}
