package service

import (
	"context"
	"sort"

	"github.com/iliyamo/membership-backend/internal/model"
)

// rolePriority lists roles from most to least privileged.
var rolePriority = []string{model.RoleAdmin, model.RoleAnimation, model.RoleParent}

// Resolution is the effective authorization of a user in one organization.
type Resolution struct {
	PrimaryRole string
	Roles       []string
	Permissions []string
}

// RoleResolver collects roles and permissions and picks the primary role.
// The primary role is for display only; authorization checks use
// Permissions.
type RoleResolver struct {
	store RoleStore
}

func NewRoleResolver(store RoleStore) *RoleResolver { return &RoleResolver{store: store} }

func (r *RoleResolver) Resolve(ctx context.Context, userID, orgID uint64) (Resolution, error) {
	roles, perms, err := r.store.FindRolesAndPermissions(ctx, userID, orgID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Roles: distinctSorted(roles), Permissions: distinctSorted(perms)}
	res.PrimaryRole = PrimaryRole(res.Roles)
	return res, nil
}

// PrimaryRole picks the highest-priority role in roles.  Unknown roles
// fall back to the lexically first one and an empty set to parent.
func PrimaryRole(roles []string) string {
	have := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		have[r] = struct{}{}
	}
	for _, p := range rolePriority {
		if _, ok := have[p]; ok {
			return p
		}
	}
	if ds := distinctSorted(roles); len(ds) > 0 {
		return ds[0]
	}
	return model.RoleParent
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
