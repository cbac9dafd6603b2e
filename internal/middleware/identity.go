package middleware

// identity.go holds the context keys set by the auth and tenant middleware
// and typed accessors for handlers.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/utils"
)

const (
	ctxClaims         = "claims"
	ctxUserID         = "user_id"
	ctxOrganizationID = "organization_id"
	ctxRole           = "role"
	ctxPermissions    = "permissions"
)

// Claims returns the verified session claims, if any.
func Claims(c echo.Context) (*utils.SessionClaims, bool) {
	cl, ok := c.Get(ctxClaims).(*utils.SessionClaims)
	return cl, ok && cl != nil
}

// UserID returns the authenticated user, or 0 for anonymous requests.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(ctxUserID).(uint64)
	return id
}

// OrganizationID returns the tenant selected for this request.
func OrganizationID(c echo.Context) uint64 {
	id, _ := c.Get(ctxOrganizationID).(uint64)
	return id
}

// Permissions returns the permission keys of the authenticated user.
func Permissions(c echo.Context) []string {
	p, _ := c.Get(ctxPermissions).([]string)
	return p
}
