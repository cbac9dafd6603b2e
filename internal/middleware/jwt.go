package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/utils"
)

// bearer extracts the token from an "Authorization: Bearer" header.
func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(auth[7:])
	return raw, raw != ""
}

// JWTAuth validates a Bearer session token and injects its claims into the
// request context.  The secret must match the one used when issuing
// tokens.  Handlers read the caller through Claims, UserID and
// OrganizationID.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims, err := utils.ParseSessionToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxOrganizationID, claims.OrganizationID)
			c.Set(ctxRole, claims.Role)
			c.Set(ctxPermissions, claims.Permissions)
			return next(c)
		}
	}
}
