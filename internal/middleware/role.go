package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequirePermission aborts with 403 unless the authenticated user holds
// every listed permission.  It must run after JWTAuth.
func RequirePermission(perms ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			held := make(map[string]bool)
			for _, p := range Permissions(c) {
				held[p] = true
			}
			for _, p := range perms {
				if !held[p] {
					return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "missing permission " + p})
				}
			}
			return next(c)
		}
	}
}
