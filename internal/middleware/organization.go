package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/utils"
)

// Tenant selection headers.
const (
	HeaderOrganizationID    = "X-Organization-ID"
	HeaderOrganizationToken = "X-Organization-Token"
)

// ResolveOrganization picks the tenant for anonymous endpoints: an explicit
// X-Organization-ID wins, then a signed X-Organization-Token, then
// defaultID.
func ResolveOrganization(secret string, defaultID uint64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			orgID := defaultID
			if v := strings.TrimSpace(h.Get(HeaderOrganizationID)); v != "" {
				id, err := strconv.ParseUint(v, 10, 64)
				if err != nil || id == 0 {
					return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": "invalid " + HeaderOrganizationID})
				}
				orgID = id
			} else if v := strings.TrimSpace(h.Get(HeaderOrganizationToken)); v != "" {
				claims, err := utils.ParseOrganizationToken(secret, v)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid organization token"})
				}
				orgID = claims.OrganizationID
			}
			c.Set(ctxOrganizationID, orgID)
			return next(c)
		}
	}
}
