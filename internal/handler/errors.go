package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/service"
)

// errorMapping lists every domain error the API exposes, in match order.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrAccountNotVerified, http.StatusForbidden, "account_not_verified"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{service.ErrInvalidTwoFactorCode, http.StatusUnauthorized, "invalid_two_factor_code"},
	{service.ErrInvalidOrExpiredResetToken, http.StatusBadRequest, "invalid_or_expired_reset_token"},
	{service.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
}

// writeError renders err as {"error": code, "message": text}.  Anything
// unrecognised, ErrInternal included, becomes an opaque 500.
func writeError(c echo.Context, err error) error {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				msg = ve.Error()
			}
			return c.JSON(m.status, echo.Map{"error": m.code, "message": msg})
		}
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": "invalid body"})
}
