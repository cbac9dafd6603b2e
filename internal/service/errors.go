package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authentication core; the HTTP handler maps each
// of them to a status code and a stable error code in one place.
var (
	ErrInvalidCredentials         = errors.New("invalid email or password")
	ErrAccountNotVerified         = errors.New("account not verified")
	ErrRateLimited                = errors.New("too many attempts")
	ErrInvalidTwoFactorCode       = errors.New("invalid or expired verification code")
	ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")
	ErrValidation                 = errors.New("validation failed")
	ErrDuplicateAccount           = errors.New("an account with this email already exists")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrNotFound                   = errors.New("not found")
	ErrInternal                   = errors.New("internal error")
)

// ValidationError describes a malformed request field.  It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

// internal wraps an unexpected failure so that callers only see
// ErrInternal while the cause stays available for logging.
func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
