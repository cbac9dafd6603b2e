package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/middleware"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/service"
	"github.com/iliyamo/membership-backend/internal/utils"
)

// HeaderDeviceToken carries the trusted-device token on login.
const HeaderDeviceToken = "X-Device-Token"

const requestTimeout = 5 * time.Second

// Authenticator is implemented by *service.AuthService.
type Authenticator interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	VerifySession(raw string) (*utils.SessionClaims, error)
	SwitchOrganization(ctx context.Context, userID, orgID uint64) (*service.LoginResult, error)
	OrganizationToken(ctx context.Context, slug string) (*service.OrganizationContext, error)
}

// Accounts is implemented by *service.AccountService.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	Approve(ctx context.Context, userID, orgID uint64) error
	ChangePassword(ctx context.Context, userID, orgID uint64, current, next string) error
}

// PasswordResetter is implemented by *service.ResetManager.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string, orgID uint64) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth     Authenticator
	Accounts Accounts
	Reset    PasswordResetter
	Log      logging.Logger
}

func NewAuthHandler(a Authenticator, acc Accounts, r PasswordResetter, log logging.Logger) *AuthHandler {
	return &AuthHandler{Auth: a, Accounts: acc, Reset: r, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type verifyReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
type registerReq struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"fullName"`
	RequestedType string `json:"requestedType"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
type switchReq struct {
	OrganizationID uint64 `json:"organizationId"`
}

type sessionResp struct {
	Token          string                `json:"token"`
	ExpiresAt      time.Time             `json:"expiresAt"`
	PrimaryRole    string                `json:"primaryRole"`
	Roles          []string              `json:"roles"`
	Permissions    []string              `json:"permissions"`
	UserID         uint64                `json:"userId"`
	OrganizationID uint64                `json:"organizationId"`
	LinkedProfiles []model.LinkedProfile `json:"linkedProfiles"`
	DeviceToken    string                `json:"deviceToken,omitempty"`
}

func toSession(r *service.LoginResult) sessionResp {
	return sessionResp{
		Token:          r.Token,
		ExpiresAt:      r.ExpiresAt,
		PrimaryRole:    r.PrimaryRole,
		Roles:          nonNil(r.Roles),
		Permissions:    nonNil(r.Permissions),
		UserID:         r.UserID,
		OrganizationID: r.OrganizationID,
		LinkedProfiles: r.LinkedProfiles,
		DeviceToken:    r.DeviceToken,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Login checks credentials and either returns a session or asks for the
// emailed second factor.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, service.LoginInput{
		OrganizationID: middleware.OrganizationID(c),
		Email:          req.Email,
		Password:       req.Password,
		DeviceToken:    c.Request().Header.Get(HeaderDeviceToken),
		IP:             c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
	})
	if err != nil {
		return writeError(c, err)
	}
	if res.Requires2FA {
		return c.JSON(http.StatusOK, echo.Map{"requires2FA": true})
	}
	return c.JSON(http.StatusOK, toSession(res))
}

// VerifyTwoFactor completes a login with the emailed code and returns the
// session plus a device token for future logins.
func (h *AuthHandler) VerifyTwoFactor(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.VerifyTwoFactor(ctx, service.LoginInput{
		OrganizationID: middleware.OrganizationID(c),
		Email:          req.Email,
		Code:           req.Code,
		IP:             c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSession(res))
}

// Register creates an account in the request's organization.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Accounts.Register(ctx, service.RegisterInput{
		OrganizationID: middleware.OrganizationID(c),
		Email:          req.Email,
		Password:       req.Password,
		FullName:       req.FullName,
		RequestedType:  req.RequestedType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"userId": res.UserID, "verified": res.Verified})
}

// RequestPasswordReset always answers with the same acknowledgement.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	msg, err := h.Reset.RequestReset(ctx, req.Email, middleware.OrganizationID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

// ResetPassword redeems a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Reset.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": service.ResetDone})
}

// VerifySession checks the bearer token without any other middleware.
func (h *AuthHandler) VerifySession(c echo.Context) error {
	raw := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(raw) > 7 && (raw[:7] == "Bearer " || raw[:7] == "bearer ") {
		raw = raw[7:]
	} else {
		raw = ""
	}
	claims, err := h.Auth.VerifySession(raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userId":         claims.UserID,
		"role":           claims.Role,
		"organizationId": claims.OrganizationID,
	})
}

// SwitchOrganization issues a 24h session for another organization of the
// authenticated user.
func (h *AuthHandler) SwitchOrganization(c echo.Context) error {
	var req switchReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.SwitchOrganization(ctx, middleware.UserID(c), req.OrganizationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSession(res))
}

// OrganizationContext returns an anonymous token for the tenant in :slug.
func (h *AuthHandler) OrganizationContext(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	oc, err := h.Auth.OrganizationToken(ctx, c.Param("slug"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"organizationId": oc.OrganizationID,
		"token":          oc.Token,
		"expiresAt":      oc.ExpiresAt,
	})
}

// Me echoes the caller's session claims.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return writeError(c, service.ErrUnauthorized)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userId":         claims.UserID,
		"organizationId": claims.OrganizationID,
		"primaryRole":    claims.Role,
		"roles":          nonNil(claims.Roles),
		"permissions":    nonNil(claims.Permissions),
		"expiresAt":      claims.ExpiresAt.Time,
	})
}

// ApproveUser verifies a pending account in the caller's organization.
func (h *AuthHandler) ApproveUser(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": "invalid user id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.Approve(ctx, id, middleware.OrganizationID(c)); err != nil {
		return writeError(c, err)
	}
	h.Log.Info(ctx, "account approved", "user_id", id, "by", middleware.UserID(c))
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err := h.Accounts.ChangePassword(ctx, middleware.UserID(c), middleware.OrganizationID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
