package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/handler"
	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/middleware"
	"github.com/iliyamo/membership-backend/internal/ratelimit"
)

// Options carries what the auth routes need besides the handler.
type Options struct {
	JWTSecret             string
	DefaultOrganizationID uint64
	LoginLimiter          ratelimit.Limiter // guards login and verify-2fa
	ResetLimiter          ratelimit.Limiter // guards both reset endpoints
	Cache                 echo.MiddlewareFunc
	Log                   logging.Logger
}

// RegisterRoutes registers routes that do not require authentication and
// carry no tenant, currently only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers all authentication-related routes and their
// middleware.  Anonymous operations live under /v1/auth and resolve the
// tenant from headers; protected endpoints live under /v1 and take the
// tenant from the session token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, opt Options) {
	log := opt.Log
	if log == nil {
		log = logging.Discard()
	}
	loginRL := middleware.RateLimit(opt.LoginLimiter, log)
	resetRL := middleware.RateLimit(opt.ResetLimiter, log)

	g := e.Group("/v1/auth")
	g.Use(middleware.ResolveOrganization(opt.JWTSecret, opt.DefaultOrganizationID))
	g.POST("/login", a.Login, loginRL)
	g.POST("/verify-2fa", a.VerifyTwoFactor, loginRL)
	g.POST("/register", a.Register)
	g.POST("/request-password-reset", a.RequestPasswordReset, resetRL)
	g.POST("/reset-password", a.ResetPassword, resetRL)
	g.POST("/verify-session", a.VerifySession)

	orgs := e.Group("/v1/organizations")
	if opt.Cache != nil {
		orgs.Use(opt.Cache)
	}
	orgs.GET("/:slug/context", a.OrganizationContext)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(opt.JWTSecret))
	auth.GET("/me", a.Me)
	auth.POST("/auth/switch-organization", a.SwitchOrganization)
	auth.POST("/auth/change-password", a.ChangePassword)
	auth.POST("/admin/users/:id/verify", a.ApproveUser, middleware.RequirePermission("users.verify"))
}
