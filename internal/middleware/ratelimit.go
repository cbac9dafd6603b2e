package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/ratelimit"
)

// RateLimit counts every request against the caller's IP before the
// handler runs.  Over the limit it answers 429 and the handler never sees
// the request.  When the counter store fails the request is let through
// and a warning is logged.
func RateLimit(l ratelimit.Limiter, log logging.Logger) echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			ctx := c.Request().Context()
			d, err := l.Allow(ctx, "ip:"+ip)
			if err != nil {
				log.Warn(ctx, "ratelimit: counter unavailable", "err", err)
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.Info(ctx, "ratelimit: blocked", "path", c.Path(), "retry_after", (time.Duration(secs) * time.Second).String())
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate_limited",
					"message":     "too many attempts, try again later",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
