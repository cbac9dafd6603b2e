package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/membership-backend/internal/config"
	"github.com/iliyamo/membership-backend/internal/logging"
)

// cachedResponse is what a cache entry holds.  Only the content type is
// replayed; request-scoped headers such as X-Request-ID are not.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// bodyRecorder tees the response into buf until limit bytes were seen.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int
	limit  int
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.size += len(b)
	if r.size <= r.limit {
		r.buf.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// cacheKey hashes path and query so that /organizations/a and
// /organizations/b never share an entry.
func cacheKey(prefix string, c echo.Context) string {
	u := c.Request().URL
	sum := sha1.Sum([]byte(u.Path + "?" + u.RawQuery))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache caches 200 responses to GET requests for cfg.TTL.  Bodies
// larger than cfg.MaxBodyBytes are served but not stored.  Redis errors
// only cost the cache; the request is always answered.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log logging.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(cfg.Prefix, c)

			raw, err := rdb.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(hit.Status, hit.ContentType, hit.Body)
				}
				log.Warn(ctx, "cache: dropping unreadable entry", "key", key)
			case !errors.Is(err, redis.Nil):
				log.Warn(ctx, "cache: redis get failed", "err", err)
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.size > cfg.MaxBodyBytes {
				return nil
			}
			entry, err := json.Marshal(cachedResponse{
				Status:      rec.status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			// The client may already be gone; the entry is still worth keeping.
			if err := rdb.Set(context.WithoutCancel(ctx), key, entry, cfg.TTL).Err(); err != nil {
				log.Warn(ctx, "cache: redis set failed", "err", err)
			}
			return nil
		}
	}
}
