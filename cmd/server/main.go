package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/membership-backend/internal/config"
	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/handler"
	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/middleware"
	"github.com/iliyamo/membership-backend/internal/queue"
	"github.com/iliyamo/membership-backend/internal/ratelimit"
	"github.com/iliyamo/membership-backend/internal/repository"
	"github.com/iliyamo/membership-backend/internal/router"
	"github.com/iliyamo/membership-backend/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error(ctx, "database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Error(ctx, "migrations failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn(ctx, "redis unavailable, using in-process rate limiting and no response cache")
	} else {
		defer rdb.Close()
	}
	rl := config.LoadRateLimitConfig(cfg.Production())
	loginLimiter := newLimiter(rdb, rl, rl.Prefix+":login", rl.Login)
	resetLimiter := newLimiter(rdb, rl, rl.Prefix+":reset", rl.Reset)

	mail := config.LoadMailConfig()
	publisher := queue.NewPublisher(mail.AMQPURL, mail.Queue, logger.With("component", "mail"))
	defer publisher.Close()

	resets := service.NewResetManager(repository.NewCredentialRepo(db), repository.NewResetTokenRepo(db),
		publisher, logger.With("component", "reset"), cfg.BaseURL, cfg.BcryptCost)
	authHandler := handler.NewAuthHandler(
		newAuthService(cfg, db, publisher, logger),
		newAccountService(cfg, db, publisher, logger),
		resets,
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency.String(), "request_id", v.RequestID}
			if v.Error != nil {
				args = append(args, "err", v.Error)
			}
			if level == slog.LevelError {
				logger.Error(c.Request().Context(), "request", args...)
			} else {
				logger.Info(c.Request().Context(), "request", args...)
			}
			return nil
		},
	}))

	router.RegisterRoutes(e, db) // Register application routes
	router.RegisterAuth(e, authHandler, router.Options{
		JWTSecret:             cfg.JWTSecret,
		DefaultOrganizationID: cfg.DefaultOrganizationID,
		LoginLimiter:          loginLimiter,
		ResetLimiter:          resetLimiter,
		Cache:                 middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
		Log:                   logger,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", "err", err)
	}
	resets.Wait() // pending reset emails still need the publisher
}

// newLimiter returns nil when rate limiting is disabled, a Redis-backed
// limiter when Redis answered at startup, and an in-process one otherwise.
func newLimiter(rdb *redis.Client, rl config.RateLimitConfig, prefix string, w config.WindowLimit) ratelimit.Limiter {
	if !rl.Enabled {
		return nil
	}
	if rdb == nil {
		return ratelimit.NewMemoryLimiter(w.MaxAttempts, w.Window)
	}
	return ratelimit.NewRedisLimiter(rdb, prefix, w.MaxAttempts, w.Window)
}

func newAuthService(cfg config.Config, db *sql.DB, n service.Notifier, logger logging.Logger) *service.AuthService {
	log := logger.With("component", "auth")
	return service.NewAuthService(service.AuthDeps{
		Credentials:   repository.NewCredentialRepo(db),
		Guardians:     repository.NewGuardianRepo(db),
		Organizations: repository.NewOrganizationRepo(db),
		Codes:         service.NewTwoFactorManager(repository.NewTwoFactorRepo(db)),
		Devices:       service.NewDeviceManager(repository.NewTrustedDeviceRepo(db), log),
		Roles:         service.NewRoleResolver(repository.NewRoleRepo(db)),
		Notifier:      n,
		Log:           log,
		PasswordCost:  cfg.BcryptCost,
	}, service.TokenConfig{
		Secret:     cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		SwitchTTL:  cfg.SwitchTTL,
		OrgTTL:     cfg.OrgTTL,
	})
}

func newAccountService(cfg config.Config, db *sql.DB, n service.Notifier, logger logging.Logger) *service.AccountService {
	tx := func(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) error {
		return database.WithTx(ctx, db, fn)
	}
	return service.NewAccountService(repository.NewCredentialRepo(db), repository.NewRoleRepo(db), tx,
		n, logger.With("component", "accounts"), cfg.BcryptCost, cfg.AdminEmail, cfg.BaseURL)
}
