// Command migrate applies the embedded schema migrations and exits.
package main

import (
	"context"
	"os"

	"github.com/iliyamo/membership-backend/internal/config"
	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error(ctx, "database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error(ctx, "migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info(ctx, "migrations applied")
}
