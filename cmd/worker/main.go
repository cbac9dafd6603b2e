// Command worker consumes queued email requests and delivers them over SMTP
// or to the local outbox file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/membership-backend/internal/config"
	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/queue"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mail := config.LoadMailConfig()
	c := &queue.Consumer{
		URL:       mail.AMQPURL,
		Queue:     mail.Queue,
		Deliverer: queue.NewDeliverer(mail),
		Log:       logger.With("component", "mail-worker"),
	}
	logger.Info(ctx, "mail worker started", "queue", mail.Queue, "smtp", mail.SMTPHost != "")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "mail worker stopped", "err", err)
		os.Exit(1)
	}
}
