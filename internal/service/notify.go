package service

import (
	"context"
	"time"

	"github.com/iliyamo/membership-backend/internal/logging"
)

// Notifier delivers an email.  It reports success and must not panic.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, text, html string) bool
}

const emailTimeout = 3 * time.Second

// sendEmail hands a message to n and logs, but otherwise ignores, a
// failed delivery.
func sendEmail(ctx context.Context, n Notifier, log logging.Logger, to, subject, text, html string) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, emailTimeout)
	defer cancel()
	if !n.SendEmail(ctx, to, subject, text, html) {
		log.Warn(ctx, "email not sent", "subject", subject)
	}
}
