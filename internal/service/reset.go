package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/repository"
	"github.com/iliyamo/membership-backend/internal/utils"
)

const resetTTL = time.Hour

// ResetAck is returned for every well-formed reset request so that the
// response does not reveal whether the account exists.
const ResetAck = "If an account exists for this email, a password reset link has been sent."

// ResetDone acknowledges a completed password reset.
const ResetDone = "Your password has been reset."

// ResetManager issues and redeems single-use password-reset tokens.
type ResetManager struct {
	creds      CredentialStore
	tokens     ResetStore
	notifier   Notifier
	log        logging.Logger
	baseURL    string
	bcryptCost int
	now        func() time.Time

	pending sync.WaitGroup
}

func NewResetManager(creds CredentialStore, tokens ResetStore, n Notifier, log logging.Logger, baseURL string, bcryptCost int) *ResetManager {
	return &ResetManager{
		creds: creds, tokens: tokens, notifier: n, log: log,
		baseURL: baseURL, bcryptCost: bcryptCost, now: time.Now,
	}
}

// RequestReset emails a reset link when email belongs to a member of orgID.
// Apart from malformed input it always returns ResetAck once the account
// lookup is done; the token write and the email happen in the background,
// so known and unknown emails answer alike.
func (m *ResetManager) RequestReset(ctx context.Context, email string, orgID uint64) (string, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	cred, err := m.creds.FindCredential(ctx, email, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return ResetAck, nil
	}
	if err != nil {
		m.log.Error(ctx, "reset lookup failed", "organization_id", orgID, "err", err)
		return ResetAck, nil
	}

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetSendTimeout)
		defer cancel()
		m.sendLink(bg, cred)
	}()
	return ResetAck, nil
}

const resetSendTimeout = 10 * time.Second

// sendLink stores a fresh token for cred and emails the link.  Failures are
// logged only.
func (m *ResetManager) sendLink(ctx context.Context, cred model.Credential) {
	token, err := utils.RandomHex(32)
	if err != nil {
		m.log.Error(ctx, "reset token generation failed", "err", err)
		return
	}
	if err := m.tokens.Store(ctx, cred.ID, utils.SHA256Hex(token), m.now().UTC().Add(resetTTL)); err != nil {
		m.log.Error(ctx, "reset token store failed", "user_id", cred.ID, "err", err)
		return
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, url.QueryEscape(token))
	sendEmail(ctx, m.notifier, m.log, cred.Email, "Reset your password",
		"Use the link below within one hour to choose a new password:\n\n"+link+"\n\nIf you did not ask for this, ignore this email.",
		`<p>Use the link below within one hour to choose a new password:</p><p><a href="`+link+`">Reset password</a></p><p>If you did not ask for this, ignore this email.</p>`)
}

// Wait blocks until background reset deliveries have finished.  The server
// calls it on shutdown.
func (m *ResetManager) Wait() {
	m.pending.Wait()
}

// ResetPassword sets a new password if token is live, consuming the token
// in the same statement.
func (m *ResetManager) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return invalid("token", "is required")
	}
	newPassword = strings.TrimSpace(newPassword)
	if err := validatePassword("newPassword", newPassword); err != nil {
		return err
	}
	hash, err := utils.HashPassword(newPassword, m.bcryptCost)
	if err != nil {
		return internal("hash password", err)
	}
	err = m.tokens.Consume(ctx, utils.SHA256Hex(token), hash, m.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidOrExpiredResetToken
	}
	if err != nil {
		m.log.Error(ctx, "reset consume failed", "err", err)
		return internal("consume reset token", err)
	}
	return nil
}
