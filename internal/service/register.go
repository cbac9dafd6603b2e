package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/repository"
	"github.com/iliyamo/membership-backend/internal/utils"
)

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	OrganizationID uint64
	Email          string
	Password       string
	FullName       string
	RequestedType  string
}

// RegisterResult reports the new account and whether it may log in yet.
type RegisterResult struct {
	UserID   uint64
	Verified bool
}

// AccountService creates accounts and approves pending ones.
type AccountService struct {
	creds      CredentialStore
	roles      RoleStore
	tx         TxRunner
	notifier   Notifier
	log        logging.Logger
	bcryptCost int
	adminEmail string
	baseURL    string
}

func NewAccountService(creds CredentialStore, roles RoleStore, tx TxRunner, n Notifier, log logging.Logger, bcryptCost int, adminEmail, baseURL string) *AccountService {
	return &AccountService{
		creds: creds, roles: roles, tx: tx, notifier: n, log: log,
		bcryptCost: bcryptCost, adminEmail: adminEmail, baseURL: baseURL,
	}
}

// autoVerified maps each self-service account type to whether it is active
// immediately.  Staff accounts wait for an administrator.
var autoVerified = map[string]bool{
	model.RoleParent:    true,
	model.RoleAnimation: false,
}

// Register creates the user and its organization role link in one
// transaction.  Unverified accounts trigger an approval email to the
// organization's administrators.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Password = strings.TrimSpace(in.Password)
	in.FullName = strings.TrimSpace(in.FullName)
	in.RequestedType = strings.ToLower(strings.TrimSpace(in.RequestedType))

	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}
	if in.FullName == "" || len(in.FullName) > 255 {
		return nil, invalid("fullName", "must be 1 to 255 characters")
	}
	verified, ok := autoVerified[in.RequestedType]
	if !ok {
		return nil, invalid("requestedType", "must be parent or animation")
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, internal("hash password", err)
	}

	var userID uint64
	err = s.tx(ctx, func(ctx context.Context, tx database.DBTX) error {
		id, err := s.creds.CreateUserTx(ctx, tx, in.Email, hash, in.FullName, verified)
		if err != nil {
			return err
		}
		roleID, err := s.roles.RoleIDByName(ctx, tx, in.RequestedType)
		if err != nil {
			return fmt.Errorf("role %q: %w", in.RequestedType, err)
		}
		if err := s.creds.LinkUserToOrganizationTx(ctx, tx, id, in.OrganizationID, roleID); err != nil {
			return err
		}
		userID = id
		return nil
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, ErrDuplicateAccount
	}
	if err != nil {
		s.log.Error(ctx, "registration failed", "organization_id", in.OrganizationID, "err", err)
		return nil, internal("register", err)
	}

	if !verified {
		s.notifyAdmins(ctx, in, userID)
	}
	return &RegisterResult{UserID: userID, Verified: verified}, nil
}

func (s *AccountService) notifyAdmins(ctx context.Context, in RegisterInput, userID uint64) {
	to, err := s.creds.AdminEmails(ctx, in.OrganizationID)
	if err != nil {
		s.log.Warn(ctx, "admin lookup failed", "organization_id", in.OrganizationID, "err", err)
	}
	if len(to) == 0 && s.adminEmail != "" {
		to = []string{s.adminEmail}
	}
	if len(to) == 0 {
		s.log.Warn(ctx, "no administrator to notify", "organization_id", in.OrganizationID, "user_id", userID)
		return
	}
	subject := "New account awaiting approval"
	text := fmt.Sprintf("%s (%s) registered as %s and is waiting for approval.\n\n%s/admin/users/%d",
		in.FullName, in.Email, in.RequestedType, s.baseURL, userID)
	body := fmt.Sprintf(`<p>%s (%s) registered as <strong>%s</strong> and is waiting for approval.</p><p><a href="%s/admin/users/%d">Review account</a></p>`,
		html.EscapeString(in.FullName), html.EscapeString(in.Email), in.RequestedType, s.baseURL, userID)
	for _, addr := range to {
		sendEmail(ctx, s.notifier, s.log, addr, subject, text, body)
	}
}

// Approve marks a pending member of orgID as verified.
func (s *AccountService) Approve(ctx context.Context, userID, orgID uint64) error {
	err := s.creds.SetVerified(ctx, userID, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		s.log.Error(ctx, "approve failed", "user_id", userID, "organization_id", orgID, "err", err)
		return internal("set verified", err)
	}
	return nil
}

// ChangePassword replaces the password of a signed-in member after checking
// the current one.  A wrong current password reads as invalid credentials.
func (s *AccountService) ChangePassword(ctx context.Context, userID, orgID uint64, current, next string) error {
	if current == "" {
		return invalid("currentPassword", "is required")
	}
	next = strings.TrimSpace(next)
	if err := validatePassword("newPassword", next); err != nil {
		return err
	}
	cred, err := s.creds.FindCredentialByID(ctx, userID, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		s.log.Error(ctx, "credential lookup failed", "user_id", userID, "err", err)
		return internal("find credential", err)
	}
	if !utils.VerifyPassword(cred.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := utils.HashPassword(next, s.bcryptCost)
	if err != nil {
		return internal("hash password", err)
	}
	err = s.creds.UpdatePassword(ctx, userID, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		s.log.Error(ctx, "password update failed", "user_id", userID, "err", err)
		return internal("update password", err)
	}
	s.log.Info(ctx, "password changed", "user_id", userID)
	return nil
}
