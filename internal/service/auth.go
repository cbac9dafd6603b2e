package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/repository"
	"github.com/iliyamo/membership-backend/internal/utils"
)

// TokenConfig holds the signing secret and token lifetimes.
type TokenConfig struct {
	Secret     string
	SessionTTL time.Duration
	SwitchTTL  time.Duration
	OrgTTL     time.Duration
}

// LoginInput is one login or second-factor submission.
type LoginInput struct {
	OrganizationID uint64
	Email          string
	Password       string
	Code           string
	DeviceToken    string
	IP             string
	UserAgent      string
}

// LoginResult is either a second-factor prompt (Requires2FA) or an issued
// session.  DeviceToken is only set after a successful second factor.
type LoginResult struct {
	Requires2FA    bool
	Token          string
	ExpiresAt      time.Time
	PrimaryRole    string
	Roles          []string
	Permissions    []string
	UserID         uint64
	OrganizationID uint64
	LinkedProfiles []model.LinkedProfile
	DeviceToken    string
}

// OrganizationContext is an anonymous token pinning a visitor to a tenant.
type OrganizationContext struct {
	OrganizationID uint64
	Token          string
	ExpiresAt      time.Time
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Credentials   CredentialStore
	Guardians     GuardianStore
	Organizations OrganizationStore
	Codes         *TwoFactorManager
	Devices       *DeviceManager
	Roles         *RoleResolver
	Notifier      Notifier
	Log           logging.Logger

	// PasswordCost is the bcrypt cost of stored hashes.  Unknown emails are
	// compared against a dummy hash of the same cost.
	PasswordCost int
}

// AuthService drives login and second-factor verification through an
// explicit state machine and issues session tokens.
type AuthService struct {
	AuthDeps
	tokens TokenConfig
	now    func() time.Time

	verifyPassword func(hash, plain string) bool
	dummyOnce      sync.Once
	dummyHash      string
}

func NewAuthService(deps AuthDeps, tokens TokenConfig) *AuthService {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.PasswordCost == 0 {
		deps.PasswordCost = defaultPasswordCost
	}
	return &AuthService{AuthDeps: deps, tokens: tokens, now: time.Now, verifyPassword: utils.VerifyPassword}
}

const defaultPasswordCost = 12

// unknownUserHash is compared against when the email has no account, so
// that both failure paths pay for one bcrypt comparison.
func (s *AuthService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		secret, err := utils.RandomHex(16)
		if err == nil {
			s.dummyHash, err = utils.HashPassword(secret, s.PasswordCost)
		}
		if err != nil {
			s.Log.Error(context.Background(), "dummy hash generation failed", "err", err)
		}
	})
	return s.dummyHash
}

type authState int

const (
	stateCredentialCheck authState = iota
	statePasswordCheck
	stateVerificationGate
	stateDeviceTrustCheck
	stateChallengeIssued
	stateTwoFactorLookup
	stateTwoFactorVerify
	stateTokenIssued
	stateDone
)

func (s authState) String() string {
	switch s {
	case stateCredentialCheck:
		return "CredentialCheck"
	case statePasswordCheck:
		return "PasswordCheck"
	case stateVerificationGate:
		return "VerificationGate"
	case stateDeviceTrustCheck:
		return "DeviceTrustCheck"
	case stateChallengeIssued:
		return "ChallengeIssued"
	case stateTwoFactorLookup:
		return "TwoFactorLookup"
	case stateTwoFactorVerify:
		return "TwoFactorVerify"
	case stateTokenIssued:
		return "TokenIssued"
	case stateDone:
		return "Done"
	}
	return fmt.Sprintf("authState(%d)", int(s))
}

// authFlow is the mutable record one request carries through the states.
type authFlow struct {
	in   LoginInput
	cred model.Credential

	gatePassed    bool
	deviceTrusted bool
	secondFactor  bool

	result *LoginResult
}

// Login authenticates email and password.  A trusted device receives a
// session directly; any other device receives a Requires2FA result and an
// emailed code.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, invalid("password", "is required")
	}
	return s.run(ctx, &authFlow{in: in}, stateCredentialCheck)
}

// VerifyTwoFactor completes a login with the emailed code, trusting the
// submitting device from then on.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if !codeRE.MatchString(in.Code) {
		return nil, invalid("code", "must be 6 digits")
	}
	return s.run(ctx, &authFlow{in: in}, stateTwoFactorLookup)
}

func (s *AuthService) run(ctx context.Context, f *authFlow, state authState) (*LoginResult, error) {
	for state != stateDone {
		next, err := s.step(ctx, state, f)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return f.result, nil
}

func (s *AuthService) step(ctx context.Context, state authState, f *authFlow) (authState, error) {
	switch state {
	case stateCredentialCheck:
		return s.credentialCheck(ctx, f)
	case statePasswordCheck:
		return s.passwordCheck(ctx, f)
	case stateVerificationGate:
		// After a verified code the device question is already answered.
		if f.secondFactor {
			return s.verificationGate(ctx, f, stateTokenIssued)
		}
		return s.verificationGate(ctx, f, stateDeviceTrustCheck)
	case stateDeviceTrustCheck:
		return s.deviceTrustCheck(ctx, f)
	case stateChallengeIssued:
		return s.challengeIssued(ctx, f)
	case stateTwoFactorLookup:
		return s.twoFactorLookup(ctx, f)
	case stateTwoFactorVerify:
		return s.twoFactorVerify(ctx, f)
	case stateTokenIssued:
		return s.tokenIssued(ctx, f)
	}
	return stateDone, fmt.Errorf("%w: no handler for state %s", ErrInternal, state)
}

// credentialCheck loads the account for the email within the organization.
// An unknown email costs the same bcrypt comparison as a wrong password and
// fails with the same error.
func (s *AuthService) credentialCheck(ctx context.Context, f *authFlow) (authState, error) {
	cred, err := s.Credentials.FindCredential(ctx, f.in.Email, f.in.OrganizationID)
	if errors.Is(err, repository.ErrNotFound) {
		s.verifyPassword(s.unknownUserHash(), f.in.Password)
		return stateDone, ErrInvalidCredentials
	}
	if err != nil {
		s.Log.Error(ctx, "credential lookup failed", "organization_id", f.in.OrganizationID, "err", err)
		return stateDone, internal("find credential", err)
	}
	f.cred = cred
	return statePasswordCheck, nil
}

// passwordCheck compares the submitted password, accepting legacy hashes.
func (s *AuthService) passwordCheck(_ context.Context, f *authFlow) (authState, error) {
	if !s.verifyPassword(f.cred.PasswordHash, f.in.Password) {
		return stateDone, ErrInvalidCredentials
	}
	return stateVerificationGate, nil
}

// verificationGate stops unapproved accounts.  It runs after the password
// on login and after the code on verify, so it never answers for a caller
// that proved nothing.
func (s *AuthService) verificationGate(_ context.Context, f *authFlow, next authState) (authState, error) {
	if !f.cred.Verified {
		return stateDone, ErrAccountNotVerified
	}
	f.gatePassed = true
	return next, nil
}

// deviceTrustCheck skips the second factor for a known device token.
func (s *AuthService) deviceTrustCheck(ctx context.Context, f *authFlow) (authState, error) {
	trusted, err := s.Devices.IsTrusted(ctx, f.cred.ID, f.in.OrganizationID, f.in.DeviceToken)
	if err != nil {
		// Fall through to a challenge when trust cannot be established.
		s.Log.Warn(ctx, "device trust check failed", "user_id", f.cred.ID, "err", err)
		trusted = false
	}
	if trusted {
		f.deviceTrusted = true
		return stateTokenIssued, nil
	}
	return stateChallengeIssued, nil
}

// challengeIssued stores a fresh code and emails it.  Delivery failures
// are logged only; the caller still gets the 2FA prompt.
func (s *AuthService) challengeIssued(ctx context.Context, f *authFlow) (authState, error) {
	code, err := s.Codes.Issue(ctx, f.cred.ID, f.in.OrganizationID, f.in.IP, f.in.UserAgent)
	if err != nil {
		s.Log.Error(ctx, "2fa issue failed", "user_id", f.cred.ID, "err", err)
		return stateDone, internal("issue challenge", err)
	}
	sendEmail(ctx, s.Notifier, s.Log, f.cred.Email, "Your verification code",
		"Your verification code is "+code+". It expires in 10 minutes.",
		"<p>Your verification code is <strong>"+code+"</strong>.</p><p>It expires in 10 minutes.</p>")
	f.result = &LoginResult{Requires2FA: true}
	return stateDone, nil
}

// twoFactorLookup finds the account a code was sent to.  An unknown email
// reads as a wrong code.
func (s *AuthService) twoFactorLookup(ctx context.Context, f *authFlow) (authState, error) {
	cred, err := s.Credentials.FindCredential(ctx, f.in.Email, f.in.OrganizationID)
	if errors.Is(err, repository.ErrNotFound) {
		return stateDone, ErrInvalidTwoFactorCode
	}
	if err != nil {
		s.Log.Error(ctx, "credential lookup failed", "organization_id", f.in.OrganizationID, "err", err)
		return stateDone, internal("find credential", err)
	}
	f.cred = cred
	return stateTwoFactorVerify, nil
}

// twoFactorVerify spends one attempt on the newest pending challenge.
func (s *AuthService) twoFactorVerify(ctx context.Context, f *authFlow) (authState, error) {
	ok, err := s.Codes.Verify(ctx, f.cred.ID, f.in.OrganizationID, f.in.Code)
	if err != nil {
		s.Log.Error(ctx, "2fa verify failed", "user_id", f.cred.ID, "err", err)
		return stateDone, internal("verify challenge", err)
	}
	if !ok {
		return stateDone, ErrInvalidTwoFactorCode
	}
	f.secondFactor = true
	return stateVerificationGate, nil
}

// tokenIssued mints the session.  It re-checks that the gate passed and a
// device or code vouched for the caller, whatever path led here.
func (s *AuthService) tokenIssued(ctx context.Context, f *authFlow) (authState, error) {
	if !f.gatePassed || !(f.deviceTrusted || f.secondFactor) {
		s.Log.Error(ctx, "refusing to issue token", "user_id", f.cred.ID,
			"gate", f.gatePassed, "trusted", f.deviceTrusted, "second_factor", f.secondFactor)
		return stateDone, fmt.Errorf("%w: token issue without authentication", ErrInternal)
	}
	res, err := s.issue(ctx, f.cred.ID, f.in.OrganizationID, s.tokens.SessionTTL)
	if err != nil {
		return stateDone, err
	}
	if f.secondFactor {
		dt, err := s.Devices.Create(ctx, f.cred.ID, f.in.OrganizationID, f.in.UserAgent)
		if err != nil {
			s.Log.Error(ctx, "trusted device create failed", "user_id", f.cred.ID, "err", err)
			return stateDone, internal("create trusted device", err)
		}
		res.DeviceToken = dt
	}
	res.LinkedProfiles = s.linkedProfiles(ctx, f.cred.Email, f.in.OrganizationID)
	f.result = res
	return stateDone, nil
}

func (s *AuthService) linkedProfiles(ctx context.Context, email string, orgID uint64) []model.LinkedProfile {
	if s.Guardians == nil {
		return []model.LinkedProfile{}
	}
	profiles, err := s.Guardians.FindUnclaimed(ctx, email, orgID)
	if err != nil {
		s.Log.Warn(ctx, "guardian lookup failed", "organization_id", orgID, "err", err)
		return []model.LinkedProfile{}
	}
	if profiles == nil {
		profiles = []model.LinkedProfile{}
	}
	return profiles
}

// issue resolves roles in orgID and signs a session token valid for ttl.
func (s *AuthService) issue(ctx context.Context, userID, orgID uint64, ttl time.Duration) (*LoginResult, error) {
	r, err := s.Roles.Resolve(ctx, userID, orgID)
	if err != nil {
		s.Log.Error(ctx, "role resolution failed", "user_id", userID, "organization_id", orgID, "err", err)
		return nil, internal("resolve roles", err)
	}
	tok, err := utils.NewSessionToken(s.tokens.Secret, utils.SessionClaims{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           r.PrimaryRole,
		Roles:          r.Roles,
		Permissions:    r.Permissions,
	}, s.now(), ttl)
	if err != nil {
		return nil, internal("sign session", err)
	}
	return &LoginResult{
		Token:          tok.Token,
		ExpiresAt:      tok.Exp,
		PrimaryRole:    r.PrimaryRole,
		Roles:          r.Roles,
		Permissions:    r.Permissions,
		UserID:         userID,
		OrganizationID: orgID,
	}, nil
}

// VerifySession checks a bearer token's signature and expiry.
func (s *AuthService) VerifySession(raw string) (*utils.SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnauthorized
	}
	c, err := utils.ParseSessionToken(s.tokens.Secret, raw)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return c, nil
}

// SwitchOrganization issues a short-lived session for another organization
// the caller belongs to.
func (s *AuthService) SwitchOrganization(ctx context.Context, userID, orgID uint64) (*LoginResult, error) {
	if orgID == 0 {
		return nil, invalid("organizationId", "is required")
	}
	res, err := s.issue(ctx, userID, orgID, s.tokens.SwitchTTL)
	if err != nil {
		return nil, err
	}
	if len(res.Roles) == 0 {
		return nil, ErrUnauthorized
	}
	res.LinkedProfiles = []model.LinkedProfile{}
	return res, nil
}

// OrganizationToken returns an anonymous organization-context token for
// the tenant named by slug.
func (s *AuthService) OrganizationToken(ctx context.Context, slug string) (*OrganizationContext, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, invalid("slug", "is required")
	}
	org, err := s.Organizations.GetBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.Log.Error(ctx, "organization lookup failed", "slug", slug, "err", err)
		return nil, internal("find organization", err)
	}
	tok, err := utils.NewOrganizationToken(s.tokens.Secret, org.ID, s.now(), s.tokens.OrgTTL)
	if err != nil {
		return nil, internal("sign organization token", err)
	}
	return &OrganizationContext{OrganizationID: org.ID, Token: tok.Token, ExpiresAt: tok.Exp}, nil
}
