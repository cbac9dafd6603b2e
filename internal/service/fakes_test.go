package service

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/membership-backend/internal/database"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/repository"
)

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now().UTC().Truncate(time.Second)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memUser struct {
	cred      model.Credential
	orgRoles  map[uint64][]uint16
	resetHash string
	resetExp  time.Time
}

// memCreds implements CredentialStore and ResetStore.
type memCreds struct {
	mu     sync.Mutex
	nextID uint64
	users  map[string]*memUser
	admins map[uint64][]string
}

func newMemCreds() *memCreds {
	return &memCreds{nextID: 1, users: map[string]*memUser{}, admins: map[uint64][]string{}}
}

func (m *memCreds) add(email, hash string, verified bool, orgID uint64, roleID uint16) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.users[email] = &memUser{
		cred:     model.Credential{ID: id, Email: email, PasswordHash: hash, Verified: verified, FullName: email},
		orgRoles: map[uint64][]uint16{orgID: {roleID}},
	}
	return id
}

func (m *memCreds) byID(id uint64) *memUser {
	for _, u := range m.users {
		if u.cred.ID == id {
			return u
		}
	}
	return nil
}

func (m *memCreds) FindCredential(_ context.Context, email string, orgID uint64) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return model.Credential{}, repository.ErrNotFound
	}
	if _, member := u.orgRoles[orgID]; !member {
		return model.Credential{}, repository.ErrNotFound
	}
	c := u.cred
	c.OrganizationID = orgID
	return c, nil
}

func (m *memCreds) FindCredentialByID(_ context.Context, userID, orgID uint64) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return model.Credential{}, repository.ErrNotFound
	}
	if _, member := u.orgRoles[orgID]; !member {
		return model.Credential{}, repository.ErrNotFound
	}
	c := u.cred
	c.OrganizationID = orgID
	return c, nil
}

func (m *memCreds) UpdatePassword(_ context.Context, userID uint64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return repository.ErrNotFound
	}
	u.cred.PasswordHash = hash
	return nil
}

func (m *memCreds) SetVerified(_ context.Context, userID, orgID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return repository.ErrNotFound
	}
	if _, member := u.orgRoles[orgID]; !member {
		return repository.ErrNotFound
	}
	u.cred.Verified = true
	return nil
}

func (m *memCreds) CreateUserTx(_ context.Context, _ database.DBTX, email, hash, fullName string, verified bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return 0, repository.ErrEmailExists
	}
	id := m.nextID
	m.nextID++
	m.users[email] = &memUser{
		cred:     model.Credential{ID: id, Email: email, PasswordHash: hash, Verified: verified, FullName: fullName},
		orgRoles: map[uint64][]uint16{},
	}
	return id, nil
}

func (m *memCreds) LinkUserToOrganizationTx(_ context.Context, _ database.DBTX, userID, orgID uint64, roleID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return errors.New("no such user")
	}
	u.orgRoles[orgID] = append(u.orgRoles[orgID], roleID)
	return nil
}

func (m *memCreds) AdminEmails(_ context.Context, orgID uint64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.admins[orgID]...), nil
}

func (m *memCreds) Store(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(userID)
	if u == nil {
		return repository.ErrNotFound
	}
	u.resetHash, u.resetExp = tokenHash, exp
	return nil
}

func (m *memCreds) Consume(_ context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.resetHash != "" && u.resetHash == tokenHash && u.resetExp.After(now) {
			u.cred.PasswordHash = newPasswordHash
			u.resetHash, u.resetExp = "", time.Time{}
			return nil
		}
	}
	return repository.ErrNotFound
}

// tx runs fn and restores every user row on failure.
func (m *memCreds) tx(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) error {
	m.mu.Lock()
	snapshot := make(map[string]memUser, len(m.users))
	for k, u := range m.users {
		cp := *u
		cp.orgRoles = map[uint64][]uint16{}
		for org, roles := range u.orgRoles {
			cp.orgRoles[org] = append([]uint16(nil), roles...)
		}
		snapshot[k] = cp
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.users = map[string]*memUser{}
		for k, u := range snapshot {
			u := u
			m.users[k] = &u
		}
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

// memRoles implements RoleStore over a fixed role table and reads role
// links from a memCreds.
type memRoles struct {
	creds     *memCreds
	names     map[uint16]string
	perms     map[string][]string
	failNames map[string]bool
}

func newMemRoles(creds *memCreds) *memRoles {
	return &memRoles{
		creds: creds,
		names: map[uint16]string{1: model.RoleAdmin, 2: model.RoleAnimation, 3: model.RoleParent},
		perms: map[string][]string{
			model.RoleAdmin:     {"users.verify", "users.manage", "activities.manage"},
			model.RoleAnimation: {"activities.manage", "attendance.manage", "carpool.view"},
			model.RoleParent:    {"activities.view", "carpool.manage", "carpool.view"},
		},
		failNames: map[string]bool{},
	}
}

func (r *memRoles) FindRolesAndPermissions(_ context.Context, userID, orgID uint64) ([]string, []string, error) {
	r.creds.mu.Lock()
	defer r.creds.mu.Unlock()
	u := r.creds.byID(userID)
	if u == nil {
		return nil, nil, nil
	}
	var roles, perms []string
	for _, id := range u.orgRoles[orgID] {
		name := r.names[id]
		roles = append(roles, name)
		perms = append(perms, r.perms[name]...)
	}
	return roles, perms, nil
}

func (r *memRoles) RoleIDByName(_ context.Context, _ database.DBTX, name string) (uint16, error) {
	if r.failNames[name] {
		return 0, errors.New("lookup failed")
	}
	for id, n := range r.names {
		if n == name {
			return id, nil
		}
	}
	return 0, repository.ErrNotFound
}

type memChallenges struct {
	mu   sync.Mutex
	rows []model.TwoFactorChallenge
}

func (m *memChallenges) Create(_ context.Context, c *model.TwoFactorChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, *c)
	return nil
}

func (m *memChallenges) Attempt(_ context.Context, userID, orgID uint64, now time.Time, decide func(*model.TwoFactorChallenge) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, c := range m.rows {
		if c.UserID != userID || c.OrganizationID != orgID || c.Verified || !c.ExpiresAt.After(now) {
			continue
		}
		if idx == -1 || !c.CreatedAt.Before(m.rows[idx].CreatedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return false, nil
	}
	c := m.rows[idx]
	if decide(&c) {
		m.rows[idx] = c
	}
	return true, nil
}

func (m *memChallenges) latest() model.TwoFactorChallenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[len(m.rows)-1]
}

type memDevices struct {
	mu   sync.Mutex
	rows []model.TrustedDevice
}

func (m *memDevices) Create(_ context.Context, d *model.TrustedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, *d)
	return nil
}

func (m *memDevices) FindActive(_ context.Context, userID, orgID uint64, tokenHash string, now time.Time) (model.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.UserID == userID && d.OrganizationID == orgID && d.TokenHash == tokenHash && d.Active && d.ExpiresAt.After(now) {
			return d, nil
		}
	}
	return model.TrustedDevice{}, repository.ErrNotFound
}

func (m *memDevices) TouchLastUsed(_ context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].LastUsedAt = at
		}
	}
	return nil
}

type memGuardians map[string][]model.LinkedProfile

func (g memGuardians) FindUnclaimed(_ context.Context, email string, _ uint64) ([]model.LinkedProfile, error) {
	return g[email], nil
}

type memOrgs map[string]model.Organization

func (o memOrgs) GetBySlug(_ context.Context, slug string) (model.Organization, error) {
	if org, ok := o[slug]; ok {
		return org, nil
	}
	return model.Organization{}, repository.ErrNotFound
}

type sentEmail struct{ To, Subject, Text, HTML string }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	fail bool
}

func (n *recordingNotifier) SendEmail(_ context.Context, to, subject, text, html string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{to, subject, text, html})
	return !n.fail
}

func (n *recordingNotifier) all() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

func (n *recordingNotifier) recipients() []string {
	var out []string
	for _, e := range n.all() {
		out = append(out, e.To)
	}
	sort.Strings(out)
	return out
}

var codeInText = regexp.MustCompile(`\b[0-9]{6}\b`)

func (n *recordingNotifier) lastCode() string {
	all := n.all()
	if len(all) == 0 {
		return ""
	}
	return codeInText.FindString(all[len(all)-1].Text)
}
