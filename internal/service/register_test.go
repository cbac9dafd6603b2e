package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/utils"
)

func newAccounts(t *testing.T) (*AccountService, *memCreds, *memRoles, *recordingNotifier) {
	t.Helper()
	creds := newMemCreds()
	roles := newMemRoles(creds)
	n := &recordingNotifier{}
	svc := NewAccountService(creds, roles, creds.tx, n, logging.Discard(), bcrypt.MinCost, "fallback@example.com", "https://app.example.com")
	return svc, creds, roles, n
}

func TestRegister_ParentAutoVerifiedAnimationPending(t *testing.T) {
	svc, creds, _, n := newAccounts(t)
	creds.admins[testOrg] = []string{"boss@example.com", "deputy@example.com"}
	ctx := context.Background()

	alice, err := svc.Register(ctx, RegisterInput{OrganizationID: testOrg, Email: "alice@example.com", Password: "Passw0rd1", FullName: "Alice", RequestedType: "parent"})
	require.NoError(t, err)
	assert.True(t, alice.Verified)
	assert.Empty(t, n.all(), "no approval needed for parents")

	bob, err := svc.Register(ctx, RegisterInput{OrganizationID: testOrg, Email: "bob@example.com", Password: "Passw0rd1", FullName: "Bob", RequestedType: "animation"})
	require.NoError(t, err)
	assert.False(t, bob.Verified)
	assert.Equal(t, []string{"boss@example.com", "deputy@example.com"}, n.recipients())

	u := creds.users["alice@example.com"]
	assert.Equal(t, []uint16{3}, u.orgRoles[testOrg])
	assert.True(t, utils.VerifyPassword(u.cred.PasswordHash, "Passw0rd1"))
	assert.Equal(t, []uint16{2}, creds.users["bob@example.com"].orgRoles[testOrg])
}

func TestRegister_AdminFallbackAddress(t *testing.T) {
	svc, _, _, n := newAccounts(t)
	_, err := svc.Register(context.Background(), RegisterInput{OrganizationID: testOrg, Email: "bob@example.com", Password: "Passw0rd1", FullName: "Bob", RequestedType: "Animation"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback@example.com"}, n.recipients())
}

func TestRegister_EmailFailureDoesNotFailRegistration(t *testing.T) {
	svc, _, _, n := newAccounts(t)
	n.fail = true
	res, err := svc.Register(context.Background(), RegisterInput{OrganizationID: testOrg, Email: "bob@example.com", Password: "Passw0rd1", FullName: "Bob", RequestedType: "animation"})
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _, _, _ := newAccounts(t)
	in := RegisterInput{OrganizationID: testOrg, Email: "alice@example.com", Password: "Passw0rd1", FullName: "Alice", RequestedType: "parent"}
	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	in.Email = " ALICE@example.com"
	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestRegister_RollsBackOnRoleFailure(t *testing.T) {
	svc, creds, roles, _ := newAccounts(t)
	roles.failNames["parent"] = true

	_, err := svc.Register(context.Background(), RegisterInput{OrganizationID: testOrg, Email: "alice@example.com", Password: "Passw0rd1", FullName: "Alice", RequestedType: "parent"})
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, creds.users, "alice@example.com", "the user row is rolled back")
}

func TestRegister_Validation(t *testing.T) {
	svc, creds, _, _ := newAccounts(t)
	base := RegisterInput{OrganizationID: testOrg, Email: "a@example.com", Password: "Passw0rd1", FullName: "A", RequestedType: "parent"}

	bad := []func(*RegisterInput){
		func(in *RegisterInput) { in.Email = "nope" },
		func(in *RegisterInput) { in.Password = "short1" },
		func(in *RegisterInput) { in.Password = "onlyletters" },
		func(in *RegisterInput) { in.FullName = "  " },
		func(in *RegisterInput) { in.RequestedType = "admin" },
	}
	for i, mutate := range bad {
		in := base
		mutate(&in)
		_, err := svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrValidation, "case %d", i)
	}
	assert.Empty(t, creds.users, "validation happens before any write")
}

func TestApprove(t *testing.T) {
	svc, creds, _, _ := newAccounts(t)
	id := creds.add("bob@example.com", "h", false, testOrg, 2)

	require.NoError(t, svc.Approve(context.Background(), id, testOrg))
	assert.True(t, creds.users["bob@example.com"].cred.Verified)

	assert.ErrorIs(t, svc.Approve(context.Background(), id, 99), ErrNotFound)
	assert.ErrorIs(t, svc.Approve(context.Background(), 1234, testOrg), ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, creds, _, _ := newAccounts(t)
	hash, err := utils.HashPassword("Passw0rd1", bcrypt.MinCost)
	require.NoError(t, err)
	id := creds.add("pat@example.com", hash, true, testOrg, 3)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ChangePassword(ctx, id, testOrg, "wrong", "NewPassw0rd"), ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, id, testOrg, "Passw0rd1", "short"), ErrValidation)
	assert.ErrorIs(t, svc.ChangePassword(ctx, id, testOrg, "", "NewPassw0rd"), ErrValidation)
	assert.ErrorIs(t, svc.ChangePassword(ctx, id, 99, "Passw0rd1", "NewPassw0rd"), ErrUnauthorized, "not a member of that organization")

	require.NoError(t, svc.ChangePassword(ctx, id, testOrg, "Passw0rd1", " NewPassw0rd "))
	stored := creds.users["pat@example.com"].cred.PasswordHash
	assert.True(t, utils.VerifyPassword(stored, "NewPassw0rd"))
	assert.False(t, utils.VerifyPassword(stored, "Passw0rd1"))
}
