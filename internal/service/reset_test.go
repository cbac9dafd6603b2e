package service

import (
	"context"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/utils"
)

var linkRE = regexp.MustCompile(`https://app\.example\.com/reset-password\?token=([0-9a-f]+)`)

func newReset(t *testing.T) (*ResetManager, *memCreds, *recordingNotifier, *clock) {
	t.Helper()
	creds := newMemCreds()
	n := &recordingNotifier{}
	clk := newClock()
	m := NewResetManager(creds, creds, n, logging.Discard(), "https://app.example.com", bcrypt.MinCost)
	m.now = clk.Now
	return m, creds, n, clk
}

func resetToken(t *testing.T, m *ResetManager, n *recordingNotifier) string {
	t.Helper()
	m.Wait()
	all := n.all()
	require.NotEmpty(t, all)
	match := linkRE.FindStringSubmatch(all[len(all)-1].Text)
	require.Len(t, match, 2)
	tok, err := url.QueryUnescape(match[1])
	require.NoError(t, err)
	return tok
}

func TestRequestReset_IdenticalResponse(t *testing.T) {
	m, creds, n, _ := newReset(t)
	creds.add("pat@example.com", "h", true, testOrg, 3)
	ctx := context.Background()

	missing, err := m.RequestReset(ctx, "ghost@example.com", testOrg)
	require.NoError(t, err)
	existing, err := m.RequestReset(ctx, "PAT@example.com", testOrg)
	require.NoError(t, err)

	assert.Equal(t, missing, existing)
	assert.Equal(t, ResetAck, existing)
	m.Wait()
	assert.Equal(t, []string{"pat@example.com"}, n.recipients(), "only the real account gets mail")
}

func TestRequestReset_EmailFailureIsSwallowed(t *testing.T) {
	m, creds, n, _ := newReset(t)
	n.fail = true
	creds.add("pat@example.com", "h", true, testOrg, 3)

	msg, err := m.RequestReset(context.Background(), "pat@example.com", testOrg)
	require.NoError(t, err)
	assert.Equal(t, ResetAck, msg)
	m.Wait()
}

// stalledNotifier holds every send until release is closed.
type stalledNotifier struct {
	release chan struct{}
	sent    chan string
}

func (s *stalledNotifier) SendEmail(ctx context.Context, to, _, _, _ string) bool {
	select {
	case <-s.release:
	case <-ctx.Done():
		return false
	}
	s.sent <- to
	return true
}

func TestRequestReset_DoesNotWaitForDelivery(t *testing.T) {
	creds := newMemCreds()
	creds.add("pat@example.com", "h", true, testOrg, 3)
	n := &stalledNotifier{release: make(chan struct{}), sent: make(chan string, 1)}
	m := NewResetManager(creds, creds, n, logging.Discard(), "https://app.example.com", bcrypt.MinCost)

	ctx, cancel := context.WithCancel(context.Background())
	msg, err := m.RequestReset(ctx, "pat@example.com", testOrg)
	require.NoError(t, err)
	assert.Equal(t, ResetAck, msg, "answered while the email is still pending")

	cancel() // the request ending does not abort delivery
	close(n.release)
	m.Wait()
	assert.Equal(t, "pat@example.com", <-n.sent)
	assert.NotEmpty(t, creds.users["pat@example.com"].resetHash)
}

func TestRequestReset_Validation(t *testing.T) {
	m, _, _, _ := newReset(t)
	_, err := m.RequestReset(context.Background(), "nope", testOrg)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResetPassword_SingleUse(t *testing.T) {
	m, creds, n, _ := newReset(t)
	creds.add("pat@example.com", "old", true, testOrg, 3)
	ctx := context.Background()

	_, err := m.RequestReset(ctx, "pat@example.com", testOrg)
	require.NoError(t, err)
	tok := resetToken(t, m, n)
	assert.Equal(t, utils.SHA256Hex(tok), creds.users["pat@example.com"].resetHash, "only the hash is stored")

	require.NoError(t, m.ResetPassword(ctx, tok, "NewPassw0rd"))
	assert.True(t, utils.VerifyPassword(creds.users["pat@example.com"].cred.PasswordHash, "NewPassw0rd"))

	err = m.ResetPassword(ctx, tok, "Another1pass")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)
	assert.True(t, utils.VerifyPassword(creds.users["pat@example.com"].cred.PasswordHash, "NewPassw0rd"))
}

func TestResetPassword_Expired(t *testing.T) {
	m, creds, n, clk := newReset(t)
	creds.add("pat@example.com", "old", true, testOrg, 3)
	ctx := context.Background()

	_, err := m.RequestReset(ctx, "pat@example.com", testOrg)
	require.NoError(t, err)
	tok := resetToken(t, m, n)

	clk.Advance(time.Hour)
	assert.ErrorIs(t, m.ResetPassword(ctx, tok, "NewPassw0rd"), ErrInvalidOrExpiredResetToken)
}

func TestResetPassword_NewRequestReplacesOldToken(t *testing.T) {
	m, creds, n, _ := newReset(t)
	creds.add("pat@example.com", "old", true, testOrg, 3)
	ctx := context.Background()

	_, _ = m.RequestReset(ctx, "pat@example.com", testOrg)
	first := resetToken(t, m, n)
	_, _ = m.RequestReset(ctx, "pat@example.com", testOrg)
	second := resetToken(t, m, n)

	assert.ErrorIs(t, m.ResetPassword(ctx, first, "NewPassw0rd"), ErrInvalidOrExpiredResetToken)
	assert.NoError(t, m.ResetPassword(ctx, second, "NewPassw0rd"))
}

func TestResetPassword_Validation(t *testing.T) {
	m, _, _, _ := newReset(t)
	assert.ErrorIs(t, m.ResetPassword(context.Background(), "", "NewPassw0rd"), ErrValidation)
	assert.ErrorIs(t, m.ResetPassword(context.Background(), "abc", "short"), ErrValidation)
}
