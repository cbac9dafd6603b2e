package service

import (
	"context"
	"time"

	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/utils"
)

const (
	codeDigits      = 6
	codeTTL         = 10 * time.Minute
	maxCodeAttempts = 5
)

// TwoFactorManager issues and checks emailed one-time codes.  Only the
// SHA-256 of a code is stored.
type TwoFactorManager struct {
	store ChallengeStore
	now   func() time.Time
}

func NewTwoFactorManager(store ChallengeStore) *TwoFactorManager {
	return &TwoFactorManager{store: store, now: time.Now}
}

// Issue creates a challenge for (userID, orgID) and returns the plaintext
// code for out-of-band delivery.  Older pending challenges stay valid
// until they expire but are no longer the verification target.
func (m *TwoFactorManager) Issue(ctx context.Context, userID, orgID uint64, ip, userAgent string) (string, error) {
	code, err := utils.RandomDigits(codeDigits)
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	c := &model.TwoFactorChallenge{
		UserID:         userID,
		OrganizationID: orgID,
		CodeHash:       utils.SHA256Hex(code),
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(codeTTL),
	}
	if err := m.store.Create(ctx, c); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks code against the newest pending challenge.  A missing
// challenge fails without side effects; an exhausted one fails without
// spending another attempt.  Otherwise the attempt is counted and a match
// marks the challenge verified so it can never match again.
func (m *TwoFactorManager) Verify(ctx context.Context, userID, orgID uint64, code string) (bool, error) {
	submitted := utils.SHA256Hex(code)
	ok := false
	_, err := m.store.Attempt(ctx, userID, orgID, m.now().UTC(), func(c *model.TwoFactorChallenge) bool {
		if c.Verified || c.Attempts >= maxCodeAttempts {
			return false
		}
		c.Attempts++
		if utils.EqualHash(submitted, c.CodeHash) {
			c.Verified = true
			ok = true
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}
