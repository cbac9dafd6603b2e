package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/membership-backend/internal/logging"
	"github.com/iliyamo/membership-backend/internal/model"
	"github.com/iliyamo/membership-backend/internal/repository"
	"github.com/iliyamo/membership-backend/internal/utils"
)

const deviceTTL = 90 * 24 * time.Hour

// DeviceManager remembers devices that completed a second factor so they
// can skip it on later logins.
type DeviceManager struct {
	store DeviceStore
	log   logging.Logger
	now   func() time.Time
}

func NewDeviceManager(store DeviceStore, log logging.Logger) *DeviceManager {
	return &DeviceManager{store: store, log: log, now: time.Now}
}

// Create registers a trusted device and returns the opaque token the
// client presents on future logins.  The token is random; the user agent
// only feeds the audit fingerprint and the display label.
func (m *DeviceManager) Create(ctx context.Context, userID, orgID uint64, userAgent string) (string, error) {
	token, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	d := &model.TrustedDevice{
		UserID:         userID,
		OrganizationID: orgID,
		TokenHash:      utils.SHA256Hex(token),
		Fingerprint:    utils.SHA256Hex(userAgent + "|" + strconv.FormatUint(userID, 10)),
		DeviceName:     DeviceLabel(userAgent),
		Active:         true,
		CreatedAt:      now,
		LastUsedAt:     now,
		ExpiresAt:      now.Add(deviceTTL),
	}
	if err := m.store.Create(ctx, d); err != nil {
		return "", err
	}
	return token, nil
}

// IsTrusted reports whether token names an active, unexpired device of
// (userID, orgID).  A hit refreshes the device's last-used time.
func (m *DeviceManager) IsTrusted(ctx context.Context, userID, orgID uint64, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	now := m.now().UTC()
	d, err := m.store.FindActive(ctx, userID, orgID, utils.SHA256Hex(token), now)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := m.store.TouchLastUsed(ctx, d.ID, now); err != nil {
		m.log.Warn(ctx, "trusted device touch failed", "device_id", d.ID, "err", err)
	}
	return true, nil
}

var browsers = []struct{ needle, name string }{
	{"Edg", "Edge"},
	{"OPR", "Opera"},
	{"Opera", "Opera"},
	{"Firefox", "Firefox"},
	{"Chrome", "Chrome"},
	{"Safari", "Safari"},
}

var systems = []struct{ needle, name string }{
	{"iPhone", "iOS"},
	{"iPad", "iOS"},
	{"Android", "Android"},
	{"Windows", "Windows"},
	{"Mac OS", "macOS"},
	{"Macintosh", "macOS"},
	{"Linux", "Linux"},
}

// DeviceLabel derives a coarse "<browser> on <OS>" label from a user agent.
// Order matters: Chromium-based browsers also advertise Chrome and Safari,
// and iOS agents also advertise Mac OS.
func DeviceLabel(userAgent string) string {
	browser, os := "Unknown browser", "Unknown OS"
	for _, b := range browsers {
		if strings.Contains(userAgent, b.needle) {
			browser = b.name
			break
		}
	}
	for _, s := range systems {
		if strings.Contains(userAgent, s.needle) {
			os = s.name
			break
		}
	}
	return browser + " on " + os
}
