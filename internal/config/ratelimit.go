package config

import (
	"os"
	"strconv"
	"time"
)

// WindowLimit is one fixed-window attempt budget.
type WindowLimit struct {
	Window      time.Duration
	MaxAttempts int
}

// RateLimitConfig holds the two independent authentication budgets.  Login
// allows an even number of attempts so that a password submission and its
// paired 2FA verification fit in one allowance.
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Login   WindowLimit
	Reset   WindowLimit
}

// LoadRateLimitConfig builds the limiter budgets.  The reset budget is
// relaxed outside production so that manual testing is not blocked.
func LoadRateLimitConfig(production bool) RateLimitConfig {
	resetMax := 50
	if production {
		resetMax = 5
	}
	def := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Login: WindowLimit{
			Window:      envDur("LOGIN_RATE_WINDOW", 15*time.Minute),
			MaxAttempts: envInt("LOGIN_RATE_MAX", 6),
		},
		Reset: WindowLimit{
			Window:      envDur("RESET_RATE_WINDOW", 60*time.Minute),
			MaxAttempts: envInt("RESET_RATE_MAX", resetMax),
		},
	}
	// Non-positive overrides would disable the limiter silently; clamp them.
	if def.Login.MaxAttempts < 1 {
		def.Login.MaxAttempts = 1
	}
	if def.Reset.MaxAttempts < 1 {
		def.Reset.MaxAttempts = 1
	}
	if def.Login.Window <= 0 {
		def.Login.Window = 15 * time.Minute
	}
	if def.Reset.Window <= 0 {
		def.Reset.Window = time.Hour
	}
	return def
}

// envStr returns the variable k, or d when it is unset or empty.
func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envBool accepts the usual spellings of true and false; anything else
// yields d.
func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

// envInt parses k as a decimal int, falling back to d.
func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

// envUint parses k as an unsigned decimal, falling back to d.  Negative
// values are rejected rather than wrapped.
func envUint(k string, d uint64) uint64 {
	if n, err := strconv.ParseUint(os.Getenv(k), 10, 64); err == nil {
		return n
	}
	return d
}

// envDur parses k with time.ParseDuration, falling back to d.
func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
