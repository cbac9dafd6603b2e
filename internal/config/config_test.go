package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfig_Defaults(t *testing.T) {
	prod := LoadRateLimitConfig(true)
	assert.True(t, prod.Enabled)
	assert.Equal(t, 15*time.Minute, prod.Login.Window)
	assert.Equal(t, 6, prod.Login.MaxAttempts)
	assert.Equal(t, time.Hour, prod.Reset.Window)
	assert.Equal(t, 5, prod.Reset.MaxAttempts)

	dev := LoadRateLimitConfig(false)
	assert.Greater(t, dev.Reset.MaxAttempts, prod.Reset.MaxAttempts)
	assert.Equal(t, 6, dev.Login.MaxAttempts)
}

func TestLoadRateLimitConfig_Overrides(t *testing.T) {
	t.Setenv("LOGIN_RATE_MAX", "10")
	t.Setenv("LOGIN_RATE_WINDOW", "1m")
	t.Setenv("RESET_RATE_MAX", "0")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	c := LoadRateLimitConfig(true)
	assert.False(t, c.Enabled)
	assert.Equal(t, 10, c.Login.MaxAttempts)
	assert.Equal(t, time.Minute, c.Login.Window)
	assert.Equal(t, 1, c.Reset.MaxAttempts, "non-positive budgets are clamped")
}

func TestEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, time.Second, envDur("X_DUR", time.Second))
	assert.True(t, envBool("X_BOOL", true))
	assert.Equal(t, "d", envStr("X_MISSING", "d"))
}

func TestEnvUint_RejectsNegative(t *testing.T) {
	t.Setenv("X_UINT", "-1")
	assert.Equal(t, uint64(1), envUint("X_UINT", 1), "negative ids do not wrap around")
	t.Setenv("X_UINT", "42")
	assert.Equal(t, uint64(42), envUint("X_UINT", 1))
	t.Setenv("X_UINT", "")
	assert.Equal(t, uint64(7), envUint("X_UINT", 7))
}

func TestLoad_DefaultOrganizationID(t *testing.T) {
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080", "DB_USER": "u", "DB_HOST": "h",
		"DB_PORT": "3306", "DB_NAME": "n", "JWT_SECRET": "s",
	} {
		t.Setenv(k, v)
	}
	t.Setenv("DEFAULT_ORGANIZATION_ID", "-5")
	assert.Equal(t, uint64(1), Load().DefaultOrganizationID)

	t.Setenv("DEFAULT_ORGANIZATION_ID", "12")
	assert.Equal(t, uint64(12), Load().DefaultOrganizationID)
}

func TestConfig_Production(t *testing.T) {
	assert.True(t, Config{Env: "production"}.Production())
	assert.True(t, Config{Env: "PROD"}.Production())
	assert.False(t, Config{Env: "development"}.Production())
}

func TestLoadMailConfig_AMQPFallback(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
	c := LoadMailConfig()
	assert.Equal(t, "amqp://u:p@broker:5672/", c.AMQPURL)
	assert.Equal(t, "notification.email", c.Queue)
}

func TestLoadCacheConfig_Defaults(t *testing.T) {
	c := LoadCacheConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, 10*time.Minute, c.TTL)
}
