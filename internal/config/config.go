package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
	"time"

	"github.com/joho/godotenv" // optional .env file for local development
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the rest
// fall back to defaults that match production behaviour.
type Config struct {
	Env    string // application environment (e.g. "development", "production")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	DBAutoMigrate bool // run embedded migrations on server start

	JWTSecret  string        // secret used to sign session and organization tokens
	BcryptCost int           // bcrypt cost for password hashing
	SessionTTL time.Duration // lifetime of a login-derived session token
	SwitchTTL  time.Duration // lifetime of an organization-switch token
	OrgTTL     time.Duration // lifetime of an anonymous organization-context token

	DefaultOrganizationID uint64 // tenant used when a request names none
	AdminEmail            string // fallback recipient for account-approval notices
	BaseURL               string // public URL used to build reset links

	LogLevel  string // debug | info | warn | error
	LogFormat string // text | json
}

// Production reports whether the service runs with production limits.
func (c Config) Production() bool {
	e := strings.ToLower(c.Env)
	return e == "prod" || e == "production"
}

// Load reads an optional .env file and then the environment, returning a
// Config.  Missing required variables terminate the process.
func Load() Config {
	_ = godotenv.Load() // absent .env is fine; real env vars win

	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", false),

		JWTSecret:  must("JWT_SECRET"),
		BcryptCost: envInt("BCRYPT_COST", 12),
		SessionTTL: envDur("SESSION_TTL", 7*24*time.Hour),
		SwitchTTL:  envDur("SWITCH_TTL", 24*time.Hour),
		OrgTTL:     envDur("ORG_TOKEN_TTL", 365*24*time.Hour),

		DefaultOrganizationID: envUint("DEFAULT_ORGANIZATION_ID", 1),
		AdminEmail:            os.Getenv("ADMIN_NOTIFICATION_EMAIL"),
		BaseURL:               strings.TrimRight(envStr("APP_BASE_URL", "http://localhost:3000"), "/"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
