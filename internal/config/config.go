package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration, populated from environment
// variables. Defaults are chosen so the server runs locally with no env set
// (in-memory registry, generated JWT secret).
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"CourseKit"`
	Env     string `env:"ENV" envDefault:"DEV"`
	Port    string `env:"PORT" envDefault:"8080"`

	Session  SessionConfig
	Registry RegistryConfig
	Identity IdentityConfig
}

// SessionConfig tunes the single-active-session subsystem.
type SessionConfig struct {
	// GraceWindow is how long after a login revalidation is suppressed,
	// covering the read-after-write race against the registry.
	GraceWindow time.Duration `env:"SESSION_GRACE_WINDOW" envDefault:"1200ms"`

	// CallTimeout bounds every registry and identity network call.
	CallTimeout time.Duration `env:"SESSION_CALL_TIMEOUT" envDefault:"5s"`

	// PollInterval drives the periodic revalidation trigger.
	PollInterval time.Duration `env:"SESSION_POLL_INTERVAL" envDefault:"30s"`

	// CookieName carries the held token in browser clients.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"coursekit_session"`
}

// RegistryConfig selects the session record store backend.
// Driver is one of "memory", "redis" or "postgres".
type RegistryConfig struct {
	Driver      string `env:"REGISTRY_DRIVER" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	PostgresURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/coursekit"`
}

// IdentityConfig configures the identity provider.
type IdentityConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	// OIDC federation, used only when issuer URL is set.
	OIDCIssuerURL    string `env:"OIDC_ISSUER_URL"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	if c.Port != "" && c.Port[0] != ':' {
		return ":" + c.Port
	}
	return c.Port
}

// IsDev reports whether the server runs in the development environment.
func (c Config) IsDev() bool {
	return c.Env == "DEV"
}
