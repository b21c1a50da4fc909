package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingConfig is returned by Load when a required setting is absent.
var ErrMissingConfig = errors.New("missing required configuration")

const (
	IdentityLocal  = "local"
	IdentityGoTrue = "gotrue"

	SessionStoreMemory = "memory"
	SessionStoreCookie = "cookie"
)

// Config holds all runtime settings, read from the environment.
type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE_URL"` // Optional; derived from the request when empty

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionStore  string        `mapstructure:"SESSION_STORE"`
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`

	IdentityProvider string `mapstructure:"IDENTITY_PROVIDER"`
	IdentityURL      string `mapstructure:"IDENTITY_URL"`
	IdentityKey      string `mapstructure:"IDENTITY_KEY"`

	LegacyTTL        time.Duration `mapstructure:"LEGACY_TTL"`
	LegacyMaxEntries int           `mapstructure:"LEGACY_MAX_ENTRIES"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	ClickBuffer int `mapstructure:"CLICK_BUFFER"`
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TokenSecret returns the key used to sign API bearer tokens.
func (c Config) TokenSecret() []byte {
	if c.JWTSecret != "" {
		return []byte(c.JWTSecret)
	}
	return []byte(c.SessionSecret)
}

// Load reads configuration from the given .env files (".env" when none are
// given) and the process environment. Environment variables win over .env.
func Load(envFiles ...string) (Config, error) {
	var cfg Config

	// Missing .env is fine; production sets real environment variables.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("BASE_URL", "")
	v.SetDefault("SESSION_STORE", SessionStoreMemory)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("IDENTITY_PROVIDER", IdentityLocal)
	v.SetDefault("IDENTITY_URL", "")
	v.SetDefault("IDENTITY_KEY", "")
	v.SetDefault("LEGACY_TTL", "24h")
	v.SetDefault("LEGACY_MAX_ENTRIES", 10000)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("CLICK_BUFFER", 1000)

	// Required keys have no default, so they must be bound explicitly
	// for Unmarshal to see them.
	for _, key := range []string{"DATABASE_URL", "SESSION_SECRET"} {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks required settings and enumerated values.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.IdentityProvider == IdentityGoTrue {
		if c.IdentityURL == "" {
			missing = append(missing, "IDENTITY_URL")
		}
		if c.IdentityKey == "" {
			missing = append(missing, "IDENTITY_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	switch c.IdentityProvider {
	case IdentityLocal, IdentityGoTrue:
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreCookie:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	if c.LegacyMaxEntries <= 0 {
		return fmt.Errorf("LEGACY_MAX_ENTRIES must be positive, got %d", c.LegacyMaxEntries)
	}
	return nil
}
