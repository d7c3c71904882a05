package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// AppBaseURL is the externally reachable base URL of this server.
	// OAuth redirect URIs are derived from it and must match what is
	// registered with each provider.
	AppBaseURL string `env:"APP_BASE_URL,required"`

	// Dashboard frontend base URL; OAuth callbacks redirect the browser here.
	DashboardURL string `env:"DASHBOARD_URL" envDefault:""`

	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	EncryptionKey     string `env:"ENCRYPTION_KEY"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`

	// Twitter OAuth 2.0 app credentials (connection flow, PKCE)
	TwitterClientID     string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret string `env:"TWITTER_CLIENT_SECRET"`

	// Twitter OAuth 1.0a credentials (publishing)
	TwitterAPIKey            string `env:"TWITTER_API_KEY"`
	TwitterAPISecret         string `env:"TWITTER_API_SECRET_KEY"`
	TwitterAccessToken       string `env:"TWITTER_ACCESS_TOKEN"`
	TwitterAccessTokenSecret string `env:"TWITTER_ACCESS_TOKEN_SECRET"`

	LinkedInClientID     string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret string `env:"LINKEDIN_CLIENT_SECRET"`

	InstagramClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`

	AttemptTTLSeconds    int `env:"ATTEMPT_TTL_SECONDS" envDefault:"600"`
	PublishRatePerMinute int `env:"PUBLISH_RATE_PER_MINUTE" envDefault:"30"`
}

func (c *Config) AttemptTTL() time.Duration {
	return time.Duration(c.AttemptTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RedirectURI returns the callback URL registered with the given provider.
func (c *Config) RedirectURI(provider string) string {
	return strings.TrimSuffix(c.AppBaseURL, "/") + "/api/connect/" + provider + "/callback"
}

// SettingsURL returns the dashboard settings page the browser is sent back to
// after an OAuth callback. Falls back to AppBaseURL when no dashboard is set.
func (c *Config) SettingsURL() string {
	base := c.DashboardURL
	if base == "" {
		base = c.AppBaseURL
	}
	return strings.TrimSuffix(base, "/") + "/dashboard/settings"
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.EncryptionKey != "" {
		for _, weak := range knownWeakSecrets {
			if c.EncryptionKey == weak {
				return fmt.Errorf("ENCRYPTION_KEY is a known placeholder value")
			}
		}
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
		}
	}

	if isProduction {
		if !strings.HasPrefix(c.AppBaseURL, "https://") {
			return fmt.Errorf("APP_BASE_URL must use https in production")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: provider tokens will not be encrypted at rest")
		}
	}

	if c.TwitterClientID == "" && c.LinkedInClientID == "" && c.InstagramClientID == "" {
		log.Warn().Msg("no provider credentials configured: all connect flows will be rejected")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
