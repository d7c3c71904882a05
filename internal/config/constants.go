package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Outbound provider call timeout
const ProviderCallTimeout = 30 * time.Second

// Tokens are refreshed once "now" enters this window before expiry.
const TokenRefreshSkew = 5 * time.Minute

// Video processing poll caps
const (
	MediaPollMaxAttempts = 10
	MediaPollMaxWait     = 5 * time.Minute
)

// Max request body size for publish endpoints (media uploads)
const PublishMaxBodySize = 10 << 20 // 10MB
