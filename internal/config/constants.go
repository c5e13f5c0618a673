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
const CleanupJobInterval = 15 * time.Minute

// Rate limiting
const (
	DefaultRateLimitPerMin = 60
	LoginAttemptsPerWindow = 10
	LoginAttemptWindow     = 15 * time.Minute
	TokenValidatePerMinute = 30
	RateLimitWindow        = time.Minute
)

// Pairing token bounds
const (
	DefaultTokenExpiryHours = 24
	MaxTokenExpiryHours     = 720
	DefaultTokenMaxUses     = 1
)

// Pagination
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Request body limit for JSON endpoints
const MaxRequestBodyBytes = 1 << 20

// SSE heartbeat interval
const SSEHeartbeatInterval = 30 * time.Second
