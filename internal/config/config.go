package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL"`
	RedisURL            string `env:"REDIS_URL"`
	StoreDriver         string `env:"STORE_DRIVER" envDefault:"postgres"`
	JWTSecret           string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS" envDefault:"24"`
	PublicBaseURL       string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	TokenRetentionHours int    `env:"TOKEN_RETENTION_HOURS" envDefault:"168"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	MigrationsAuto      bool   `env:"MIGRATIONS_AUTO" envDefault:"false"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) TokenRetention() time.Duration {
	return time.Duration(c.TokenRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// QRBaseURL is the prefix a pairing token is appended to when rendered as a QR code.
func (c *Config) QRBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/connect?token="
}

func (c *Config) UsesPostgres() bool {
	return c.StoreDriver == StoreDriverPostgres
}

func (c *Config) Validate(isProduction bool) error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
		if isProduction {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if c.TokenRetentionHours < 0 {
		return fmt.Errorf("TOKEN_RETENTION_HOURS must not be negative")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: rate limiting and event fan-out disabled")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.PublicBaseURL, "http://") {
			log.Warn().Msg("PUBLIC_BASE_URL is not https in production: QR links will be served over plain http")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: pairing-server gen-secret)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
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
