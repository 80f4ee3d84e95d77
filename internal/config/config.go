package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	StoreBackend       string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	SessionBackend     string        `mapstructure:"SESSION_BACKEND"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	JWTSigningKey      string        `mapstructure:"JWT_SIGNING_KEY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	HoldTTL            time.Duration `mapstructure:"HOLD_TTL"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	HoldSweepInterval  time.Duration `mapstructure:"HOLD_SWEEP_INTERVAL"`
	DirectoryCacheSize int           `mapstructure:"DIRECTORY_CACHE_SIZE"`
	DirectoryCacheTTL  time.Duration `mapstructure:"DIRECTORY_CACHE_TTL"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	SeedFile           string        `mapstructure:"SEED_FILE"`
	TLSEnabled         bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile        string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile         string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS",
	"DB_MIN_CONNS", "SESSION_BACKEND", "REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL",
	"AUTH_AUDIENCE", "JWT_SIGNING_KEY", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "HOLD_TTL", "SESSION_TTL", "HOLD_SWEEP_INTERVAL",
	"DIRECTORY_CACHE_SIZE", "DIRECTORY_CACHE_TTL", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"SEED_FILE", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("HOLD_TTL", "5m")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("HOLD_SWEEP_INTERVAL", "30s")
	v.SetDefault("DIRECTORY_CACHE_SIZE", 256)
	v.SetDefault("DIRECTORY_CACHE_TTL", "1m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.SessionBackend = strings.ToLower(cfg.SessionBackend)

	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
	}
	if cfg.SessionBackend == BackendRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
	}

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Warn().Msg("server is running in development mode: identities come from X-Dev-User/X-Dev-Role headers, do not expose it")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments use header identities and everything else verifies JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.StoreBackend)
	}
	switch c.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.SessionBackend)
	}

	mode := c.ResolvedAuthMode()
	switch mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed in production")
		}
	case "jwt":
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.JWTSigningKey == "" {
			return fmt.Errorf(
				"AUTH_ISSUER, AUTH_JWKS_URL or JWT_SIGNING_KEY must be set when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive, got %s", c.HoldTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.HoldSweepInterval <= 0 {
		return fmt.Errorf("HOLD_SWEEP_INTERVAL must be positive, got %s", c.HoldSweepInterval)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
