// Package config loads server configuration from the environment and an
// optional .env file. Secrets (signing key, encryption keys) are validated
// at startup so a misconfigured server refuses to boot instead of failing on
// the first request.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL string `mapstructure:"REDIS_URL"`

	TokenSigningKey  string `mapstructure:"TOKEN_SIGNING_KEY"`
	TokenIssuer      string `mapstructure:"TOKEN_ISSUER"`
	AccessTTLMinutes int    `mapstructure:"ACCESS_TTL_MINUTES"`
	RefreshTTLHours  int    `mapstructure:"REFRESH_TTL_HOURS"`

	FieldEncryptionKey   string `mapstructure:"FIELD_ENCRYPTION_KEY"`
	BlindIndexKey        string `mapstructure:"BLIND_INDEX_KEY"`
	AllowLegacyPlaintext bool   `mapstructure:"ALLOW_LEGACY_PLAINTEXT"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	MigrationsDir       string `mapstructure:"MIGRATIONS_DIR"`
	TenantMigrationsDir string `mapstructure:"TENANT_MIGRATIONS_DIR"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_ISSUER", "carebase")
	v.SetDefault("ACCESS_TTL_MINUTES", 60)
	v.SetDefault("REFRESH_TTL_HOURS", 168)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("MIGRATIONS_DIR", "migrations/master")
	v.SetDefault("TENANT_MIGRATIONS_DIR", "migrations/tenant")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "CORS_ORIGINS",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL",
		"TOKEN_SIGNING_KEY", "TOKEN_ISSUER", "ACCESS_TTL_MINUTES", "REFRESH_TTL_HOURS",
		"FIELD_ENCRYPTION_KEY", "BLIND_INDEX_KEY", "ALLOW_LEGACY_PLAINTEXT",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
		"REQUEST_TIMEOUT", "BODY_LIMIT",
		"MIGRATIONS_DIR", "TENANT_MIGRATIONS_DIR",
		"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	} {
		v.BindEnv(key) //nolint:errcheck
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TokenSigningKey == "" {
		return nil, fmt.Errorf("TOKEN_SIGNING_KEY is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLHours) * time.Hour
}

// EncryptionKey decodes FIELD_ENCRYPTION_KEY.
func (c *Config) EncryptionKey() ([]byte, error) {
	return decodeKey("FIELD_ENCRYPTION_KEY", c.FieldEncryptionKey)
}

// IndexKey decodes BLIND_INDEX_KEY. It must differ from the encryption key
// so the blind index cannot be turned against the ciphertext.
func (c *Config) IndexKey() ([]byte, error) {
	return decodeKey("BLIND_INDEX_KEY", c.BlindIndexKey)
}

// Validate checks that the configuration is safe to run. Production requires
// both crypto keys; any provided key must be 32 bytes of hex and the two
// keys must not match.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.FieldEncryptionKey == "" {
			return fmt.Errorf("FIELD_ENCRYPTION_KEY is required in production")
		}
		if c.BlindIndexKey == "" {
			return fmt.Errorf("BLIND_INDEX_KEY is required in production")
		}
		if c.AllowLegacyPlaintext {
			return fmt.Errorf("ALLOW_LEGACY_PLAINTEXT must not be set in production")
		}
	}

	if c.FieldEncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			return err
		}
	}
	if c.BlindIndexKey != "" {
		if _, err := c.IndexKey(); err != nil {
			return err
		}
	}
	if c.FieldEncryptionKey != "" && c.FieldEncryptionKey == c.BlindIndexKey {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY and BLIND_INDEX_KEY must be distinct")
	}

	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
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

func decodeKey(name, value string) ([]byte, error) {
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes (64 hex chars), got %d bytes", name, len(key))
	}
	return key, nil
}
