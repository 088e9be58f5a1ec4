package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends accepted by AUTH_STORAGE.
const (
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// Config holds all environment-based configuration for authd.
type Config struct {
	Environment string `env:"AUTH_ENV" envDefault:"development"`
	LogLevel    string `env:"AUTH_LOG_LEVEL" envDefault:"info"`
	ListenAddr  string `env:"AUTH_LISTEN_ADDR" envDefault:":8080"`
	TrustProxy  bool   `env:"AUTH_TRUST_PROXY" envDefault:"false"`

	Storage       string `env:"AUTH_STORAGE" envDefault:"postgres"`
	DatabaseURL   string `env:"AUTH_DATABASE_URL"`
	RedisAddr     string `env:"AUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"AUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTH_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"AUTH_REDIS_PREFIX" envDefault:"authkit"`

	// Signing secret, at least 64 bytes.
	JWTSecret            string        `env:"AUTH_JWT_SECRET"`
	JWTIssuer            string        `env:"AUTH_JWT_ISSUER" envDefault:"authkit"`
	AccessTTLMinutes     int           `env:"AUTH_ACCESS_TTL_MINUTES" envDefault:"15"`
	RefreshTTLMinutes    int           `env:"AUTH_REFRESH_TTL_MINUTES" envDefault:"10080"`
	RefreshSweepInterval time.Duration `env:"AUTH_REFRESH_SWEEP_INTERVAL" envDefault:"1h"`
	RefreshRotate        bool          `env:"AUTH_REFRESH_ROTATE" envDefault:"false"`

	OutboundClientID     string        `env:"AUTH_OUTBOUND_CLIENT_ID"`
	OutboundClientSecret string        `env:"AUTH_OUTBOUND_CLIENT_SECRET"`
	OutboundRedirectURI  string        `env:"AUTH_OUTBOUND_REDIRECT_URI"`
	OutboundTokenURL     string        `env:"AUTH_OUTBOUND_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	OutboundUserInfoURL  string        `env:"AUTH_OUTBOUND_USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v3/userinfo"`
	OutboundTimeout      time.Duration `env:"AUTH_OUTBOUND_TIMEOUT" envDefault:"10s"`

	ImageUploadURL    string `env:"AUTH_IMAGE_UPLOAD_URL"`
	ImageUploadPreset string `env:"AUTH_IMAGE_UPLOAD_PRESET"`

	RateLimitPerMinute int  `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	AuditEnabled       bool `env:"AUTH_AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled     bool `env:"AUTH_METRICS_ENABLED" envDefault:"true"`
}

// warnInsecureEnvFile reports a group or world readable .env file, which may
// hold the signing secret.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads a .env file if present, then parses and validates the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("AUTH_DATABASE_URL is required when AUTH_STORAGE is postgres")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("AUTH_REDIS_ADDR is required when AUTH_STORAGE is redis")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("AUTH_STORAGE must be one of postgres, redis, memory; got %q", c.Storage)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	if c.AccessTTLMinutes <= 0 {
		return fmt.Errorf("AUTH_ACCESS_TTL_MINUTES must be positive")
	}

	if c.RefreshTTLMinutes <= 0 {
		return fmt.Errorf("AUTH_REFRESH_TTL_MINUTES must be positive")
	}

	if c.OutboundClientID != "" && c.OutboundRedirectURI == "" {
		return fmt.Errorf("AUTH_OUTBOUND_REDIRECT_URI is required when AUTH_OUTBOUND_CLIENT_ID is set")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuthConfig maps the environment onto an [authkit.Config]. Secret length is
// checked later by the engine builder.
func (c *Config) AuthConfig() authkit.Config {
	cfg := authkit.DefaultConfig()

	cfg.JWT.Secret = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.AccessTTL = time.Duration(c.AccessTTLMinutes) * time.Minute

	cfg.Refresh.TTL = time.Duration(c.RefreshTTLMinutes) * time.Minute
	cfg.Refresh.SweepInterval = c.RefreshSweepInterval
	cfg.Refresh.RotateOnRefresh = c.RefreshRotate

	cfg.Outbound.ClientID = c.OutboundClientID
	cfg.Outbound.ClientSecret = c.OutboundClientSecret
	cfg.Outbound.RedirectURL = c.OutboundRedirectURI
	cfg.Outbound.TokenURL = c.OutboundTokenURL
	cfg.Outbound.UserInfoURL = c.OutboundUserInfoURL
	if c.OutboundTimeout > 0 {
		cfg.Outbound.Timeout = c.OutboundTimeout
	}

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	return cfg
}
