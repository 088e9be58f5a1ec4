package authkit

import (
	"errors"
	"time"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/password"
)

// Config holds every engine setting. It is copied into the Engine at Build
// and never changes afterwards.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Outbound OutboundConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS512 access tokens. Secret must be at least
// [jwt.MinSecretBytes] long.
type JWTConfig struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh-token lifetime and cleanup.
//
// With RotateOnRefresh false a refresh token stays usable until it expires
// and each refresh adds one more live row. With it true the presented token is
// deleted before its successor is issued.
type RefreshConfig struct {
	TTL             time.Duration
	SweepInterval   time.Duration
	RotateOnRefresh bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures argon2id hashing.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
OUTBOUND CONFIG
====================================
*/

// OutboundConfig configures the third-party identity provider and the
// behaviour of outbound-created accounts.
type OutboundConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration

	// PlaceholderPassword is hashed into accounts created by outbound login.
	// Credential login and registration reject it.
	PlaceholderPassword string
	// BackfillTimeout bounds one detached profile image upload.
	BackfillTimeout time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultPlaceholderPassword is the placeholder used when OutboundConfig
// leaves it empty.
const DefaultPlaceholderPassword = "outbound-login-only"

// DefaultConfig returns the defaults. JWT.Secret is left empty and must be
// supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			Issuer:    "authkit",
			AccessTTL: 15 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Outbound: OutboundConfig{
			Timeout:             10 * time.Second,
			PlaceholderPassword: DefaultPlaceholderPassword,
			BackfillTimeout:     30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first setting that would make Build fail.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) == 0 {
		return errors.New("JWT Secret is required")
	}
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return errors.New("JWT Secret must be at least 64 bytes for HS512")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.SweepInterval < 0 {
		return errors.New("Refresh SweepInterval must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Outbound
	if c.Outbound.Timeout <= 0 {
		return errors.New("Outbound Timeout must be > 0")
	}
	if c.Outbound.PlaceholderPassword == "" {
		return errors.New("Outbound PlaceholderPassword is required")
	}
	if c.Outbound.BackfillTimeout <= 0 {
		return errors.New("Outbound BackfillTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the ordered result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint returns warnings for settings that pass Validate but weaken the
// deployment.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT Leeway above 1m extends every access token")
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", "access tokens live longer than 30m")
	}
	if c.Refresh.TTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.Refresh.SweepInterval == 0 {
		add("sweep_disabled", "expired refresh tokens are never swept")
	}
	if !c.Refresh.RotateOnRefresh {
		add("refresh_not_rotated", "refresh tokens stay valid after use until they expire")
	}
	if c.JWT.Issuer == "" {
		add("issuer_empty", "access tokens carry no issuer and any issuer is accepted")
	}
	if c.Outbound.PlaceholderPassword == DefaultPlaceholderPassword {
		add("placeholder_default", "outbound placeholder password is the published default")
	}
	return ws
}
