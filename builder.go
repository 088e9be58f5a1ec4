package authkit

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authkit/internal/audit"
	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/outbound"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/refresh"
)

// Builder assembles an [Engine]. It is single-use: Build may succeed once.
type Builder struct {
	config Config

	repo      Repository
	provider  IdentityProvider
	images    ImageStore
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a builder seeded with [DefaultConfig]. The JWT secret and a
// repository must be supplied before Build.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRepository sets the persistence boundary. Required.
func (b *Builder) WithRepository(repo Repository) *Builder {
	b.repo = repo
	return b
}

// WithIdentityProvider overrides the outbound client built from
// Config.Outbound.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithImageStore enables profile image backfill for returning outbound users.
func (b *Builder) WithImageStore(s ImageStore) *Builder {
	b.images = s
	return b
}

// WithLogger sets the engine logger. The default discards output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink only takes effect when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used for token timestamps and refresh expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build fails when the configuration is invalid (including a missing or short
// signing secret), when no repository is set, or when the builder was
// already used.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.repo == nil {
		return nil, errors.New("repository required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL: cfg.JWT.AccessTTL,
		Secret:    cloneBytes(cfg.JWT.Secret),
		Issuer:    cfg.JWT.Issuer,
		Leeway:    cfg.JWT.Leeway,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	rs, err := refresh.NewStore(b.repo, cfg.Refresh.TTL, refresh.WithClock(now))
	if err != nil {
		return nil, err
	}

	provider := b.provider
	if provider == nil && cfg.Outbound.ClientID != "" {
		client, err := outbound.NewClient(outbound.Config{
			ClientID:     cfg.Outbound.ClientID,
			ClientSecret: cfg.Outbound.ClientSecret,
			RedirectURL:  cfg.Outbound.RedirectURL,
			TokenURL:     cfg.Outbound.TokenURL,
			UserInfoURL:  cfg.Outbound.UserInfoURL,
			Timeout:      cfg.Outbound.Timeout,
		})
		if err != nil {
			return nil, err
		}
		provider = client
	}

	engine := &Engine{
		config:       cfg,
		repo:         b.repo,
		jwtManager:   jm,
		refreshStore: rs,
		passwordHash: ph,
		provider:     provider,
		images:       b.images,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		now: now,
	}
	engine.initFlows()

	b.built = true
	return engine, nil
}
