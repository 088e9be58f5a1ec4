package authkit

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authkit/internal/audit"
	internalmetrics "github.com/MrEthical07/authkit/internal/metrics"
	"github.com/MrEthical07/authkit/outbound"
	"github.com/MrEthical07/authkit/storage"
)

// PublicUser is the caller-facing view of a user. It never carries the
// password hash.
type PublicUser struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	ProfileImageRef string    `json:"profileImage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TokenPair is the result of every successful authentication. It is never
// persisted.
type TokenPair struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         PublicUser `json:"user"`
}

// AuthResult is the identity reconstructed from a valid access token.
type AuthResult struct {
	UserID    string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RegisterRequest is the input to [Engine.Register].
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity is the profile returned by the identity provider.
type Identity = outbound.Identity

// IdentityProvider exchanges an authorization code and reads the resulting
// profile. [outbound.Client] implements it.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (string, error)
	FetchIdentity(ctx context.Context, accessToken string) (*outbound.Identity, error)
}

// ImageStore re-hosts a remote image and returns its hosted URL.
// [imagestore.Uploader] implements it.
type ImageStore interface {
	UploadImage(ctx context.Context, sourceURL string) (string, error)
}

// Repository is the persistence boundary. See [storage.Repository].
type Repository = storage.Repository

func toPublicUser(u storage.User) PublicUser {
	return PublicUser{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		ProfileImageRef: u.ProfileImageRef,
		CreatedAt:       u.CreatedAt,
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess             = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure             = MetricID(internalmetrics.MetricLoginFailure)
	MetricRefreshSuccess           = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshNotFound          = MetricID(internalmetrics.MetricRefreshNotFound)
	MetricRefreshExpired           = MetricID(internalmetrics.MetricRefreshExpired)
	MetricRefreshRotated           = MetricID(internalmetrics.MetricRefreshRotated)
	MetricOutboundLoginSuccess     = MetricID(internalmetrics.MetricOutboundLoginSuccess)
	MetricOutboundLoginFailure     = MetricID(internalmetrics.MetricOutboundLoginFailure)
	MetricOutboundUserCreated      = MetricID(internalmetrics.MetricOutboundUserCreated)
	MetricImageBackfillScheduled   = MetricID(internalmetrics.MetricImageBackfillScheduled)
	MetricImageBackfillFailed      = MetricID(internalmetrics.MetricImageBackfillFailed)
	MetricAccountCreationSuccess   = MetricID(internalmetrics.MetricAccountCreationSuccess)
	MetricAccountCreationDuplicate = MetricID(internalmetrics.MetricAccountCreationDuplicate)
	MetricAccountCreationInvalid   = MetricID(internalmetrics.MetricAccountCreationInvalid)
	MetricTokenExpired             = MetricID(internalmetrics.MetricTokenExpired)
	MetricTokenMalformed           = MetricID(internalmetrics.MetricTokenMalformed)
	MetricTokenUnsupported         = MetricID(internalmetrics.MetricTokenUnsupported)
	MetricTokenInvalid             = MetricID(internalmetrics.MetricTokenInvalid)
	MetricRefreshSweepDeleted      = MetricID(internalmetrics.MetricRefreshSweepDeleted)
	MetricValidateLatency          = MetricID(internalmetrics.MetricValidateLatency)
)

// Metrics holds atomic counters and an optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
