package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("k", 64)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_STORAGE", "memory")
	t.Setenv("AUTH_JWT_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 15, cfg.AccessTTLMinutes)
	assert.Equal(t, 10080, cfg.RefreshTTLMinutes)
	assert.Equal(t, time.Hour, cfg.RefreshSweepInterval)
	assert.False(t, cfg.RefreshRotate)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_ENV", "production")
	t.Setenv("AUTH_STORAGE", "Redis")
	t.Setenv("AUTH_REDIS_ADDR", "cache:6379")
	t.Setenv("AUTH_ACCESS_TTL_MINUTES", "5")
	t.Setenv("AUTH_REFRESH_SWEEP_INTERVAL", "10m")
	t.Setenv("AUTH_REFRESH_ROTATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)

	auth := cfg.AuthConfig()
	assert.Equal(t, 5*time.Minute, auth.JWT.AccessTTL)
	assert.Equal(t, 10*time.Minute, auth.Refresh.SweepInterval)
	assert.True(t, auth.Refresh.RotateOnRefresh)
	assert.Equal(t, []byte(testSecret), auth.JWT.Secret)
	require.NoError(t, auth.Validate())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing secret", env: map[string]string{"AUTH_JWT_SECRET": ""}, want: "AUTH_JWT_SECRET"},
		{name: "postgres without url", env: map[string]string{"AUTH_STORAGE": "postgres"}, want: "AUTH_DATABASE_URL"},
		{name: "unknown storage", env: map[string]string{"AUTH_STORAGE": "mongo"}, want: "AUTH_STORAGE"},
		{name: "bad ttl", env: map[string]string{"AUTH_ACCESS_TTL_MINUTES": "0"}, want: "AUTH_ACCESS_TTL_MINUTES"},
		{name: "outbound without redirect", env: map[string]string{"AUTH_OUTBOUND_CLIENT_ID": "cid"}, want: "AUTH_OUTBOUND_REDIRECT_URI"},
		{name: "unparseable duration", env: map[string]string{"AUTH_OUTBOUND_TIMEOUT": "soon"}, want: "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAuthConfig_OutboundMapping(t *testing.T) {
	c := &Config{
		JWTSecret:            testSecret,
		JWTIssuer:            "issuer",
		AccessTTLMinutes:     15,
		RefreshTTLMinutes:    60,
		OutboundClientID:     "cid",
		OutboundClientSecret: "csecret",
		OutboundRedirectURI:  "https://app.example/callback",
		OutboundTokenURL:     "https://idp.example/token",
		OutboundUserInfoURL:  "https://idp.example/userinfo",
	}

	auth := c.AuthConfig()
	assert.Equal(t, "cid", auth.Outbound.ClientID)
	assert.Equal(t, "csecret", auth.Outbound.ClientSecret)
	assert.Equal(t, "https://app.example/callback", auth.Outbound.RedirectURL)
	assert.Equal(t, time.Hour, auth.Refresh.TTL)
	assert.Equal(t, 10*time.Second, auth.Outbound.Timeout)
}
