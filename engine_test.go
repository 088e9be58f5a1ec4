package authkit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/outbound"
	"github.com/MrEthical07/authkit/storage/memory"
	"go.uber.org/mock/gomock"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = bytes.Repeat([]byte("s"), 64)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, configure ...func(*Builder)) (*Engine, *testClock, *memory.Store) {
	t.Helper()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	repo := memory.New()
	b := New().WithConfig(testConfig()).WithRepository(repo).WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, clock, repo
}

func registerAlice(t *testing.T, e *Engine) PublicUser {
	t.Helper()
	u, err := e.Register(context.Background(), RegisterRequest{Username: "alice1", Email: "a@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register alice1: %v", err)
	}
	return u
}

func TestBuildRejectsMissingOrShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = nil
	if _, err := New().WithConfig(cfg).WithRepository(memory.New()).Build(); err == nil {
		t.Fatal("expected build to fail without a secret")
	}

	cfg.JWT.Secret = bytes.Repeat([]byte("s"), 63)
	if _, err := New().WithConfig(cfg).WithRepository(memory.New()).Build(); err == nil {
		t.Fatal("expected build to fail with a 63-byte secret")
	}
}

func TestBuildRequiresRepositoryAndIsSingleUse(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected build to fail without a repository")
	}

	b := New().WithConfig(testConfig()).WithRepository(memory.New())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Validate("x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Refresh(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

func TestRegisterLoginValidateProfile(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	user := registerAlice(t, e)
	if user.ID == "" || user.Username != "alice1" {
		t.Fatalf("unexpected registered user %+v", user)
	}

	pair, err := e.Login(ctx, "alice1", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.User.ID != user.ID {
		t.Fatalf("pair user %q != %q", pair.User.ID, user.ID)
	}

	auth, err := e.Validate(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if auth.UserID != user.ID || auth.Username != "alice1" {
		t.Fatalf("unexpected auth result %+v", auth)
	}

	profile, err := e.Profile(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Email != "a@x.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := e.Login(ctx, "alice1", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := e.Login(ctx, "nobody1", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("unexpected login counters %+v", snap.Counters)
	}
}

func TestRegisterRejectsInvalidAndDuplicate(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	registerAlice(t, e)

	_, err := e.Register(ctx, RegisterRequest{Username: "al", Email: "bad", Password: "1"})
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("expected three problems, got %v", verr.Problems)
	}

	_, err = e.Register(ctx, RegisterRequest{Username: "bob123", Email: "b@x.com", Password: strings.Repeat("p", 2000)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected oversized password to fail validation, got %v", err)
	}

	_, err = e.Register(ctx, RegisterRequest{Username: "alice2", Email: "a@x.com", Password: "secret1"})
	if !errors.Is(err, ErrEmailExists) || !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected email exists, got %v", err)
	}
	_, err = e.Register(ctx, RegisterRequest{Username: "alice1", Email: "z@x.com", Password: "secret1"})
	if !errors.Is(err, ErrUsernameExists) || !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected username exists, got %v", err)
	}

	unique, err := e.CheckUniqueUsername(ctx, "alice1")
	if err != nil || unique {
		t.Fatalf("alice1 must be taken: unique=%v err=%v", unique, err)
	}
	unique, err = e.CheckUniqueEmail(ctx, "free@x.com")
	if err != nil || !unique {
		t.Fatalf("free@x.com must be unique: unique=%v err=%v", unique, err)
	}
}

func TestValidateClassifiesFailures(t *testing.T) {
	e, clock, _ := newTestEngine(t)
	registerAlice(t, e)

	pair, err := e.Login(context.Background(), "alice1", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := e.Validate("not-a-token"); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := e.Validate(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid for empty token, got %v", err)
	}

	clock.Advance(testConfig().JWT.AccessTTL)
	_, err = e.Validate(pair.AccessToken)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Fatal("expired token must carry exactly one kind")
	}

	if _, err := e.Profile(context.Background(), pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("profile must reject expired token, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricTokenExpired] != 2 || snap.Counters[MetricTokenMalformed] != 1 {
		t.Fatalf("unexpected token counters %+v", snap.Counters)
	}
}

func TestRefreshLifecycleScenario(t *testing.T) {
	e, clock, repo := newTestEngine(t)
	ctx := context.Background()
	registerAlice(t, e)

	pair, err := e.Login(ctx, "alice1", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := e.Refresh(ctx, "alice1", pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must mint a new refresh token")
	}
	if _, err := e.Refresh(ctx, "alice1", pair.RefreshToken); err != nil {
		t.Fatalf("old refresh token must remain usable without rotation: %v", err)
	}

	if _, err := e.Refresh(ctx, "alice1", pair.RefreshToken+"x"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected not found for tampered token, got %v", err)
	}
	if _, err := e.Refresh(ctx, "bob1234", pair.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected not found for another username, got %v", err)
	}

	clock.Advance(testConfig().Refresh.TTL + time.Second)
	rows := repo.RefreshTokenCount()
	if _, err := e.Refresh(ctx, "alice1", pair.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if repo.RefreshTokenCount() != rows {
		t.Fatal("expired refresh must not write a new row")
	}

	deleted, err := e.SweepExpiredRefreshTokens(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != int64(rows) || repo.RefreshTokenCount() != 0 {
		t.Fatalf("expected %d rows swept, got %d (remaining %d)", rows, deleted, repo.RefreshTokenCount())
	}
	if got := e.MetricsSnapshot().Counters[MetricRefreshSweepDeleted]; got != uint64(rows) {
		t.Fatalf("sweep counter %d != %d", got, rows)
	}
}

func TestRefreshRotationSingleWinner(t *testing.T) {
	e, _, _ := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.Refresh.RotateOnRefresh = true
		b.WithConfig(cfg)
	})
	ctx := context.Background()
	registerAlice(t, e)

	pair, err := e.Login(ctx, "alice1", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Refresh(ctx, "alice1", pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRefreshTokenNotFound):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
}

func TestGenerateTokensForExistingUser(t *testing.T) {
	e, _, repo := newTestEngine(t)
	user := registerAlice(t, e)

	pair, err := e.GenerateTokens(context.Background(), user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.User.Email != "a@x.com" {
		t.Fatalf("unexpected pair user %+v", pair.User)
	}
	if repo.RefreshTokenCount() != 1 {
		t.Fatalf("expected one refresh row, got %d", repo.RefreshTokenCount())
	}
}

func TestOutboundLoginCreatesThenReusesUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	e, _, repo := newTestEngine(t, func(b *Builder) { b.WithIdentityProvider(provider) })
	ctx := context.Background()

	identity := &outbound.Identity{Email: "b@x.com", DisplayName: "Bob Builder", PictureURL: "https://pic/b.png"}
	provider.EXPECT().Exchange(gomock.Any(), "code-1").Return("provider-1", nil)
	provider.EXPECT().Exchange(gomock.Any(), "code-2").Return("provider-2", nil)
	provider.EXPECT().FetchIdentity(gomock.Any(), gomock.Any()).Return(identity, nil).Times(2)

	first, err := e.OutboundLogin(ctx, "code-1")
	if err != nil {
		t.Fatalf("first outbound login: %v", err)
	}
	second, err := e.OutboundLogin(ctx, "code-2")
	if err != nil {
		t.Fatalf("second outbound login: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Fatal("both logins must resolve to one user")
	}
	if first.User.ProfileImageRef != "https://pic/b.png" {
		t.Fatalf("expected picture copied on create, got %q", first.User.ProfileImageRef)
	}

	stored, err := repo.FindUserByEmail(ctx, "b@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == DefaultPlaceholderPassword {
		t.Fatal("placeholder password must be stored hashed")
	}

	if _, err := e.Login(ctx, "Bob Builder", DefaultPlaceholderPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("placeholder must never authenticate, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricOutboundLoginSuccess] != 2 || snap.Counters[MetricOutboundUserCreated] != 1 {
		t.Fatalf("unexpected outbound counters %+v", snap.Counters)
	}
}

func TestOutboundLoginBackfillsImageForReturningUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	images := NewMockImageStore(ctrl)
	e, _, repo := newTestEngine(t, func(b *Builder) {
		b.WithIdentityProvider(provider).WithImageStore(images)
	})
	ctx := context.Background()
	registerAlice(t, e)

	provider.EXPECT().Exchange(gomock.Any(), "code").Return("provider-token", nil)
	provider.EXPECT().FetchIdentity(gomock.Any(), "provider-token").
		Return(&outbound.Identity{Email: "a@x.com", DisplayName: "Alice", PictureURL: "https://pic/a.png"}, nil)
	images.EXPECT().UploadImage(gomock.Any(), "https://pic/a.png").Return("https://cdn/a.png", nil)

	pair, err := e.OutboundLogin(ctx, "code")
	if err != nil {
		t.Fatalf("outbound login: %v", err)
	}
	if pair.User.Username != "alice1" {
		t.Fatalf("returning user must keep their username, got %q", pair.User.Username)
	}

	e.Close()

	stored, err := repo.FindUserByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.ProfileImageRef != "https://cdn/a.png" {
		t.Fatalf("expected backfilled image, got %q", stored.ProfileImageRef)
	}
}

func TestOutboundLoginSwallowsBackfillFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	images := NewMockImageStore(ctrl)
	e, _, repo := newTestEngine(t, func(b *Builder) {
		b.WithIdentityProvider(provider).WithImageStore(images)
	})
	ctx := context.Background()
	registerAlice(t, e)

	provider.EXPECT().Exchange(gomock.Any(), "code").Return("provider-token", nil)
	provider.EXPECT().FetchIdentity(gomock.Any(), "provider-token").
		Return(&outbound.Identity{Email: "a@x.com", PictureURL: "https://pic/a.png"}, nil)
	images.EXPECT().UploadImage(gomock.Any(), "https://pic/a.png").Return("", errors.New("upload host down"))

	if _, err := e.OutboundLogin(ctx, "code"); err != nil {
		t.Fatalf("backfill failure must not fail login: %v", err)
	}
	e.Close()

	stored, _ := repo.FindUserByEmail(ctx, "a@x.com")
	if stored.ProfileImageRef != "" {
		t.Fatalf("image must remain empty, got %q", stored.ProfileImageRef)
	}
	if got := e.MetricsSnapshot().Counters[MetricImageBackfillFailed]; got != 1 {
		t.Fatalf("expected one backfill failure, got %d", got)
	}
}

func TestOutboundLoginExchangeFailureSkipsIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	e, _, _ := newTestEngine(t, func(b *Builder) { b.WithIdentityProvider(provider) })

	provider.EXPECT().Exchange(gomock.Any(), "used-code").Return("", errors.New("invalid_grant"))

	_, err := e.OutboundLogin(context.Background(), "used-code")
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected exchange failure, got %v", err)
	}
}

func TestOutboundLoginIdentityFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	e, _, _ := newTestEngine(t, func(b *Builder) { b.WithIdentityProvider(provider) })

	provider.EXPECT().Exchange(gomock.Any(), "code").Return("provider-token", nil)
	provider.EXPECT().FetchIdentity(gomock.Any(), "provider-token").Return(nil, context.DeadlineExceeded)

	_, err := e.OutboundLogin(context.Background(), "code")
	if !errors.Is(err, ErrIdentityFetchFailed) {
		t.Fatalf("expected identity failure, got %v", err)
	}
}

func TestOutboundLoginSurfacesUsernameCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockIdentityProvider(ctrl)
	e, _, _ := newTestEngine(t, func(b *Builder) { b.WithIdentityProvider(provider) })
	registerAlice(t, e)

	provider.EXPECT().Exchange(gomock.Any(), "code").Return("provider-token", nil)
	provider.EXPECT().FetchIdentity(gomock.Any(), "provider-token").
		Return(&outbound.Identity{Email: "other@x.com", DisplayName: "alice1"}, nil)

	_, err := e.OutboundLogin(context.Background(), "code")
	if !errors.Is(err, ErrDuplicateUser) || !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected username collision, got %v", err)
	}
}

func TestOutboundLoginWithoutProvider(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.OutboundLogin(context.Background(), "code"); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected exchange failure without provider, got %v", err)
	}
}

func TestAuditEventsCarryClientIP(t *testing.T) {
	sink := NewChannelSink(16)
	e, _, _ := newTestEngine(t, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg).WithAuditSink(sink)
	})
	registerAlice(t, e)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := e.Login(ctx, "alice1", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	e.Close()

	var login *AuditEvent
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		if ev.EventType == auditEventLoginSuccess {
			login = &ev
		}
	}
	if login == nil {
		t.Fatal("expected a login_success event")
	}
	if login.IP != "203.0.113.7" || login.Username != "alice1" || !login.Success {
		t.Fatalf("unexpected audit event %+v", login)
	}
}
