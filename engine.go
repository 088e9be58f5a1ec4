package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authkit/internal/audit"
	"github.com/MrEthical07/authkit/internal/flows"
	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/refresh"
	"github.com/MrEthical07/authkit/storage"
)

// Engine issues and validates tokens and runs the account flows.
//
// Engine methods are safe for concurrent use after [Builder.Build]. Call Close
// on shutdown to wait for detached image backfills and flush audit events.
type Engine struct {
	config       Config
	repo         Repository
	jwtManager   *jwt.Manager
	refreshStore *refresh.Store
	passwordHash *password.Argon2
	provider     IdentityProvider
	images       ImageStore
	logger       *slog.Logger
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flows        flows.Service
	now          func() time.Time

	detachMu sync.Mutex
	closed   bool
	detached sync.WaitGroup
}

func (e *Engine) initFlows() {
	tokens := flows.TokenDeps{
		IssueAccess: func(u storage.User) (string, error) {
			return e.jwtManager.Issue(jwt.Subject{UserID: u.ID, Username: u.Username})
		},
		IssueRefresh: e.refreshStore.Issue,
	}
	validate := flows.ValidateDeps{
		ParseAccess: e.jwtManager.Verify,
		Warn:        e.logger.Warn,
	}

	deps := flows.Deps{
		Tokens: tokens,
		Refresh: flows.RefreshDeps{
			RotateOnRefresh: e.config.Refresh.RotateOnRefresh,
			Now:             e.now,
			Resolve:         e.refreshStore.Resolve,
			IsExpired: func(t storage.RefreshToken, now time.Time) bool {
				return refresh.ExpireCheck(t, now) == refresh.Expired
			},
			Revoke:          e.refreshStore.Revoke,
			FindUserByID:    e.repo.FindUserByID,
			RefreshNotFound: refresh.ErrNotFound,
			UserNotFound:    storage.ErrNotFound,
			Tokens:          tokens,
		},
		Outbound: flows.OutboundDeps{
			PlaceholderPassword: e.config.Outbound.PlaceholderPassword,
			FindUserByEmail:     e.repo.FindUserByEmail,
			FindUserByID:        e.repo.FindUserByID,
			SaveUser:            e.repo.SaveUser,
			HashPassword:        e.passwordHash.Hash,
			Detach:              e.detach,
			Warn: func(msg string, args ...any) {
				e.metricInc(MetricImageBackfillFailed)
				e.logger.Warn(msg, args...)
			},
			UserNotFound: storage.ErrNotFound,
			Duplicate:    storage.ErrDuplicate,
			Tokens:       tokens,
		},
		Login: flows.LoginDeps{
			PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			PlaceholderPassword:    e.config.Outbound.PlaceholderPassword,
			FindUserByUsername:     e.repo.FindUserByUsername,
			VerifyPassword:         e.passwordHash.Verify,
			NeedsUpgrade:           e.passwordHash.NeedsUpgrade,
			HashPassword:           e.passwordHash.Hash,
			SaveUser:               e.repo.SaveUser,
			Warn:                   e.logger.Warn,
			UserNotFound:           storage.ErrNotFound,
			InvalidCredentials:     ErrInvalidCredentials,
			Tokens:                 tokens,
		},
		Account: flows.AccountDeps{
			PlaceholderPassword: e.config.Outbound.PlaceholderPassword,
			FindUserByEmail:     e.repo.FindUserByEmail,
			FindUserByUsername:  e.repo.FindUserByUsername,
			SaveUser:            e.repo.SaveUser,
			HashPassword:        e.passwordHash.Hash,
			UserNotFound:        storage.ErrNotFound,
		},
		Validate: validate,
		Profile: flows.ProfileDeps{
			Validate:           validate,
			FindUserByUsername: e.repo.FindUserByUsername,
			UserNotFound:       storage.ErrNotFound,
		},
	}
	if e.provider != nil {
		deps.Outbound.Exchange = e.provider.Exchange
		deps.Outbound.FetchIdentity = e.provider.FetchIdentity
	}
	if e.images != nil {
		deps.Outbound.UploadImage = e.images.UploadImage
	}

	e.flows = flows.New(deps)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// detach runs task on its own goroutine with a context that outlives the
// request but is bounded by Outbound.BackfillTimeout. Tasks submitted after
// Close are dropped.
func (e *Engine) detach(task func(context.Context)) {
	e.detachMu.Lock()
	defer e.detachMu.Unlock()
	if e.closed {
		return
	}

	e.detached.Add(1)
	go func() {
		defer e.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.config.Outbound.BackfillTimeout)
		defer cancel()
		task(ctx)
	}()
}

// Close waits for detached backfills, then flushes and stops the audit
// dispatcher. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.detachMu.Lock()
	e.closed = true
	e.detachMu.Unlock()

	e.detached.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
TOKENS
====================================
*/

// GenerateTokens issues an access token and a refresh token for an existing
// user. No refresh row is written if the access token cannot be signed.
func (e *Engine) GenerateTokens(ctx context.Context, user PublicUser) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	res := e.flows.GenerateTokens(ctx, storage.User{
		ID:              user.ID,
		Username:        user.Username,
		Email:           user.Email,
		ProfileImageRef: user.ProfileImageRef,
		CreatedAt:       user.CreatedAt,
	})
	if res.Failure != flows.TokenFailureNone {
		return TokenPair{}, fmt.Errorf("generate tokens: %w", res.Err)
	}
	return toTokenPair(res.Pair), nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh returns ErrRefreshTokenNotFound when no stored token of username
// matches, and ErrRefreshTokenExpired when the match has expired; neither
// writes anything. On success a new pair is minted for the token's owner.
// The presented token is consumed only when Refresh.RotateOnRefresh is set.
func (e *Engine) Refresh(ctx context.Context, username, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, username, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		if res.Rotated {
			e.metricInc(MetricRefreshRotated)
		}
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, username, nil, map[string]string{"token_id": res.TokenID})
		return toTokenPair(res.Pair), nil
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshNotFound)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", username, ErrRefreshTokenNotFound, nil)
		return TokenPair{}, ErrRefreshTokenNotFound
	case flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshExpired)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, username, ErrRefreshTokenExpired, map[string]string{"token_id": res.TokenID})
		return TokenPair{}, ErrRefreshTokenExpired
	case flows.RefreshFailureUserNotFound:
		return TokenPair{}, ErrUserNotFound
	default:
		return TokenPair{}, fmt.Errorf("refresh: %w", res.Err)
	}
}

// SweepExpiredRefreshTokens deletes every refresh token whose expiry is at or
// before now and returns the number removed.
func (e *Engine) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.refreshStore.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricRefreshSweepDeleted, uint64(n))
	}
	return n, nil
}

/*
====================================
LOGIN
====================================
*/

// Login describes the login operation and its observable behavior.
//
// Login returns ErrInvalidCredentials for an unknown username, a wrong
// password or the outbound placeholder password.
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, username, password)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Pair.User.ID, username, nil, nil)
		return toTokenPair(res.Pair), nil
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", username, ErrInvalidCredentials, nil)
		return TokenPair{}, ErrInvalidCredentials
	default:
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, fmt.Errorf("login: %w", res.Err)
	}
}

// OutboundLogin describes the outboundlogin operation and its observable behavior.
//
// OutboundLogin exchanges code with the identity provider, reconciles the
// provider identity with a local user by email and returns a token pair. A
// first-time email creates a user; a collision on its username or email is
// returned as ErrDuplicateUser and is not retried.
func (e *Engine) OutboundLogin(ctx context.Context, code string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.provider == nil {
		return TokenPair{}, fmt.Errorf("%w: no identity provider configured", ErrExchangeFailed)
	}

	res := e.flows.OutboundLogin(ctx, code)
	if res.Failure == flows.OutboundFailureNone {
		e.metricInc(MetricOutboundLoginSuccess)
		if res.Created {
			e.metricInc(MetricOutboundUserCreated)
		}
		if res.BackfillScheduled {
			e.metricInc(MetricImageBackfillScheduled)
		}
		e.emitAudit(ctx, auditEventOutboundLoginSuccess, true, res.Pair.User.ID, res.Pair.User.Username, nil,
			map[string]string{"created": fmt.Sprint(res.Created)})
		return toTokenPair(res.Pair), nil
	}

	e.metricInc(MetricOutboundLoginFailure)
	var err error
	switch res.Failure {
	case flows.OutboundFailureExchange:
		err = fmt.Errorf("%w: %v", ErrExchangeFailed, res.Err)
	case flows.OutboundFailureIdentity:
		err = fmt.Errorf("%w: %v", ErrIdentityFetchFailed, res.Err)
	case flows.OutboundFailureDuplicate:
		err = duplicateError(res.Err)
	default:
		err = fmt.Errorf("outbound login: %w", res.Err)
	}
	e.emitAudit(ctx, auditEventOutboundLoginFailure, false, "", "", err, map[string]string{"email": res.Email})
	return TokenPair{}, err
}

/*
====================================
ACCOUNTS
====================================
*/

// Register validates req, checks email and username uniqueness, hashes the
// password and persists the user.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}

	res := e.flows.Register(ctx, flows.RegisterRequest(req))
	switch res.Failure {
	case flows.AccountFailureNone:
		e.metricInc(MetricAccountCreationSuccess)
		e.emitAudit(ctx, auditEventAccountCreationSuccess, true, res.User.ID, res.User.Username, nil, nil)
		return toPublicUser(res.User), nil
	case flows.AccountFailureValidation:
		e.metricInc(MetricAccountCreationInvalid)
		var verr *flows.ValidationError
		if errors.As(res.Err, &verr) {
			return PublicUser{}, &ValidationError{Problems: verr.Problems}
		}
		return PublicUser{}, ErrValidation
	case flows.AccountFailureEmailExists:
		e.metricInc(MetricAccountCreationDuplicate)
		e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", req.Username, ErrEmailExists, nil)
		return PublicUser{}, ErrEmailExists
	case flows.AccountFailureUsernameExists:
		e.metricInc(MetricAccountCreationDuplicate)
		e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", req.Username, ErrUsernameExists, nil)
		return PublicUser{}, ErrUsernameExists
	default:
		return PublicUser{}, fmt.Errorf("register: %w", res.Err)
	}
}

// CheckUniqueEmail reports whether no user has email.
func (e *Engine) CheckUniqueEmail(ctx context.Context, email string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.flows.CheckUniqueEmail(ctx, email)
}

// CheckUniqueUsername reports whether no user has username.
func (e *Engine) CheckUniqueUsername(ctx context.Context, username string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.flows.CheckUniqueUsername(ctx, username)
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate verifies an access token without touching storage. Every failure
// matches ErrUnauthorized and exactly one of ErrTokenExpired,
// ErrTokenMalformed, ErrTokenUnsupported or ErrTokenInvalid.
func (e *Engine) Validate(tokenStr string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Validate(tokenStr)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if res.Failure != flows.ValidateFailureNone {
		return nil, e.tokenFailure(res.Failure)
	}
	return toAuthResult(res.Claims), nil
}

// Profile returns the user that owns an access token. A user whose id no
// longer matches the token is reported as ErrUserNotFound.
func (e *Engine) Profile(ctx context.Context, tokenStr string) (PublicUser, error) {
	if !e.ready() {
		return PublicUser{}, ErrEngineNotReady
	}

	res := e.flows.Profile(ctx, tokenStr)
	switch res.Failure {
	case flows.ProfileFailureNone:
		return toPublicUser(res.User), nil
	case flows.ProfileFailureToken:
		return PublicUser{}, e.tokenFailure(res.TokenFailure)
	case flows.ProfileFailureUserNotFound:
		return PublicUser{}, ErrUserNotFound
	default:
		return PublicUser{}, fmt.Errorf("profile: %w", res.Err)
	}
}

func (e *Engine) tokenFailure(kind flows.ValidateFailureKind) error {
	switch kind {
	case flows.ValidateFailureExpired:
		e.metricInc(MetricTokenExpired)
		return tokenError(ErrTokenExpired)
	case flows.ValidateFailureMalformed:
		e.metricInc(MetricTokenMalformed)
		return tokenError(ErrTokenMalformed)
	case flows.ValidateFailureUnsupported:
		e.metricInc(MetricTokenUnsupported)
		return tokenError(ErrTokenUnsupported)
	default:
		e.metricInc(MetricTokenInvalid)
		return tokenError(ErrTokenInvalid)
	}
}

func toTokenPair(p flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         toPublicUser(p.User),
	}
}

func toAuthResult(c *jwt.AccessClaims) *AuthResult {
	out := &AuthResult{UserID: c.UserID, Username: c.Username}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

func duplicateError(err error) error {
	var dup *storage.DuplicateError
	if errors.As(err, &dup) {
		switch dup.Field {
		case storage.FieldEmail:
			return ErrEmailExists
		case storage.FieldUsername:
			return ErrUsernameExists
		}
	}
	return ErrDuplicateUser
}
