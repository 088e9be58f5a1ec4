package flows

import (
	"context"

	"github.com/MrEthical07/authkit/storage"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Tokens.IssueAccess != nil
}

func (s Service) GenerateTokens(ctx context.Context, user storage.User) TokenResult {
	return RunGenerateTokens(ctx, user, s.deps.Tokens)
}

func (s Service) Refresh(ctx context.Context, username, refreshToken string) RefreshResult {
	return RunRefresh(ctx, username, refreshToken, s.deps.Refresh)
}

func (s Service) OutboundLogin(ctx context.Context, code string) OutboundResult {
	return RunOutboundLogin(ctx, code, s.deps.Outbound)
}

func (s Service) Login(ctx context.Context, username, password string) LoginResult {
	return RunLogin(ctx, username, password, s.deps.Login)
}

func (s Service) Register(ctx context.Context, req RegisterRequest) AccountResult {
	return RunRegister(ctx, req, s.deps.Account)
}

func (s Service) CheckUniqueEmail(ctx context.Context, email string) (bool, error) {
	return RunCheckUniqueEmail(ctx, email, s.deps.Account)
}

func (s Service) CheckUniqueUsername(ctx context.Context, username string) (bool, error) {
	return RunCheckUniqueUsername(ctx, username, s.deps.Account)
}

func (s Service) Validate(tokenStr string) ValidateResult {
	return RunValidate(tokenStr, s.deps.Validate)
}

func (s Service) Profile(ctx context.Context, tokenStr string) ProfileResult {
	return RunProfile(ctx, tokenStr, s.deps.Profile)
}
