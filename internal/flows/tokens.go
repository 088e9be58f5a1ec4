package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit/storage"
)

// TokenPair is the flow-local token response shape.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	User         storage.User
}

// TokenFailureKind classifies token generation failures for root-level mapping.
type TokenFailureKind int

const (
	TokenFailureNone TokenFailureKind = iota
	TokenFailureIssueAccess
	TokenFailureIssueRefresh
)

// TokenResult carries either the issued pair or failure metadata.
type TokenResult struct {
	Failure TokenFailureKind
	Err     error
	Pair    TokenPair
}

// TokenDeps captures token generation dependencies.
type TokenDeps struct {
	IssueAccess  func(storage.User) (string, error)
	IssueRefresh func(context.Context, storage.User) (string, error)
}

// RunGenerateTokens issues an access token and then a refresh token for user.
// No refresh row is written when the access token cannot be issued.
func RunGenerateTokens(ctx context.Context, user storage.User, deps TokenDeps) TokenResult {
	if deps.IssueAccess == nil || deps.IssueRefresh == nil {
		return TokenResult{Failure: TokenFailureIssueAccess, Err: errors.New("token dependencies not configured")}
	}

	access, err := deps.IssueAccess(user)
	if err != nil {
		return TokenResult{Failure: TokenFailureIssueAccess, Err: err}
	}

	refreshToken, err := deps.IssueRefresh(ctx, user)
	if err != nil {
		return TokenResult{Failure: TokenFailureIssueRefresh, Err: err}
	}

	return TokenResult{
		Pair: TokenPair{
			AccessToken:  access,
			RefreshToken: refreshToken,
			User:         user,
		},
	}
}
