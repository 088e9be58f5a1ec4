package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authkit/storage"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureLookup
	RefreshFailureUserNotFound
	RefreshFailureRotate
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Username string
	TokenID  string
	UserID   string
	Rotated  bool
	Pair     TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RotateOnRefresh bool

	Now          func() time.Time
	Resolve      func(ctx context.Context, username, plaintext string) (*storage.RefreshToken, error)
	IsExpired    func(token storage.RefreshToken, now time.Time) bool
	Revoke       func(ctx context.Context, id string) (bool, error)
	FindUserByID func(ctx context.Context, id string) (*storage.User, error)

	RefreshNotFound error
	UserNotFound    error

	Tokens TokenDeps
}

// RunRefresh resolves the presented refresh token and mints a new pair for its
// owner. An expired token yields RefreshFailureExpired and writes nothing.
// Without RotateOnRefresh the presented row stays valid until its own expiry.
func RunRefresh(ctx context.Context, username, plaintext string, deps RefreshDeps) RefreshResult {
	token, err := deps.Resolve(ctx, username, plaintext)
	if err != nil {
		if deps.RefreshNotFound != nil && errors.Is(err, deps.RefreshNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, Username: username}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, Username: username}
	}

	if deps.IsExpired(*token, deps.Now()) {
		return RefreshResult{
			Failure:  RefreshFailureExpired,
			Err:      errors.New("refresh token expired"),
			Username: username,
			TokenID:  token.ID,
			UserID:   token.UserID,
		}
	}

	user, err := deps.FindUserByID(ctx, token.UserID)
	if err != nil {
		kind := RefreshFailureLookup
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			kind = RefreshFailureUserNotFound
		}
		return RefreshResult{Failure: kind, Err: err, Username: username, TokenID: token.ID, UserID: token.UserID}
	}

	rotated := false
	if deps.RotateOnRefresh {
		deleted, err := deps.Revoke(ctx, token.ID)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, Username: username, TokenID: token.ID, UserID: user.ID}
		}
		if !deleted {
			// Another caller consumed the same token first.
			return RefreshResult{
				Failure:  RefreshFailureNotFound,
				Err:      errors.New("refresh token already consumed"),
				Username: username,
				TokenID:  token.ID,
				UserID:   user.ID,
			}
		}
		rotated = true
	}

	issued := RunGenerateTokens(ctx, *user, deps.Tokens)
	if issued.Failure != TokenFailureNone {
		return RefreshResult{Failure: RefreshFailureIssue, Err: issued.Err, Username: username, TokenID: token.ID, UserID: user.ID, Rotated: rotated}
	}

	return RefreshResult{
		Username: username,
		TokenID:  token.ID,
		UserID:   user.ID,
		Rotated:  rotated,
		Pair:     issued.Pair,
	}
}
