package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit/storage"
)

// LoginFailureKind classifies credential login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidCredentials
	LoginFailureLookup
	LoginFailureIssue
)

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	Upgraded bool
	Pair     TokenPair
}

// LoginDeps captures credential login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool
	PlaceholderPassword    string

	FindUserByUsername func(ctx context.Context, username string) (*storage.User, error)
	VerifyPassword     func(password, encodedHash string) (bool, error)
	NeedsUpgrade       func(encodedHash string) (bool, error)
	HashPassword       func(string) (string, error)
	SaveUser           func(ctx context.Context, u *storage.User) error
	Warn               func(msg string, args ...any)

	UserNotFound       error
	InvalidCredentials error

	Tokens TokenDeps
}

// RunLogin verifies username and password and issues a token pair. The outbound
// placeholder password never authenticates.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	user, err := deps.FindUserByUsername(ctx, username)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return LoginResult{Failure: LoginFailureInvalidCredentials, Err: deps.InvalidCredentials}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	if deps.PlaceholderPassword != "" && password == deps.PlaceholderPassword {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: deps.InvalidCredentials}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: deps.InvalidCredentials}
	}

	upgraded := false
	if deps.PasswordUpgradeOnLogin && deps.NeedsUpgrade != nil {
		upgraded = upgradePasswordHash(ctx, user, password, deps)
	}

	issued := RunGenerateTokens(ctx, *user, deps.Tokens)
	if issued.Failure != TokenFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, Upgraded: upgraded}
	}
	return LoginResult{Upgraded: upgraded, Pair: issued.Pair}
}

func upgradePasswordHash(ctx context.Context, user *storage.User, password string, deps LoginDeps) bool {
	needs, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		warn(deps.Warn, "authkit: password rehash failed", "user_id", user.ID, "error", err)
		return false
	}

	previous := user.PasswordHash
	user.PasswordHash = hash
	if err := deps.SaveUser(ctx, user); err != nil {
		user.PasswordHash = previous
		warn(deps.Warn, "authkit: password hash upgrade save failed", "user_id", user.ID, "error", err)
		return false
	}
	return true
}
