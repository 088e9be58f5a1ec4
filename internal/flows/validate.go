package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/storage"
)

// ValidateFailureKind classifies access-token failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureExpired
	ValidateFailureMalformed
	ValidateFailureUnsupported
	ValidateFailureInvalid
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Warn        func(msg string, args ...any)
}

// RunValidate verifies tokenStr and reconstructs the caller's identity without a
// storage round trip. Each failure kind is logged under its own label.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err == nil {
		return ValidateResult{Claims: claims}
	}

	kind := jwt.KindOf(err)
	warn(deps.Warn, "authkit: access token rejected", "kind", kind.String(), "error", err)

	switch kind {
	case jwt.KindExpired:
		return ValidateResult{Failure: ValidateFailureExpired, Err: err}
	case jwt.KindMalformed:
		return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
	case jwt.KindUnsupported:
		return ValidateResult{Failure: ValidateFailureUnsupported, Err: err}
	default:
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
}

// ProfileFailureKind classifies profile lookup failures.
type ProfileFailureKind int

const (
	ProfileFailureNone ProfileFailureKind = iota
	ProfileFailureToken
	ProfileFailureUserNotFound
	ProfileFailureLookup
)

// ProfileResult carries the token owner's record or failure metadata.
type ProfileResult struct {
	Failure      ProfileFailureKind
	TokenFailure ValidateFailureKind
	Err          error
	User         storage.User
}

// ProfileDeps captures profile lookup dependencies.
type ProfileDeps struct {
	Validate           ValidateDeps
	FindUserByUsername func(ctx context.Context, username string) (*storage.User, error)
	UserNotFound       error
}

// RunProfile validates tokenStr and loads its owner by username. A user whose id
// no longer matches the token's id is treated as not found.
func RunProfile(ctx context.Context, tokenStr string, deps ProfileDeps) ProfileResult {
	validated := RunValidate(tokenStr, deps.Validate)
	if validated.Failure != ValidateFailureNone {
		return ProfileResult{Failure: ProfileFailureToken, TokenFailure: validated.Failure, Err: validated.Err}
	}

	user, err := deps.FindUserByUsername(ctx, validated.Claims.Username)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return ProfileResult{Failure: ProfileFailureUserNotFound, Err: err}
		}
		return ProfileResult{Failure: ProfileFailureLookup, Err: err}
	}
	if user.ID != validated.Claims.UserID {
		return ProfileResult{Failure: ProfileFailureUserNotFound, Err: errors.New("token subject does not match stored user")}
	}
	return ProfileResult{User: *user}
}
