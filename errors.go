package authkit

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a registration request breaks a field rule.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is the umbrella error for every rejected access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenExpired marks an access token past its exp claim.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenMalformed marks an access token that is not a decodable JWT.
	ErrTokenMalformed = errors.New("access token malformed")
	// ErrTokenUnsupported marks an access token signed with another algorithm.
	ErrTokenUnsupported = errors.New("access token unsupported")
	// ErrTokenInvalid marks an access token with a bad signature or an illegal value.
	ErrTokenInvalid = errors.New("access token invalid")
	// ErrRefreshTokenNotFound is returned when no stored refresh token matches.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenExpired is returned when the matching refresh token has expired.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrExchangeFailed is returned when the provider rejects the authorization code.
	ErrExchangeFailed = errors.New("outbound code exchange failed")
	// ErrIdentityFetchFailed is returned when the provider profile cannot be read.
	ErrIdentityFetchFailed = errors.New("outbound identity fetch failed")
	// ErrDuplicateUser is returned when a user write collides with a unique field.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrEmailExists refines ErrDuplicateUser for the email field.
	ErrEmailExists = fmt.Errorf("%w: email", ErrDuplicateUser)
	// ErrUsernameExists refines ErrDuplicateUser for the username field.
	ErrUsernameExists = fmt.Errorf("%w: username", ErrDuplicateUser)
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError carries every rule a request broke. It matches
// [ErrValidation] under errors.Is.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	msg := ErrValidation.Error() + ":"
	for i, p := range e.Problems {
		if i > 0 {
			msg += ";"
		}
		msg += " " + p
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// tokenError wraps one token kind sentinel so callers can match either the
// kind or ErrUnauthorized.
func tokenError(kind error) error {
	return fmt.Errorf("%w: %w", ErrUnauthorized, kind)
}
