package flows

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/storage"
)

const (
	minUsernameRunes = 6
	maxUsernameRunes = 50
	maxEmailBytes    = 100
	minPasswordBytes = password.MinPasswordBytes
	maxPasswordBytes = password.MaxPasswordBytes
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// ValidationError lists every rule a request broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// AccountFailureKind classifies registration failures for root-level mapping.
type AccountFailureKind int

const (
	AccountFailureNone AccountFailureKind = iota
	AccountFailureValidation
	AccountFailureEmailExists
	AccountFailureUsernameExists
	AccountFailureLookup
	AccountFailureHash
	AccountFailurePersist
)

// AccountResult carries the created user or failure metadata.
type AccountResult struct {
	Failure AccountFailureKind
	Err     error
	User    storage.User
}

// AccountDeps captures registration and uniqueness-check dependencies.
type AccountDeps struct {
	PlaceholderPassword string

	FindUserByEmail    func(ctx context.Context, email string) (*storage.User, error)
	FindUserByUsername func(ctx context.Context, username string) (*storage.User, error)
	SaveUser           func(ctx context.Context, u *storage.User) error
	HashPassword       func(string) (string, error)

	UserNotFound error
}

// ValidateRegistration checks request shape. It returns nil or a *ValidationError.
func ValidateRegistration(req RegisterRequest, placeholder string) error {
	var problems []string

	if n := utf8.RuneCountInString(req.Username); n < minUsernameRunes || n > maxUsernameRunes {
		problems = append(problems, fmt.Sprintf("username must be between %d and %d characters", minUsernameRunes, maxUsernameRunes))
	}

	switch {
	case strings.TrimSpace(req.Email) == "":
		problems = append(problems, "email is required")
	case len(req.Email) > maxEmailBytes:
		problems = append(problems, fmt.Sprintf("email must be at most %d characters", maxEmailBytes))
	default:
		addr, err := mail.ParseAddress(req.Email)
		if err != nil || addr.Address != req.Email {
			problems = append(problems, "email is not valid")
		}
	}

	switch {
	case len(req.Password) < minPasswordBytes:
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordBytes))
	case len(req.Password) > maxPasswordBytes:
		problems = append(problems, fmt.Sprintf("password must be at most %d characters", maxPasswordBytes))
	case placeholder != "" && req.Password == placeholder:
		problems = append(problems, "password is reserved")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// RunRegister validates, checks uniqueness, hashes and persists a new user.
// The store remains the final arbiter of uniqueness; a collision it reports is
// mapped to the matching exists failure.
func RunRegister(ctx context.Context, req RegisterRequest, deps AccountDeps) AccountResult {
	if err := ValidateRegistration(req, deps.PlaceholderPassword); err != nil {
		return AccountResult{Failure: AccountFailureValidation, Err: err}
	}

	unique, err := RunCheckUniqueEmail(ctx, req.Email, deps)
	if err != nil {
		return AccountResult{Failure: AccountFailureLookup, Err: err}
	}
	if !unique {
		return AccountResult{Failure: AccountFailureEmailExists, Err: &storage.DuplicateError{Field: storage.FieldEmail}}
	}

	unique, err = RunCheckUniqueUsername(ctx, req.Username, deps)
	if err != nil {
		return AccountResult{Failure: AccountFailureLookup, Err: err}
	}
	if !unique {
		return AccountResult{Failure: AccountFailureUsernameExists, Err: &storage.DuplicateError{Field: storage.FieldUsername}}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return AccountResult{Failure: AccountFailureHash, Err: err}
	}

	user := &storage.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := deps.SaveUser(ctx, user); err != nil {
		var dup *storage.DuplicateError
		if errors.As(err, &dup) {
			if dup.Field == storage.FieldUsername {
				return AccountResult{Failure: AccountFailureUsernameExists, Err: err}
			}
			return AccountResult{Failure: AccountFailureEmailExists, Err: err}
		}
		return AccountResult{Failure: AccountFailurePersist, Err: err}
	}

	return AccountResult{User: *user}
}

// RunCheckUniqueEmail reports whether no user holds email.
func RunCheckUniqueEmail(ctx context.Context, email string, deps AccountDeps) (bool, error) {
	_, err := deps.FindUserByEmail(ctx, email)
	return absent(err, deps.UserNotFound)
}

// RunCheckUniqueUsername reports whether no user holds username.
func RunCheckUniqueUsername(ctx context.Context, username string, deps AccountDeps) (bool, error) {
	_, err := deps.FindUserByUsername(ctx, username)
	return absent(err, deps.UserNotFound)
}

func absent(lookupErr, notFound error) (bool, error) {
	if lookupErr == nil {
		return false, nil
	}
	if notFound != nil && errors.Is(lookupErr, notFound) {
		return true, nil
	}
	return false, lookupErr
}
