package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate indicates a unique constraint rejected a write.
var ErrDuplicate = errors.New("duplicate record")

// DuplicateError names the unique field that rejected a write. It matches
// [ErrDuplicate] under errors.Is.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

const (
	// FieldEmail is the unique email column.
	FieldEmail = "email"
	// FieldUsername is the unique username column.
	FieldUsername = "username"
)

// User is the persisted account record. PasswordHash is an encoded one-way
// hash and is never returned to callers outside the engine.
type User struct {
	ID              string
	Username        string
	Email           string
	PasswordHash    string
	ProfileImageRef string
	CreatedAt       time.Time
}

// RefreshToken is one issued refresh token. Hash is the hex SHA-256 of the
// plaintext secret; the plaintext is never stored.
type RefreshToken struct {
	ID        string
	Hash      string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// UserStore persists account records. SaveUser inserts when u.ID is empty
// (assigning ID and CreatedAt) and updates otherwise; unique violations
// return a *DuplicateError.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
}

// RefreshTokenStore persists issued refresh token rows.
type RefreshTokenStore interface {
	FindRefreshTokensByUsername(ctx context.Context, username string) ([]RefreshToken, error)
	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	DeleteRefreshToken(ctx context.Context, id string) (bool, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Repository is the full persistence boundary used by the engine.
type Repository interface {
	UserStore
	RefreshTokenStore
}
