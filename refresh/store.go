package refresh

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Resolve when no stored hash matches the candidate.
	ErrNotFound = errors.New("refresh token not found")
	// ErrInvalidOwner is returned by Issue when the user has no id or username.
	ErrInvalidOwner = errors.New("refresh token owner requires id and username")
)

// Status is the result of ExpireCheck.
type Status int

const (
	// Valid means the token's expiry is still in the future.
	Valid Status = iota
	// Expired means the token's expiry is at or before the checked instant.
	Expired
)

// String returns "valid" or "expired".
func (s Status) String() string {
	if s == Expired {
		return "expired"
	}
	return "valid"
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry computation and sweeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store issues, resolves and sweeps refresh tokens on top of a persistence
// backend. It never holds plaintext secrets beyond the Issue call.
type Store struct {
	repo storage.RefreshTokenStore
	ttl  time.Duration
	now  func() time.Time
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation fails.
func NewStore(repo storage.RefreshTokenStore, ttl time.Duration, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, errors.New("refresh store requires a repository")
	}
	if ttl <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	s := &Store{repo: repo, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Issue describes the issue operation and its observable behavior.
//
// Issue generates a UUIDv4 secret, persists only its hash with
// ExpiresAt = now + TTL and returns the plaintext exactly once.
func (s *Store) Issue(ctx context.Context, user storage.User) (string, error) {
	if user.ID == "" || user.Username == "" {
		return "", ErrInvalidOwner
	}

	secret := uuid.NewString()
	row := storage.RefreshToken{
		Hash:      Hash(secret),
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.repo.SaveRefreshToken(ctx, row); err != nil {
		return "", fmt.Errorf("save refresh token: %w", err)
	}
	return secret, nil
}

// Resolve describes the resolve operation and its observable behavior.
//
// Resolve loads every row for username and returns the first whose hash matches
// candidate. Each comparison runs in constant time. ErrNotFound is returned when
// nothing matches.
func (s *Store) Resolve(ctx context.Context, username, candidate string) (*storage.RefreshToken, error) {
	if username == "" || candidate == "" {
		return nil, ErrNotFound
	}

	rows, err := s.repo.FindRefreshTokensByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load refresh tokens: %w", err)
	}

	candidateHash := Hash(candidate)
	for i := range rows {
		if Matches(candidateHash, rows[i].Hash) {
			match := rows[i]
			return &match, nil
		}
	}
	return nil, ErrNotFound
}

// ExpireCheck reports Expired when now is at or after the token's expiry.
func ExpireCheck(token storage.RefreshToken, now time.Time) Status {
	if !now.Before(token.ExpiresAt) {
		return Expired
	}
	return Valid
}

// Revoke deletes a single row. The boolean is false if the row was already gone.
func (s *Store) Revoke(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.DeleteRefreshToken(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return deleted, nil
}

// SweepExpired deletes every row whose expiry is at or before now and returns
// the number removed.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return deleted, nil
}

// Hash returns the hex SHA-256 digest stored for a refresh secret.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Matches compares two stored-form hashes in constant time.
func Matches(candidateHash, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(candidateHash), []byte(storedHash)) == 1
}
