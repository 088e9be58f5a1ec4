// Package postgres implements [storage.Repository] on PostgreSQL using lib/pq.
//
// Uniqueness of username and email is enforced by table constraints; violations
// surface as [*storage.DuplicateError]. Refresh-token deletes and scans run as single
// statements, so the sweeper never observes or removes a partially written row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Open opens a PostgreSQL handle. sql.Open does not connect; callers should
// Ping before serving.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Store is the PostgreSQL repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, username, email, password_hash, profile_image_ref, created_at`

func (s *Store) FindUserByID(ctx context.Context, id string) (*storage.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (*storage.User, error) {
	u := &storage.User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfileImageRef, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *storage.User) error {
	if u.ID == "" {
		id := uuid.NewString()
		createdAt := u.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now().UTC()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			id, u.Username, u.Email, u.PasswordHash, u.ProfileImageRef, createdAt,
		)
		if err != nil {
			return mapWriteError("insert user", err)
		}
		u.ID = id
		u.CreatedAt = createdAt
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $2, email = $3, password_hash = $4, profile_image_ref = $5
		 WHERE id = $1`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.ProfileImageRef,
	)
	if err != nil {
		return mapWriteError("update user", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FindRefreshTokensByUsername(ctx context.Context, username string) ([]storage.RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rt.id, rt.token_hash, rt.user_id, u.username, rt.expires_at
		 FROM refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE u.username = $1`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("find refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []storage.RefreshToken
	for rows.Next() {
		var t storage.RefreshToken
		if err := rows.Scan(&t.ID, &t.Hash, &t.UserID, &t.Username, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return out, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token storage.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at) VALUES ($1, $2, $3, $4)`,
		token.ID, token.Hash, token.UserID, token.ExpiresAt.UTC(),
	)
	if err != nil {
		return mapWriteError("insert refresh token", err)
	}
	return nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete refresh token rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return rows, nil
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		switch pqErr.Constraint {
		case "users_email_key":
			return &storage.DuplicateError{Field: storage.FieldEmail}
		case "users_username_key":
			return &storage.DuplicateError{Field: storage.FieldUsername}
		default:
			return &storage.DuplicateError{Field: pqErr.Constraint}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ storage.Repository = (*Store)(nil)
