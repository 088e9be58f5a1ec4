package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestMapWriteErrorUniqueViolation(t *testing.T) {
	cases := []struct {
		constraint string
		field      string
	}{
		{"users_email_key", storage.FieldEmail},
		{"users_username_key", storage.FieldUsername},
	}
	for _, tc := range cases {
		err := mapWriteError("insert user", &pq.Error{Code: uniqueViolation, Constraint: tc.constraint})
		var dup *storage.DuplicateError
		if !errors.As(err, &dup) {
			t.Fatalf("%s: expected DuplicateError, got %v", tc.constraint, err)
		}
		if dup.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %q", tc.constraint, tc.field, dup.Field)
		}
	}
}

func TestMapWriteErrorPassesThroughOtherErrors(t *testing.T) {
	base := errors.New("connection refused")
	err := mapWriteError("insert user", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if errors.Is(err, storage.ErrDuplicate) {
		t.Fatal("non-unique error must not map to ErrDuplicate")
	}
}

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("AUTH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUTH_TEST_DATABASE_URL not set")
	}
	if err := RunMigrations(url); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	db, err := Open(url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestStoreUserAndRefreshLifecycle(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	u := &storage.User{
		Username:     "user_" + suffix,
		Email:        fmt.Sprintf("%s@x.com", suffix),
		PasswordHash: "hash",
	}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("save user: %v", err)
	}

	err := s.SaveUser(ctx, &storage.User{Username: "other_" + suffix, Email: u.Email, PasswordHash: "x"})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		exp := now.Add(time.Hour)
		if i == 0 {
			exp = now.Add(-time.Second)
		}
		if err := s.SaveRefreshToken(ctx, storage.RefreshToken{
			Hash: uuid.NewString(), UserID: u.ID, ExpiresAt: exp,
		}); err != nil {
			t.Fatalf("save refresh token: %v", err)
		}
	}

	tokens, err := s.FindRefreshTokensByUsername(ctx, u.Username)
	if err != nil {
		t.Fatalf("find tokens: %v", err)
	}
	if len(tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(tokens))
	}

	deleted, err := s.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted < 1 {
		t.Fatalf("expected at least one expired row deleted, got %d", deleted)
	}

	tokens, err = s.FindRefreshTokensByUsername(ctx, u.Username)
	if err != nil {
		t.Fatalf("find tokens: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens after sweep, got %d", len(tokens))
	}
}
