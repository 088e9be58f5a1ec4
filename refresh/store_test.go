package refresh

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/MrEthical07/authkit/storage/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newRefreshStoreTest(t *testing.T, ttl time.Duration) (*Store, *memory.Store, *fixedClock, storage.User) {
	t.Helper()
	repo := memory.New()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	store, err := NewStore(repo, ttl, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	u := &storage.User{Username: "alice1", Email: "a@x.com", PasswordHash: "h"}
	if err := repo.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return store, repo, clock, *u
}

func TestIssueStoresOnlyHash(t *testing.T) {
	store, repo, clock, user := newRefreshStoreTest(t, time.Hour)
	ctx := context.Background()

	secret, err := store.Issue(ctx, user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if secret == "" {
		t.Fatal("expected plaintext secret")
	}

	rows, err := repo.FindRefreshTokensByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("find rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].Hash == secret || strings.Contains(rows[0].Hash, secret) {
		t.Fatal("plaintext secret must not be persisted")
	}
	if rows[0].Hash != Hash(secret) {
		t.Fatal("stored hash does not match secret digest")
	}
	if !rows[0].ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", rows[0].ExpiresAt)
	}
}

func TestIssueRequiresOwner(t *testing.T) {
	store, _, _, _ := newRefreshStoreTest(t, time.Hour)
	if _, err := store.Issue(context.Background(), storage.User{Username: "alice1"}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
}

func TestResolveMatchesAmongManyRows(t *testing.T) {
	store, _, _, user := newRefreshStoreTest(t, time.Hour)
	ctx := context.Background()

	var secrets []string
	for i := 0; i < 5; i++ {
		s, err := store.Issue(ctx, user)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		secrets = append(secrets, s)
	}

	got, err := store.Resolve(ctx, user.Username, secrets[3])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.UserID != user.ID || got.Hash != Hash(secrets[3]) {
		t.Fatalf("resolved wrong row: %+v", got)
	}

	if _, err := store.Resolve(ctx, user.Username, "not-a-secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Resolve(ctx, "someone-else", secrets[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other username, got %v", err)
	}
}

func TestExpireCheckBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok := storage.RefreshToken{ExpiresAt: now}

	if got := ExpireCheck(tok, now.Add(-time.Nanosecond)); got != Valid {
		t.Fatalf("expected valid before expiry, got %v", got)
	}
	if got := ExpireCheck(tok, now); got != Expired {
		t.Fatalf("expected expired at expiry instant, got %v", got)
	}
	if got := ExpireCheck(tok, now.Add(time.Second)); got != Expired {
		t.Fatalf("expected expired after expiry, got %v", got)
	}
}

func TestSweepExpiredCountsDeletedRows(t *testing.T) {
	store, repo, clock, user := newRefreshStoreTest(t, time.Hour)
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 3; i++ {
		if _, err := store.Issue(ctx, user); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}
	clock.Set(start.Add(30 * time.Minute))
	for i := 0; i < 7; i++ {
		if _, err := store.Issue(ctx, user); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}

	clock.Set(start.Add(time.Hour))
	deleted, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	if got := repo.RefreshTokenCount(); got != 7 {
		t.Fatalf("expected 7 remaining, got %d", got)
	}
}

func TestSweeperRunOnceLogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sweeper := NewSweeper(SweepFunc(func(context.Context) (int64, error) { return 4, nil }), time.Minute, logger)
	n, err := sweeper.RunOnce(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("run once: n=%d err=%v", n, err)
	}
	if !strings.Contains(buf.String(), `"deleted_count":4`) {
		t.Fatalf("expected deleted_count in log, got %s", buf.String())
	}
}

func TestSweeperStartStopsOnCancel(t *testing.T) {
	calls := make(chan struct{}, 8)
	sweeper := NewSweeper(SweepFunc(func(context.Context) (int64, error) {
		calls <- struct{}{}
		return 0, nil
	}), 10*time.Millisecond, nil)
	sweeper.InitialDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
