package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalBurstThenLimited(t *testing.T) {
	l := NewLocal(Config{PerMinute: 3, Burst: 3})
	defer l.Stop()
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := l.Allow(context.Background(), "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected %v", i, err)
		}
	}
	if err := l.Allow(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(context.Background(), "10.0.0.2"); err != nil {
		t.Fatalf("other key should be independent: %v", err)
	}

	now = now.Add(30 * time.Second)
	if err := l.Allow(context.Background(), "10.0.0.1"); err != nil {
		t.Fatalf("expected a refilled token, got %v", err)
	}
}

func TestLocalDisabled(t *testing.T) {
	l := NewLocal(Config{})
	defer l.Stop()
	for i := 0; i < 100; i++ {
		if err := l.Allow(context.Background(), "k"); err != nil {
			t.Fatalf("disabled limiter rejected: %v", err)
		}
	}
}

func TestLocalCleanupDropsIdleKeys(t *testing.T) {
	l := NewLocal(Config{PerMinute: 5})
	defer l.Stop()
	l.config.CleanupInterval = time.Minute
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	_ = l.Allow(context.Background(), "a")
	now = now.Add(90 * time.Second)
	_ = l.Allow(context.Background(), "b")
	now = now.Add(90 * time.Second)
	l.cleanup()

	if got := l.Len(); got != 1 {
		t.Fatalf("expected 1 tracked key after cleanup, got %d", got)
	}
}

func TestRedisFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, "authkit:", Config{PerMinute: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("request %d: unexpected %v", i, err)
		}
	}
	if err := l.Allow(ctx, "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ttl := mr.TTL("authkit:rl:1.2.3.4"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected window ttl %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedis(client, "", Config{PerMinute: 1})
	if err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
