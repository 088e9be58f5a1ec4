package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Config holds limiter tuning parameters.
type Config struct {
	PerMinute       int
	Burst           int
	CleanupInterval time.Duration
}

// DefaultConfig allows 30 requests per minute per client.
func DefaultConfig() Config {
	return Config{
		PerMinute:       30,
		Burst:           30,
		CleanupInterval: 5 * time.Minute,
	}
}

func (c Config) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	return c.PerMinute
}

type clientLimiter struct {
	limiter    *xrate.Limiter
	lastAccess time.Time
}

// Local is an in-process token bucket per key.
type Local struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLocal creates a [Local] limiter and starts its idle-entry cleanup.
func NewLocal(cfg Config) *Local {
	l := &Local{
		config:  cfg,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow spends one token for key. A non-positive PerMinute disables limiting.
func (l *Local) Allow(_ context.Context, key string) error {
	if l.config.PerMinute <= 0 {
		return nil
	}
	if !l.limiterFor(key).AllowN(l.now(), 1) {
		return ErrRateLimited
	}
	return nil
}

// Len reports how many keys are tracked.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup goroutine.
func (l *Local) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Local) limiterFor(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if c, ok := l.clients[key]; ok {
		c.lastAccess = now
		return c.limiter
	}
	every := xrate.Every(time.Minute / time.Duration(l.config.PerMinute))
	c := &clientLimiter{limiter: xrate.NewLimiter(every, l.config.burst()), lastAccess: now}
	l.clients[key] = c
	return c.limiter
}

func (l *Local) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup drops keys idle for two cleanup intervals.
func (l *Local) cleanup() {
	ttl := l.config.CleanupInterval * 2
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.lastAccess) > ttl {
			delete(l.clients, key)
		}
	}
}

// Redis is a fixed-window counter shared by every instance using the same
// Redis. Windows are one minute.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// NewRedis creates a [Redis] limiter. Keys are stored under prefix + "rl:".
func NewRedis(client redis.UniversalClient, prefix string, cfg Config) *Redis {
	return &Redis{redis: client, prefix: prefix, config: cfg}
}

// Allow increments the window counter for key.
func (l *Redis) Allow(ctx context.Context, key string) error {
	if l.config.PerMinute <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.prefix+"rl:"+key, time.Minute)
	if err != nil {
		return err
	}
	if count > int64(l.config.PerMinute) {
		return ErrRateLimited
	}
	return nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
