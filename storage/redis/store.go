// Package redis implements [storage.Repository] on Redis.
//
// Users are hashes keyed by id with username and email index keys beside them.
// Creation and update run as Lua scripts so that index checks and writes happen
// in one step, which gives the same single-winner guarantee as a unique
// constraint. Refresh tokens are hashes indexed by a per-username set and by a
// sorted set scored on expiry, which the sweeper drains.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authkit/storage"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps transport failures talking to Redis.
var ErrUnavailable = errors.New("redis unavailable")

const (
	statusOK            int64 = 0
	statusEmailTaken    int64 = 1
	statusUsernameTaken int64 = 2
	statusMissing       int64 = 3
)

const createUserScript = `
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "username", ARGV[2],
  "email", ARGV[3],
  "password_hash", ARGV[4],
  "profile_image_ref", ARGV[5],
  "created_at", ARGV[6])
return 0
`

var createUserLua = goredis.NewScript(createUserScript)

const updateUserScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 3
end
local id = ARGV[1]
local email_owner = redis.call("GET", KEYS[3])
if email_owner and email_owner ~= id then
  return 1
end
local username_owner = redis.call("GET", KEYS[2])
if username_owner and username_owner ~= id then
  return 2
end
local old_username = redis.call("HGET", KEYS[1], "username")
local old_email = redis.call("HGET", KEYS[1], "email")
if old_username and old_username ~= ARGV[2] then
  redis.call("DEL", ARGV[6] .. old_username)
end
if old_email and old_email ~= ARGV[3] then
  redis.call("DEL", ARGV[7] .. old_email)
end
redis.call("SET", KEYS[2], id)
redis.call("SET", KEYS[3], id)
redis.call("HSET", KEYS[1],
  "username", ARGV[2],
  "email", ARGV[3],
  "password_hash", ARGV[4],
  "profile_image_ref", ARGV[5])
return 0
`

var updateUserLua = goredis.NewScript(updateUserScript)

const deleteTokenScript = `
local username = redis.call("HGET", KEYS[1], "username")
if not username then
  redis.call("ZREM", KEYS[2], ARGV[1])
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. username, ARGV[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

var deleteTokenLua = goredis.NewScript(deleteTokenScript)

const sweepScript = `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local deleted = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  local username = redis.call("HGET", key, "username")
  if username then
    redis.call("SREM", ARGV[3] .. username, id)
    deleted = deleted + redis.call("DEL", key)
  end
  redis.call("ZREM", KEYS[1], id)
end
return deleted
`

var sweepLua = goredis.NewScript(sweepScript)

// Store is the Redis repository.
type Store struct {
	redis  goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store] using prefix as the key namespace.
func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "authkit"
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

func (s *Store) userKey(id string) string { return s.prefix + ":user:" + id }

func (s *Store) usernameIndexPrefix() string { return s.prefix + ":user:username:" }

func (s *Store) emailIndexPrefix() string { return s.prefix + ":user:email:" }

func (s *Store) tokenKeyPrefix() string { return s.prefix + ":rt:" }

func (s *Store) tokenKey(id string) string { return s.tokenKeyPrefix() + id }

func (s *Store) userTokensPrefix() string { return s.prefix + ":rtu:" }

func (s *Store) userTokensKey(username string) string { return s.userTokensPrefix() + username }

func (s *Store) expiryKey() string { return s.prefix + ":rtexp" }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*storage.User, error) {
	return s.loadUser(ctx, s.userKey(id))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return s.findIndexed(ctx, s.usernameIndexPrefix()+username)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return s.findIndexed(ctx, s.emailIndexPrefix()+email)
}

func (s *Store) findIndexed(ctx context.Context, indexKey string) (*storage.User, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.loadUser(ctx, s.userKey(id))
}

func (s *Store) loadUser(ctx context.Context, key string) (*storage.User, error) {
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	u := &storage.User{
		ID:              fields["id"],
		Username:        fields["username"],
		Email:           fields["email"],
		PasswordHash:    fields["password_hash"],
		ProfileImageRef: fields["profile_image_ref"],
	}
	if raw := fields["created_at"]; raw != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode user created_at: %w", err)
		}
		u.CreatedAt = createdAt
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
		status, err := createUserLua.Run(ctx, s.redis,
			[]string{s.userKey(id), s.usernameIndexPrefix() + u.Username, s.emailIndexPrefix() + u.Email},
			id, u.Username, u.Email, u.PasswordHash, u.ProfileImageRef, createdAt.Format(time.RFC3339Nano),
		).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := statusError(status); err != nil {
			return err
		}
		u.ID = id
		u.CreatedAt = createdAt
		return nil
	}

	status, err := updateUserLua.Run(ctx, s.redis,
		[]string{s.userKey(u.ID), s.usernameIndexPrefix() + u.Username, s.emailIndexPrefix() + u.Email},
		u.ID, u.Username, u.Email, u.PasswordHash, u.ProfileImageRef,
		s.usernameIndexPrefix(), s.emailIndexPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return statusError(status)
}

func statusError(status int64) error {
	switch status {
	case statusOK:
		return nil
	case statusEmailTaken:
		return &storage.DuplicateError{Field: storage.FieldEmail}
	case statusUsernameTaken:
		return &storage.DuplicateError{Field: storage.FieldUsername}
	case statusMissing:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("unexpected script status %d", status)
	}
}

func (s *Store) FindRefreshTokensByUsername(ctx context.Context, username string) ([]storage.RefreshToken, error) {
	ids, err := s.redis.SMembers(ctx, s.userTokensKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.tokenKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]storage.RefreshToken, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Swept between SMEMBERS and HGETALL.
			continue
		}
		expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode refresh token expires_at: %w", err)
		}
		out = append(out, storage.RefreshToken{
			ID:        ids[i],
			Hash:      fields["hash"],
			UserID:    fields["user_id"],
			Username:  fields["username"],
			ExpiresAt: time.UnixMilli(expiresMs).UTC(),
		})
	}
	return out, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token storage.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	username, err := s.redis.HGet(ctx, s.userKey(token.UserID), "username").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	expiresMs := token.ExpiresAt.UnixMilli()
	_, err = s.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.tokenKey(token.ID),
			"hash", token.Hash,
			"user_id", token.UserID,
			"username", username,
			"expires_at", strconv.FormatInt(expiresMs, 10),
		)
		pipe.SAdd(ctx, s.userTokensKey(username), token.ID)
		pipe.ZAdd(ctx, s.expiryKey(), goredis.Z{Score: float64(expiresMs), Member: token.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) (bool, error) {
	deleted, err := deleteTokenLua.Run(ctx, s.redis,
		[]string{s.tokenKey(id), s.expiryKey()},
		id, s.userTokensPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted == 1, nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := sweepLua.Run(ctx, s.redis,
		[]string{s.expiryKey()},
		strconv.FormatInt(now.UnixMilli(), 10), s.tokenKeyPrefix(), s.userTokensPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

var _ storage.Repository = (*Store)(nil)
