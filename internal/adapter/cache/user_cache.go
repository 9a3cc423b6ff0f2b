package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "user-service/internal/domain/user"
	"user-service/pkg/logger"
)

// UserCache defines the interface for user caching operations.
//
// Writers invalidate an id by bumping its version. Readers that miss take the
// version before loading from the database and fill the cache only if the
// version is unchanged, so an invalidation racing a fill always wins.
type UserCache interface {
	// Get retrieves a user from cache by ID.
	// Returns nil without error on a cache miss.
	Get(ctx context.Context, id int64) (*domain.User, error)

	// Version returns the current invalidation version of an ID, 0 if it
	// was never invalidated (or the marker expired).
	Version(ctx context.Context, id int64) (int64, error)

	// Set stores a user with the configured TTL unless the ID was
	// invalidated after version was read. Reports whether it stored.
	Set(ctx context.Context, user *domain.User, version int64) (bool, error)

	// Invalidate removes the cached user and bumps its version.
	Invalidate(ctx context.Context, id int64) error
}

// RedisUserCache implements UserCache using Redis as the backing store.
// Entries are JSON-encoded domain users stored under Key(id); versions are
// counters under VersionKey(id).
type RedisUserCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[2].
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[2] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// NewRedisUserCache creates a new Redis-backed user cache.
func NewRedisUserCache(client *redis.Client, ttl time.Duration, log *zap.Logger) UserCache {
	return &RedisUserCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Key returns the Redis key a user ID is cached under.
func Key(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

// VersionKey returns the Redis key holding the invalidation version of an ID.
func VersionKey(id int64) string {
	return fmt.Sprintf("user:ver:%d", id)
}

// Get retrieves a user from Redis. An entry that no longer decodes is
// evicted so the next read repopulates it from the database.
func (c *RedisUserCache) Get(ctx context.Context, id int64) (*domain.User, error) {
	log := logger.WithContext(ctx, c.log)
	key := Key(id)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		log.Debug("cache miss", zap.Int64("user_id", id))
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get from cache", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		log.Error("failed to unmarshal cached user, evicting", zap.Int64("user_id", id), zap.Error(err))
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			log.Warn("failed to evict corrupt cache entry", zap.Int64("user_id", id), zap.Error(delErr))
		}
		return nil, err
	}

	log.Debug("cache hit", zap.Int64("user_id", id))
	return &user, nil
}

// Version reads the invalidation counter of an ID.
func (c *RedisUserCache) Version(ctx context.Context, id int64) (int64, error) {
	v, err := c.client.Get(ctx, VersionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Set stores a user in Redis with the configured TTL if version is current.
func (c *RedisUserCache) Set(ctx context.Context, user *domain.User, version int64) (bool, error) {
	if user == nil {
		return false, errors.New("cannot cache nil user")
	}
	log := logger.WithContext(ctx, c.log)

	data, err := json.Marshal(user)
	if err != nil {
		log.Error("failed to marshal user for cache", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, err
	}

	stored, err := setIfVersion.Run(ctx, c.client,
		[]string{Key(user.ID), VersionKey(user.ID)},
		data, version, c.ttl.Milliseconds()).Int()
	if err != nil {
		log.Error("failed to set cache", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, err
	}

	if stored == 0 {
		log.Debug("skipped caching invalidated user", zap.Int64("user_id", user.ID), zap.Int64("version", version))
		return false, nil
	}
	log.Debug("cached user", zap.Int64("user_id", user.ID), zap.Duration("ttl", c.ttl))
	return true, nil
}

// Invalidate bumps the version and deletes the entry in one transaction.
// The version marker outlives the entry TTL so that any fill started before
// the bump sees the change.
func (c *RedisUserCache) Invalidate(ctx context.Context, id int64) error {
	log := logger.WithContext(ctx, c.log)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, VersionKey(id))
		if c.ttl > 0 {
			pipe.Expire(ctx, VersionKey(id), 2*c.ttl)
		}
		pipe.Del(ctx, Key(id))
		return nil
	})
	if err != nil {
		log.Error("failed to invalidate cache", zap.Int64("user_id", id), zap.Error(err))
		return err
	}

	log.Debug("invalidated cached user", zap.Int64("user_id", id))
	return nil
}
