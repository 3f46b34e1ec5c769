// Package redis implements the Redis-backed progress cache and the cached
// hidden-user set in front of the global ranking source.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection settings used when REDIS_URL is not given.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS AND KEYS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when the initial ping fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON encode and decode failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

const (
	// PrefixProgress namespaces per-user progress snapshots.
	PrefixProgress = "progress:"

	// KeyHiddenUsers holds the set of users hidden from the global leaderboard.
	KeyHiddenUsers = "leaderboard:hidden"

	// KeyHiddenLoaded marks KeyHiddenUsers as populated. An empty set cannot be
	// told apart from a missing one, so freshness lives on this marker.
	KeyHiddenLoaded = "leaderboard:hidden:loaded"

	// KeyHiddenVersion is bumped on every invalidation. A reload only lands
	// if the version it started from is still current.
	KeyHiddenVersion = "leaderboard:hidden:version"
)

// ProgressKey returns the cache key for a user's progress.
func ProgressKey(userID string) string {
	return PrefixProgress + userID
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps a go-redis client with the JSON document and versioned set
// operations the stores need.
type Cache struct {
	client redis.UniversalClient
}

// NewCache connects to Redis and verifies the connection with a ping.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// JSON documents
// ─────────────────────────────────────────────────────────────────────────────

// Set stores value as JSON. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the JSON value at key into dest. Returns ErrCacheMiss if the
// key doesn't exist.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Versioned sets
// ─────────────────────────────────────────────────────────────────────────────

// VersionedSet is a Redis set with a freshness marker and a version counter.
type VersionedSet struct {
	Key     string
	Marker  string
	Version string
}

// Load returns the members and true while the marker is alive.
func (c *Cache) Load(ctx context.Context, s VersionedSet) ([]string, bool, error) {
	if s.Key == "" || s.Marker == "" {
		return nil, false, ErrCacheKeyEmpty
	}

	n, err := c.client.Exists(ctx, s.Marker).Result()
	if err != nil || n == 0 {
		return nil, false, err
	}
	members, err := c.client.SMembers(ctx, s.Key).Result()
	if err != nil {
		return nil, false, err
	}
	return members, true, nil
}

// CurrentVersion reads the version counter; a missing counter is 0.
func (c *Cache) CurrentVersion(ctx context.Context, s VersionedSet) (int64, error) {
	v, err := c.client.Get(ctx, s.Version).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Store replaces the members and refreshes the marker, unless the version
// moved past version since the caller read it. It reports whether the set
// was written.
func (c *Cache) Store(ctx context.Context, s VersionedSet, version int64, members []string, ttl time.Duration) (bool, error) {
	if s.Key == "" || s.Marker == "" || s.Version == "" {
		return false, ErrCacheKeyEmpty
	}

	errStale := errors.New("stale")
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, s.Version).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.Key)
			if len(members) > 0 {
				args := make([]any, len(members))
				for i, m := range members {
					args[i] = m
				}
				pipe.SAdd(ctx, s.Key, args...)
				pipe.Expire(ctx, s.Key, ttl)
			}
			pipe.Set(ctx, s.Marker, version, ttl)
			return nil
		})
		return err
	}, s.Version)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

// Bump increments the version and drops the cached members.
func (c *Cache) Bump(ctx context.Context, s VersionedSet) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.Version)
		pipe.Del(ctx, s.Marker, s.Key)
		return nil
	})
	return err
}
