package completion

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the account store uses.
type RedisClient interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// OpenRedis connects to the account store. An empty URL disables it and
// returns nil.
func OpenRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisKey is the Redis set holding a user's completed keys for a map.
func RedisKey(user, mapID string) string {
	return "wikimap:completed:" + user + ":" + mapID
}

// RedisStore is the account store: one Redis set per user and map.
type RedisStore struct {
	rc  RedisClient
	key string
}

// NewRedisStore returns the account store for user and mapID.
func NewRedisStore(rc RedisClient, user, mapID string) *RedisStore {
	return &RedisStore{rc: rc, key: RedisKey(user, mapID)}
}

// Load returns the stored keys, sorted.
func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	keys, err := s.rc.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.key, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Save replaces the stored keys.
func (s *RedisStore) Save(ctx context.Context, keys []string) error {
	if err := s.rc.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing %s: %w", s.key, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.rc.SAdd(ctx, s.key, members(keys)...).Err(); err != nil {
		return fmt.Errorf("saving %s: %w", s.key, err)
	}
	return nil
}

// Add stores key.
func (s *RedisStore) Add(ctx context.Context, key string) error {
	return s.rc.SAdd(ctx, s.key, key).Err()
}

// Remove drops key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.rc.SRem(ctx, s.key, key).Err()
}

func members(keys []string) []interface{} {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
