package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// CachedIdentity is a verified token's extracted identity, stored keyed by a
// hash of the raw token so a repeat presentation skips signature verification.
type CachedIdentity struct {
	Subject string         `json:"subject"`
	Claims  map[string]any `json:"claims"`
}

type IdentityCache interface {
	Get(ctx context.Context, tokenHash string) (*CachedIdentity, error)
	Set(ctx context.Context, tokenHash string, value *CachedIdentity, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	opt.PoolSize = poolSize

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewIdentityCache(client *redis.Client) IdentityCache {
	return &redisCache{client: client}
}

func (r *redisCache) Get(ctx context.Context, tokenHash string) (*CachedIdentity, error) {
	val, err := r.client.Get(ctx, cacheKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var ident CachedIdentity
	if err := json.Unmarshal([]byte(val), &ident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached identity: %w", err)
	}

	return &ident, nil
}

func (r *redisCache) Set(ctx context.Context, tokenHash string, value *CachedIdentity, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cached identity: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}

func cacheKey(tokenHash string) string {
	return fmt.Sprintf("identity:token:%s", tokenHash)
}
