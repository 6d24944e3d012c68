package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbuslab/crewbase/internal/common/config"
	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newRedisCache(cfg *config.CacheConfig) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &redisCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    normalizeTTL(cfg.TTL),
	}, nil
}

func (c *redisCache) GetPermissions(ctx context.Context, userID uint) ([]string, error) {
	data, err := c.client.Get(ctx, permissionKey(c.prefix, userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *redisCache) SetPermissions(ctx context.Context, userID uint, names []string) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permissionKey(c.prefix, userID), data, c.ttl).Err()
}

func (c *redisCache) Invalidate(ctx context.Context, userID uint) error {
	return c.client.Del(ctx, permissionKey(c.prefix, userID)).Err()
}

func (c *redisCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, permissionKeyPattern(c.prefix), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
