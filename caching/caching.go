package caching

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type CachingService interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RedisCachingService struct {
	client *redis.Client
}

func NewRedisCachingService(client *redis.Client) *RedisCachingService {
	return &RedisCachingService{client: client}
}

func (c *RedisCachingService) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCachingService) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCachingService) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCachingService) IsReady(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCachingService) Name() string {
	return "RedisCache"
}

// NullCachingService is used when redis is not configured. Every read
// misses and writes are dropped.
type NullCachingService struct{}

func NewNullCachingService() *NullCachingService {
	return &NullCachingService{}
}

func (c *NullCachingService) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (c *NullCachingService) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (c *NullCachingService) Delete(ctx context.Context, key string) error {
	return nil
}
