package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "dropship:"
	// Part lookups sit on the fulfillment path; a stalled Redis must not
	// hold a request open.
	redisOpTimeout = 2 * time.Second
)

type RedisProvider struct {
	client *redis.Client
}

func NewRedisProvider(connectionString string) (*RedisProvider, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisProvider{client: client}, nil
}

func (r *RedisProvider) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", redisErr("get", key, err)
	}
	return val, nil
}

func (r *RedisProvider) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return redisErr("set", key, err)
	}
	return nil
}

func (r *RedisProvider) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	stored, err := r.client.SetNX(ctx, redisKeyPrefix+key, value, ttl).Result()
	if err != nil {
		return false, redisErr("setnx", key, err)
	}
	return stored, nil
}

func (r *RedisProvider) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return redisErr("del", key, err)
	}
	return nil
}

func (r *RedisProvider) Close() error {
	return r.client.Close()
}

func redisErr(op, key string, err error) error {
	return fmt.Errorf("redis %s %s: %w", op, key, err)
}
