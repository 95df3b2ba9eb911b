// Package cache backs part lookups and request idempotency keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("key not found")

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetIfAbsent stores value only when key is missing and reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
	MemorySize            int
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider(cfg.MemorySize)
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// PartKey keys a resolution by the exact sku. Part lookups are case-sensitive,
// so the key must be too.
func PartKey(sku string) string {
	return "part:" + strings.TrimSpace(sku)
}

func PartDescriptionKey(partNumber string) string {
	return "part_description:" + strings.TrimSpace(partNumber)
}

func IdempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}
