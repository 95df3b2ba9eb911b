package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gitshopapp/dropship/internal/cache"
)

const cacheScope = "fulfill"

// CacheStore keeps records in the shared cache provider, so keys survive
// restarts only when the provider is Redis.
type CacheStore struct {
	cache   cache.Provider
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewCacheStore(provider cache.Provider, ttl time.Duration) *CacheStore {
	return &CacheStore{cache: provider, ttl: ttl, nowFunc: time.Now}
}

func (s *CacheStore) Begin(ctx context.Context, key string) (*Record, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	now := s.nowFunc().UTC()
	rec := Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	created, err := s.cache.SetIfAbsent(ctx, cache.IdempotencyKey(cacheScope, key), string(payload), s.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim key: %w", err)
	}
	if created {
		return &rec, true, nil
	}

	existing, err := s.get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *CacheStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:            key,
		Status:         StatusDone,
		ResponseStatus: status,
		ResponseBody:   string(body),
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttl).Unix(),
	}
	if existing, err := s.get(ctx, key); err == nil && existing != nil {
		rec.CreatedAt = existing.CreatedAt
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.cache.Set(ctx, cache.IdempotencyKey(cacheScope, key), string(payload), s.ttl); err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}

func (s *CacheStore) Release(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, cache.IdempotencyKey(cacheScope, key)); err != nil {
		return fmt.Errorf("release key: %w", err)
	}
	return nil
}

func (s *CacheStore) get(ctx context.Context, key string) (*Record, error) {
	value, err := s.cache.Get(ctx, cache.IdempotencyKey(cacheScope, key))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
