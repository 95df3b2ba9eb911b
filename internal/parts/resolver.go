// Package parts maps storefront SKUs to vendor part numbers and descriptions.
package parts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/dropship/internal/cache"
	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/models"
)

const (
	defaultDelimiters = "-_/"
	defaultCacheTTL   = 10 * time.Minute
	missMarker        = "-"
)

type Store interface {
	GetMapping(ctx context.Context, sku string) (*models.PartMapping, error)
	GetDescription(ctx context.Context, partNumber string) (string, error)
}

type Resolution struct {
	PartNumber string `json:"part_number"`
	PartType   string `json:"part_type"`
	MatchedSKU string `json:"matched_sku"`
}

type Resolver struct {
	store      Store
	cache      cache.Provider
	cacheTTL   time.Duration
	delimiters string
	logger     *slog.Logger
}

type Option func(*Resolver)

func WithCache(provider cache.Provider, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = provider
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

func WithDelimiters(delimiters string) Option {
	return func(r *Resolver) {
		if delimiters != "" {
			r.delimiters = delimiters
		}
	}
}

func NewResolver(store Store, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		cacheTTL:   defaultCacheTTL,
		delimiters: defaultDelimiters,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks the sku up directly, then retries with the part after its last
// delimiter. It returns nil when neither lookup matches.
func (r *Resolver) Resolve(ctx context.Context, sku string) (*Resolution, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, nil
	}

	if cached, ok := r.cached(ctx, cache.PartKey(sku)); ok {
		if cached == missMarker {
			return nil, nil
		}
		var resolution Resolution
		if err := json.Unmarshal([]byte(cached), &resolution); err == nil {
			return &resolution, nil
		}
	}

	candidates := []string{sku}
	if i := strings.LastIndexAny(sku, r.delimiters); i >= 0 && i < len(sku)-1 {
		candidates = append(candidates, sku[i+1:])
	}

	for _, candidate := range candidates {
		mapping, err := r.store.GetMapping(ctx, candidate)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up part mapping for %s: %w", candidate, err)
		}
		resolution := &Resolution{
			PartNumber: mapping.PartNumber,
			PartType:   mapping.PartType,
			MatchedSKU: candidate,
		}
		if encoded, err := json.Marshal(resolution); err == nil {
			r.remember(ctx, cache.PartKey(sku), string(encoded))
		}
		return resolution, nil
	}

	r.remember(ctx, cache.PartKey(sku), missMarker)
	return nil, nil
}

// Describe returns the supplier-facing description for a resolved part, or
// storedName when there is no resolution or no override.
func (r *Resolver) Describe(ctx context.Context, resolution *Resolution, storedName string) (string, error) {
	if resolution == nil || resolution.PartNumber == "" {
		return storedName, nil
	}

	key := cache.PartDescriptionKey(resolution.PartNumber)
	if cached, ok := r.cached(ctx, key); ok {
		if cached == missMarker {
			return storedName, nil
		}
		return cached, nil
	}

	description, err := r.store.GetDescription(ctx, resolution.PartNumber)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && strings.TrimSpace(description) == "") {
		r.remember(ctx, key, missMarker)
		return storedName, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up description for %s: %w", resolution.PartNumber, err)
	}
	r.remember(ctx, key, description)
	return description, nil
}

func (r *Resolver) cached(ctx context.Context, key string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	value, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logging.FromContext(ctx, r.logger).Warn("part cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (r *Resolver) remember(ctx context.Context, key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, r.cacheTTL); err != nil {
		logging.FromContext(ctx, r.logger).Warn("part cache write failed", "key", key, "error", err)
	}
}
