package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/quotalink/internal/app/model"
)

// ErrCacheMiss signals that the code is not cached.
var ErrCacheMiss = errors.New("cache miss")

const cacheKeyPrefix = "quotalink:code:"

// MappingCache caches the immutable part of a mapping keyed by code.
// Clicks are never cached.
type MappingCache interface {
	Get(ctx context.Context, code string) (*model.Mapping, error)
	Set(ctx context.Context, m *model.Mapping) error
	Invalidate(ctx context.Context, code string) error
}

type cachedMapping struct {
	ID          int64  `json:"id"`
	OwnerID     string `json:"owner_id"`
	OriginalURL string `json:"original_url"`
}

type redisMappingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMappingCache returns a Redis-backed MappingCache.
func NewRedisMappingCache(rdb *redis.Client, ttl time.Duration) MappingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisMappingCache{rdb: rdb, ttl: ttl}
}

func (c *redisMappingCache) Get(ctx context.Context, code string) (*model.Mapping, error) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var entry cachedMapping
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &model.Mapping{
		ID:          entry.ID,
		OwnerID:     entry.OwnerID,
		OriginalURL: entry.OriginalURL,
		Code:        code,
	}, nil
}

func (c *redisMappingCache) Set(ctx context.Context, m *model.Mapping) error {
	raw, err := json.Marshal(cachedMapping{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		OriginalURL: m.OriginalURL,
	})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+m.Code, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *redisMappingCache) Invalidate(ctx context.Context, code string) error {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+code).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
