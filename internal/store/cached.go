package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyagen/channelvault/internal/cache"
	"github.com/voyagen/channelvault/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlChannelExists = 10 * time.Minute
	ttlRun           = 30 * time.Minute
	ttlRuns          = 1 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer.
// Only positive existence answers are cached: a channel that exists keeps
// existing for the purpose of an import, while a miss must always reach the
// database. Runs never change once written, so single runs cache for long.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger *slog.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{inner: inner, cache: c, logger: logger}
}

// --- channels ---

func (c *CachedStore) ChannelExists(ctx context.Context, name, streamURL string) (bool, error) {
	key := channelKey(name, streamURL)
	if v, err := cache.Get[bool](ctx, c.cache, key); err == nil && v {
		return true, nil
	}
	exists, err := c.inner.ChannelExists(ctx, name, streamURL)
	if err != nil {
		return false, err
	}
	if exists {
		c.set(ctx, key, true, ttlChannelExists)
	}
	return exists, nil
}

func (c *CachedStore) InsertChannels(ctx context.Context, recs []models.ChannelRecord) ([]bool, error) {
	inserted, err := c.inner.InsertChannels(ctx, recs)
	if err != nil {
		return nil, err
	}
	// Conflicting rows exist as well, so every record of a committed batch is cached.
	for i := range recs {
		c.set(ctx, channelKey(recs[i].Name, recs[i].StreamURL), true, ttlChannelExists)
	}
	return inserted, nil
}

// --- runs ---

func (c *CachedStore) CreateRun(ctx context.Context, run *models.ImportRun) (int64, error) {
	id, err := c.inner.CreateRun(ctx, run)
	if err != nil {
		return 0, err
	}
	c.invalidatePattern(ctx, "runs:*")
	return id, nil
}

func (c *CachedStore) GetRun(ctx context.Context, id int64) (*models.ImportRun, error) {
	key := fmt.Sprintf("run:%d", id)
	if v, err := cache.Get[models.ImportRun](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	run, err := c.inner.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, run, ttlRun)
	return run, nil
}

// runListResult is a helper type to cache the ListRuns tuple.
type runListResult struct {
	Runs  []models.ImportRun `json:"runs"`
	Total int                `json:"total"`
}

func (c *CachedStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.ImportRun, int, error) {
	filter = filter.normalized()
	key := "runs:" + runFilterHash(filter)
	if v, err := cache.Get[runListResult](ctx, c.cache, key); err == nil {
		return v.Runs, v.Total, nil
	}
	runs, total, err := c.inner.ListRuns(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.set(ctx, key, runListResult{Runs: runs, Total: total}, ttlRuns)
	return runs, total, nil
}

// --- helpers ---

// set stores v, logging failures; the cache is never required for correctness.
func (c *CachedStore) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache del pattern failed", "pattern", p, "error", err)
		}
	}
}

// channelKey hashes the dedup key so arbitrary names and URLs fit in a key.
func channelKey(name, streamURL string) string {
	h := sha256.Sum256([]byte(name + "\x00" + streamURL))
	return fmt.Sprintf("channel:exists:%x", h[:16])
}

func runFilterHash(f RunFilter) string {
	createdBy := "all"
	if f.CreatedBy != nil {
		createdBy = fmt.Sprintf("%d", *f.CreatedBy)
	}
	raw := fmt.Sprintf("%s|%d|%d", createdBy, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
