// Package cache provides a read-through cache for workspace configuration.
// Configs are read far more often than they change, and staleness up to the
// TTL is acceptable; every write invalidates the cached entry explicitly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache miss")

// Backend is the minimal key-value surface the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisBackend adapts a go-redis client to the Backend interface.
type RedisBackend struct {
	Client *redis.Client
}

func (b RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (b RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.Client.Set(ctx, key, value, ttl).Err()
}

func (b RedisBackend) Del(ctx context.Context, key string) error {
	return b.Client.Del(ctx, key).Err()
}

// WorkspaceConfigCache fronts the workspace-config repository. Backend
// failures degrade to direct repository reads; the cache is never a
// correctness dependency.
type WorkspaceConfigCache struct {
	repo    repository.WorkspaceConfigRepository
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
}

// NewWorkspaceConfigCache constructs the cache.
func NewWorkspaceConfigCache(repo repository.WorkspaceConfigRepository, backend Backend, ttl time.Duration, logger *zap.Logger) *WorkspaceConfigCache {
	return &WorkspaceConfigCache{repo: repo, backend: backend, ttl: ttl, logger: logger}
}

func cacheKey(workspaceID string) string {
	return "workspace_config:" + workspaceID
}

// Get returns the workspace config, serving from cache when fresh.
// repository.ErrNotFound propagates for absent workspaces.
func (c *WorkspaceConfigCache) Get(ctx context.Context, workspaceID string) (*domain.WorkspaceConfig, error) {
	if c.backend != nil {
		raw, err := c.backend.Get(ctx, cacheKey(workspaceID))
		if err == nil {
			var cfg domain.WorkspaceConfig
			if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr == nil {
				return &cfg, nil
			}
			c.logger.Warn("corrupt cached workspace config", zap.String("workspace_id", workspaceID))
		} else if !errors.Is(err, ErrMiss) {
			c.logger.Warn("workspace config cache read failed", zap.Error(err))
		}
	}

	cfg, err := c.repo.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cfg)
	return cfg, nil
}

// Upsert writes the config and invalidates the cached entry before
// returning, so the next read observes the new value.
func (c *WorkspaceConfigCache) Upsert(ctx context.Context, cfg *domain.WorkspaceConfig) error {
	if err := c.repo.Upsert(ctx, cfg); err != nil {
		return err
	}
	c.Invalidate(ctx, cfg.WorkspaceID)
	return nil
}

// Invalidate drops the cached entry for a workspace.
func (c *WorkspaceConfigCache) Invalidate(ctx context.Context, workspaceID string) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Del(ctx, cacheKey(workspaceID)); err != nil {
		c.logger.Warn("workspace config cache invalidation failed",
			zap.String("workspace_id", workspaceID), zap.Error(err))
	}
}

// List bypasses the cache; it is only used by the periodic sweep and the
// startup re-arm pass.
func (c *WorkspaceConfigCache) List(ctx context.Context) ([]domain.WorkspaceConfig, error) {
	return c.repo.List(ctx)
}

func (c *WorkspaceConfigCache) store(ctx context.Context, cfg *domain.WorkspaceConfig) {
	if c.backend == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, cacheKey(cfg.WorkspaceID), string(raw), c.ttl); err != nil {
		c.logger.Warn("workspace config cache write failed", zap.Error(err))
	}
}
