package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	appErrors "github.com/noah-isme/pg-defence-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached list pages for resource.
func (s *CacheService) Invalidate(ctx context.Context, resource string) {
	if !s.Enabled() {
		return
	}
	pattern := fmt.Sprintf("list:%s:*", resource)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// ListKey builds the cache key for a list page: list:<resource>:<sha1(filter)>.
func ListKey(resource string, filter interface{}) string {
	raw, err := json.Marshal(filter)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", filter))
	}
	sum := sha1.Sum(raw)
	return fmt.Sprintf("list:%s:%s", resource, hex.EncodeToString(sum[:]))
}

type cachedPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// cachedList serves a list page from cache, loading and storing it on a miss. Cache
// failures fall through to load.
func cachedList[T any](ctx context.Context, cache *CacheService, resource string, filter interface{}, load func() ([]T, int, error)) ([]T, int, error) {
	key := ListKey(resource, filter)
	var page cachedPage[T]
	if hit, _ := cache.Get(ctx, key, &page); hit {
		return page.Items, page.Total, nil
	}
	items, total, err := load()
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []T{}
	}
	_ = cache.Set(ctx, key, cachedPage[T]{Items: items, Total: total}, 0)
	return items, total, nil
}

func paginate(page, size, total int) *models.Pagination {
	return models.NewPagination(page, size, total)
}
