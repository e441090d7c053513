package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	ProductCachePrefix     = "product:detail:"
	ProductListCachePrefix = "products:v:"
	CacheVersionKey        = "products:version"

	DefaultCacheTTL = 5 * time.Minute
)

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products []models.Product `json:"products"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// ProductCache caches catalog reads in Redis. List entries are keyed by a
// version counter so one INCR invalidates every cached page. Concurrent misses
// for the same key share one load. A nil redis client disables caching.
type ProductCache struct {
	redis  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

func NewProductCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductCache{redis: client, ttl: ttl, logger: logger}
}

// GetList returns the cached page for filter or loads it.
func (pc *ProductCache) GetList(ctx context.Context, filter repository.ProductFilter, load func() (*ProductPage, error)) (*ProductPage, error) {
	if pc.redis == nil {
		return load()
	}

	version, err := pc.version(ctx)
	if err != nil {
		pc.logger.Warn("Product cache version unavailable", zap.Error(err))
		return load()
	}
	key := listKey(version, filter)

	var page ProductPage
	if pc.get(ctx, key, &page) {
		return &page, nil
	}

	v, err, _ := pc.group.Do(key, func() (interface{}, error) {
		p, err := load()
		if err != nil {
			return nil, err
		}
		pc.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProductPage), nil
}

// GetProduct returns the cached product or loads it.
func (pc *ProductCache) GetProduct(ctx context.Context, id uint, load func() (*models.Product, error)) (*models.Product, error) {
	if pc.redis == nil {
		return load()
	}

	key := ProductCachePrefix + strconv.FormatUint(uint64(id), 10)
	var product models.Product
	if pc.get(ctx, key, &product) {
		return &product, nil
	}

	v, err, _ := pc.group.Do(key, func() (interface{}, error) {
		p, err := load()
		if err != nil {
			return nil, err
		}
		pc.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Product), nil
}

// Invalidate bumps the list version and drops the product's detail entry.
func (pc *ProductCache) Invalidate(ctx context.Context, id uint) {
	if pc.redis == nil {
		return
	}
	newVersion, err := pc.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		pc.logger.Error("Failed to invalidate product list cache", zap.Error(err), zap.Uint("product_id", id))
	} else {
		pc.logger.Debug("Product cache invalidated", zap.Int64("new_version", newVersion))
	}
	if id == 0 {
		return
	}
	if err := pc.redis.Del(ctx, ProductCachePrefix+strconv.FormatUint(uint64(id), 10)).Err(); err != nil {
		pc.logger.Warn("Failed to delete product cache", zap.Error(err), zap.Uint("product_id", id))
	}
}

func (pc *ProductCache) version(ctx context.Context) (int64, error) {
	ver, err := pc.redis.Get(ctx, CacheVersionKey).Int64()
	if err == nil {
		return ver, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}
	// SetNX so a concurrent Invalidate is never overwritten.
	if err := pc.redis.SetNX(ctx, CacheVersionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	return pc.redis.Get(ctx, CacheVersionKey).Int64()
}

func (pc *ProductCache) get(ctx context.Context, key string, dst interface{}) bool {
	data, err := pc.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			pc.logger.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		pc.logger.Warn("Failed to unmarshal cached entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (pc *ProductCache) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		pc.logger.Warn("Failed to marshal entry for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := pc.redis.Set(ctx, key, data, pc.ttl).Err(); err != nil {
		pc.logger.Warn("Failed to write product cache", zap.String("key", key), zap.Error(err))
	}
}

func listKey(version int64, f repository.ProductFilter) string {
	return fmt.Sprintf("%s%d:p%d:l%d:c=%s:q=%s", ProductListCachePrefix, version, f.Page, f.Limit, f.Category, f.Query)
}
