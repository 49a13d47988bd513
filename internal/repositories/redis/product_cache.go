package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/repositories"
)

const (
	defaultProductTTL = 10 * time.Minute
	productListKey    = "products:all"
)

// ProductCache is a read-through cache in front of a ProductRepository. Cache failures are
// logged and never fail the call; the backing repository stays the source of truth.
type ProductCache struct {
	next    repositories.ProductRepository
	client  redis.UniversalClient
	baseTTL time.Duration
	logger  *zap.Logger
}

var _ repositories.ProductRepository = (*ProductCache)(nil)

// ProductCacheOption customises the cache.
type ProductCacheOption func(*ProductCache)

// WithTTL sets the base entry lifetime. Up to a minute of jitter is added per write.
func WithTTL(ttl time.Duration) ProductCacheOption {
	return func(c *ProductCache) {
		if ttl > 0 {
			c.baseTTL = ttl
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *zap.Logger) ProductCacheOption {
	return func(c *ProductCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewProductCache wraps next with a Redis cache.
func NewProductCache(next repositories.ProductRepository, client redis.UniversalClient, opts ...ProductCacheOption) (*ProductCache, error) {
	if next == nil {
		return nil, errors.New("product cache: backing repository is required")
	}
	if client == nil {
		return nil, errors.New("product cache: redis client is required")
	}
	cache := &ProductCache{
		next:    next,
		client:  client,
		baseTTL: defaultProductTTL,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

// Insert writes through and drops the cached listing.
func (c *ProductCache) Insert(ctx context.Context, product domain.Product) error {
	if err := c.next.Insert(ctx, product); err != nil {
		return err
	}
	c.invalidate(ctx, productListKey)
	return nil
}

// FindByID serves from Redis when possible.
func (c *ProductCache) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	if c.load(ctx, productKey(productID), &product) {
		return product, nil
	}
	product, err := c.next.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	c.store(ctx, productKey(productID), product)
	return product, nil
}

// List serves the catalog listing from Redis when possible.
func (c *ProductCache) List(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if c.load(ctx, productListKey, &products) {
		return products, nil
	}
	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, productListKey, products)
	return products, nil
}

// Delete removes the product and evicts it together with the listing.
func (c *ProductCache) Delete(ctx context.Context, productID string) error {
	if err := c.next.Delete(ctx, productID); err != nil {
		return err
	}
	c.invalidate(ctx, productKey(productID), productListKey)
	return nil
}

// Ping checks Redis connectivity for readiness probes.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ProductCache) load(ctx context.Context, key string, target any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("product cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		c.logger.Warn("product cache entry corrupt", zap.String("key", key), zap.Error(err))
		c.invalidate(ctx, key)
		return false
	}
	return true
}

func (c *ProductCache) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("product cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	ttl := c.baseTTL + time.Duration(rand.Int63n(int64(time.Minute)))
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("product cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *ProductCache) invalidate(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("product cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}
