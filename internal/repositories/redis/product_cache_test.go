package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/closetline/api/internal/domain"
)

type stubProductRepository struct {
	products  map[string]domain.Product
	findCalls int
	listCalls int
}

func (s *stubProductRepository) Insert(_ context.Context, product domain.Product) error {
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepository) FindByID(_ context.Context, id string) (domain.Product, error) {
	s.findCalls++
	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, errNotFound
	}
	return product, nil
}

func (s *stubProductRepository) List(context.Context) ([]domain.Product, error) {
	s.listCalls++
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProductRepository) Delete(_ context.Context, id string) error {
	delete(s.products, id)
	return nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}

func setupProductCache(t *testing.T) (*ProductCache, *stubProductRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubProductRepository{products: map[string]domain.Product{
		"prd_1": {ID: "prd_1", Name: "Linen Shirt", Price: 1200, Sizes: []string{"S", "M"}},
	}}
	cache, err := NewProductCache(repo, client, WithTTL(time.Minute))
	require.NoError(t, err)
	return cache, repo, mr
}

func TestProductCacheFindByIDReadsThrough(t *testing.T) {
	cache, repo, mr := setupProductCache(t)
	ctx := context.Background()

	first, err := cache.FindByID(ctx, "prd_1")
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", first.Name)
	assert.True(t, mr.Exists("product:prd_1"))

	second, err := cache.FindByID(ctx, "prd_1")
	require.NoError(t, err)
	assert.Equal(t, first.Sizes, second.Sizes)
	assert.Equal(t, 1, repo.findCalls)
}

func TestProductCacheMissPropagatesRepositoryError(t *testing.T) {
	cache, _, mr := setupProductCache(t)

	_, err := cache.FindByID(context.Background(), "prd_missing")
	assert.ErrorIs(t, err, errNotFound)
	assert.False(t, mr.Exists("product:prd_missing"))
}

func TestProductCacheDeleteInvalidates(t *testing.T) {
	cache, repo, mr := setupProductCache(t)
	ctx := context.Background()

	_, err := cache.FindByID(ctx, "prd_1")
	require.NoError(t, err)
	_, err = cache.List(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(productListKey))

	require.NoError(t, cache.Delete(ctx, "prd_1"))
	assert.False(t, mr.Exists("product:prd_1"))
	assert.False(t, mr.Exists(productListKey))

	_, err = cache.FindByID(ctx, "prd_1")
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, 2, repo.findCalls)
}

func TestProductCacheInsertDropsListing(t *testing.T) {
	cache, repo, mr := setupProductCache(t)
	ctx := context.Background()

	_, err := cache.List(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Insert(ctx, domain.Product{ID: "prd_2", Name: "Wool Coat"}))
	assert.False(t, mr.Exists(productListKey))

	products, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestProductCacheFallsBackWhenRedisDown(t *testing.T) {
	cache, repo, mr := setupProductCache(t)
	mr.Close()

	product, err := cache.FindByID(context.Background(), "prd_1")
	require.NoError(t, err)
	assert.Equal(t, "prd_1", product.ID)
	assert.Equal(t, 1, repo.findCalls)
	assert.Error(t, cache.Ping(context.Background()))
}

func TestProductCacheCorruptEntryIsEvicted(t *testing.T) {
	cache, repo, mr := setupProductCache(t)
	require.NoError(t, mr.Set("product:prd_1", "{not json"))

	product, err := cache.FindByID(context.Background(), "prd_1")
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", product.Name)
	assert.Equal(t, 1, repo.findCalls)
}
