package cache_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/cache"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/repositories/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCache keeps JSON payloads so hits go through the same decoding as
// the redis implementation.
type memoryCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGet != nil {
		return false, m.failGet
	}

	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}

	return true, json.Unmarshal(raw, value)
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSet != nil {
		return m.failSet
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.ttls[key] = ttl

	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)

	return nil
}

func TestCachedCatalog(t *testing.T) {
	ctx := t.Context()

	mug := models.Product{
		ID:            uuid.New(),
		Name:          "mug",
		SKU:           "SKU-MUG",
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: 3,
		Status:        models.ProductStatusActive,
	}

	t.Run("Second read is served from cache", func(t *testing.T) {
		source := mocks.NewFakeCatalog(mug)
		store := newMemoryCache()
		catalog := cache.NewCachedCatalog(source, store, 30*time.Second)

		first, err := catalog.GetProduct(ctx, mug.ID)
		require.NoError(t, err)
		second, err := catalog.GetProduct(ctx, mug.ID)
		require.NoError(t, err)

		assert.Equal(t, 1, source.Reads())
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, second.Price.Equal(mug.Price))
		assert.Equal(t, 30*time.Second, store.ttls[cache.Key(cache.ProductKeyPrefix, mug.ID.String())])
	})

	t.Run("Not found is not cached", func(t *testing.T) {
		source := mocks.NewFakeCatalog()
		catalog := cache.NewCachedCatalog(source, newMemoryCache(), time.Minute)

		_, err := catalog.GetProduct(ctx, mug.ID)
		require.ErrorIs(t, err, sql.ErrNoRows)

		source.Put(mug)
		got, err := catalog.GetProduct(ctx, mug.ID)
		require.NoError(t, err)
		assert.Equal(t, "mug", got.Name)
	})

	t.Run("Cache outage falls through to the source", func(t *testing.T) {
		source := mocks.NewFakeCatalog(mug)
		store := newMemoryCache()
		store.failGet = errors.New("redis down")
		store.failSet = errors.New("redis down")
		catalog := cache.NewCachedCatalog(source, store, time.Minute)

		for range 2 {
			got, err := catalog.GetProduct(ctx, mug.ID)
			require.NoError(t, err)
			assert.Equal(t, mug.ID, got.ID)
		}

		assert.Equal(t, 2, source.Reads())
	})
}
