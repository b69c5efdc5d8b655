package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/google/uuid"
)

type cachedCatalog struct {
	next  repository.CatalogReader
	cache Cache
	ttl   time.Duration
}

// NewCachedCatalog fronts a CatalogReader with a short-lived read-through
// cache. Cache failures degrade to a direct read. Mutations must keep using
// the uncached reader so stock and price checks see the database.
func NewCachedCatalog(next repository.CatalogReader, c Cache, ttl time.Duration) repository.CatalogReader {
	return &cachedCatalog{next: next, cache: c, ttl: ttl}
}

func (c *cachedCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {

	logger := middleware.LoggerFromContext(ctx)
	key := Key(ProductKeyPrefix, id.String())

	var product models.Product

	found, err := c.cache.Get(ctx, key, &product)
	if err != nil {
		logger.Warn("Catalog cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if found {
		return &product, nil
	}

	fresh, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, fresh, c.ttl); err != nil {
		logger.Warn("Catalog cache write failed", slog.String("key", key), slog.Any("error", err))
	}

	return fresh, nil
}
