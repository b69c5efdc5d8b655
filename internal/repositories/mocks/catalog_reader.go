package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockCatalogReader struct {
	mock.Mock
}

func NewMockCatalogReader() *MockCatalogReader {
	return &MockCatalogReader{}
}

func (m *MockCatalogReader) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)

	product, _ := args.Get(0).(*models.Product)

	return product, args.Error(1)
}

// FakeCatalog is a map-backed CatalogReader for scenario tests.
type FakeCatalog struct {
	mu       sync.RWMutex
	products map[uuid.UUID]models.Product
	reads    int
}

func NewFakeCatalog(products ...models.Product) *FakeCatalog {
	c := &FakeCatalog{products: make(map[uuid.UUID]models.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}

	return c
}

func (c *FakeCatalog) Put(product models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.products[product.ID] = product
}

func (c *FakeCatalog) Delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.products, id)
}

func (c *FakeCatalog) Reads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.reads
}

func (c *FakeCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reads++

	product, ok := c.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}

	return &product, nil
}
