package service_test

import (
	"testing"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/repositories/mocks"
	service "github.com/aaravmahajanofficial/storefront-cart/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const cartExpiry = 720 * time.Hour

var testCartConfig = &config.Cart{
	TaxRate:               0.08,
	FreeShippingThreshold: 50,
	FlatShippingFee:       5.99,
	Expiry:                cartExpiry,
	LargeCartThreshold:    100,
	LowStockThreshold:     5,
	PriceDriftThreshold:   0.10,
	ValidationConcurrency: 4,
}

type fixture struct {
	repo    *mocks.FakeCartRepository
	catalog *mocks.FakeCatalog
	carts   service.CartService
	now     time.Time
}

func newFixture(t *testing.T, products ...models.Product) *fixture {
	t.Helper()

	f := &fixture{
		repo:    mocks.NewFakeCartRepository(),
		catalog: mocks.NewFakeCatalog(products...),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.carts = service.NewCartService(f.repo, f.catalog, service.NewTotalsCalculator(testCartConfig), cartExpiry,
		service.WithClock(func() time.Time { return f.now }))

	return f
}

func product(name, price string, stock int) models.Product {
	return models.Product{
		ID:            uuid.New(),
		Name:          name,
		SKU:           "SKU-" + name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Status:        models.ProductStatusActive,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), append([]any{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

// assertCartInvariants checks the totals identity and the one-row-per-product
// rule on a materialized cart.
func assertCartInvariants(t *testing.T, cart *models.Cart) {
	t.Helper()

	sum := decimal.Zero
	seen := make(map[uuid.UUID]bool)

	for _, item := range cart.Items {
		assert.GreaterOrEqual(t, item.Quantity, 1, "item quantity must stay positive")
		assert.True(t, item.Total.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))), "line total must be unit price times quantity")
		assert.False(t, seen[item.ProductID], "product %s appears twice", item.ProductID)
		seen[item.ProductID] = true
		sum = sum.Add(item.Total)
	}

	assert.True(t, sum.Equal(cart.Subtotal), "subtotal %s != sum of lines %s", cart.Subtotal, sum)
	expectedTotal := cart.Subtotal.Add(cart.TaxAmount).Add(cart.ShippingAmount).Sub(cart.DiscountAmount)
	assert.True(t, expectedTotal.Equal(cart.Total), "total %s != %s", cart.Total, expectedTotal)
}
