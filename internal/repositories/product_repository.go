package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils"
	"github.com/google/uuid"
)

// CatalogReader is the read-only view of the product catalog. A missing
// product is reported as sql.ErrNoRows.
type CatalogReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type catalogRepository struct {
	DB *sql.DB
}

func NewCatalogRepo(db *sql.DB) CatalogReader {
	return &catalogRepository{DB: db}
}

func (r *catalogRepository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, sku, price, stock_quantity, status, updated_at
		FROM products
		WHERE id = $1
	`

	product := &models.Product{}

	err := r.DB.QueryRowContext(dbCtx, query, id).Scan(&product.ID, &product.Name, &product.SKU, &product.Price, &product.StockQuantity, &product.Status, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("querying database: %w", err)
	}

	return product, nil
}
