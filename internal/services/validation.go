package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	appErrors "github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/aaravmahajanofficial/storefront-cart/internal/tracing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ValidationService interface {
	// Validate checks cart against the catalog. It never writes.
	Validate(ctx context.Context, cart *models.Cart) (*models.ValidationResult, error)
	// ValidateCart loads the owner's cart, expired or not, and validates it.
	ValidateCart(ctx context.Context, owner models.OwnerKey) (*models.ValidationResult, error)
}

type ValidationRules struct {
	LowStockThreshold   int
	LargeCartThreshold  int
	PriceDriftThreshold decimal.Decimal
	Concurrency         int
}

func ValidationRulesFromConfig(cfg *config.Cart) ValidationRules {
	return ValidationRules{
		LowStockThreshold:   cfg.LowStockThreshold,
		LargeCartThreshold:  cfg.LargeCartThreshold,
		PriceDriftThreshold: decimal.NewFromFloat(cfg.PriceDriftThreshold),
		Concurrency:         cfg.ValidationConcurrency,
	}
}

type validationService struct {
	repo    repository.CartRepository
	catalog repository.CatalogReader
	rules   ValidationRules
	now     func() time.Time
}

// NewValidationService reads through catalog, which may be cached. A nil now
// means time.Now.
func NewValidationService(repo repository.CartRepository, catalog repository.CatalogReader, rules ValidationRules, now func() time.Time) ValidationService {
	if now == nil {
		now = time.Now
	}

	s := &validationService{
		repo:    repo,
		catalog: catalog,
		rules:   rules,
		now:     now,
	}

	if s.rules.Concurrency < 1 {
		s.rules.Concurrency = 1
	}

	return s
}

func (s *validationService) ValidateCart(ctx context.Context, owner models.OwnerKey) (*models.ValidationResult, error) {

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetCartByOwner(ctx, owner, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cart = models.EmptyCart(owner)
		} else {
			return nil, appErrors.DatabaseError("Failed to fetch cart").WithError(err)
		}
	}

	return s.Validate(ctx, cart)
}

func (s *validationService) Validate(ctx context.Context, cart *models.Cart) (*models.ValidationResult, error) {

	ctx, span := tracing.Start(ctx, "ValidationService.Validate", attribute.Int("cart.items", len(cart.Items)))
	defer span.End()

	logger := middleware.LoggerFromContext(ctx)

	products, err := s.lookupProducts(ctx, cart.Items)
	if err != nil {
		logger.Error("Catalog lookup failed during validation", slog.String("cartId", cart.ID.String()), slog.String("error", err.Error()))
		return nil, appErrors.DatabaseError("Failed to validate cart").WithError(err)
	}

	result := &models.ValidationResult{
		Errors:    []models.ValidationIssue{},
		Warnings:  []models.ValidationIssue{},
		CheckedAt: s.now(),
	}

	if cart.IsExpired(result.CheckedAt) {
		result.Errors = append(result.Errors, models.ValidationIssue{
			Kind:            models.IssueCartExpired,
			Message:         "This cart has expired",
			SuggestedAction: models.ActionStartNewCart,
		})
	}

	itemCount := 0

	for i, item := range cart.Items {
		itemCount += item.Quantity
		s.checkItem(result, item, products[i])
	}

	if cart.Total.IsNegative() {
		result.Errors = append(result.Errors, models.ValidationIssue{
			Kind:    models.IssueNegativeTotal,
			Message: fmt.Sprintf("Cart total %s is negative", cart.Total.StringFixed(2)),
		})
	}

	if s.rules.LargeCartThreshold > 0 && itemCount > s.rules.LargeCartThreshold {
		result.Warnings = append(result.Warnings, models.ValidationIssue{
			Kind:    models.IssueLargeCart,
			Message: fmt.Sprintf("Cart holds %d items, more than the usual maximum of %d", itemCount, s.rules.LargeCartThreshold),
		})
	}

	result.IsValid = len(result.Errors) == 0

	for _, issue := range result.Errors {
		metrics.RecordValidationIssue(string(issue.Kind), "error")
	}
	for _, issue := range result.Warnings {
		metrics.RecordValidationIssue(string(issue.Kind), "warning")
	}

	logger.Debug("Cart validated", slog.String("cartId", cart.ID.String()), slog.Bool("isValid", result.IsValid),
		slog.Int("errors", len(result.Errors)), slog.Int("warnings", len(result.Warnings)))

	return result, nil
}

// lookupProducts reads every item's product with bounded parallelism. The
// result is indexed like items; a nil entry means the product does not exist.
func (s *validationService) lookupProducts(ctx context.Context, items []models.CartItem) ([]*models.Product, error) {

	products := make([]*models.Product, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.rules.Concurrency)

	for i, item := range items {
		g.Go(func() error {
			product, err := s.catalog.GetProduct(gctx, item.ProductID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			products[i] = product
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *validationService) checkItem(result *models.ValidationResult, item models.CartItem, product *models.Product) {

	productID := item.ProductID
	itemID := item.ID

	issue := func(kind models.IssueKind, message string, action models.SuggestedAction) models.ValidationIssue {
		return models.ValidationIssue{
			Kind:            kind,
			ProductID:       &productID,
			CartItemID:      &itemID,
			Message:         message,
			SuggestedAction: action,
		}
	}

	if product == nil {
		result.Errors = append(result.Errors, issue(models.IssueProductNotFound, "This product is no longer in the catalog", models.ActionRemoveFromCart))
		return
	}

	if !product.IsActive() {
		result.Errors = append(result.Errors, issue(models.IssueProductInactive, fmt.Sprintf("%s is no longer available", product.Name), models.ActionRemoveFromCart))
		return
	}

	stock := product.StockQuantity

	switch {
	case stock == 0:
		result.Errors = append(result.Errors, issue(models.IssueOutOfStock, fmt.Sprintf("%s is out of stock", product.Name), models.ActionRemoveFromCart))
	case stock < item.Quantity:
		found := issue(models.IssueInsufficientStock, fmt.Sprintf("Only %d of %s available", stock, product.Name), models.ActionReduceToStock)
		found.AvailableStock = &stock
		result.Errors = append(result.Errors, found)
	}

	if stock > 0 && stock <= s.rules.LowStockThreshold {
		found := issue(models.IssueLowStock, fmt.Sprintf("Only %d of %s left", stock, product.Name), models.ActionNone)
		found.AvailableStock = &stock
		result.Warnings = append(result.Warnings, found)
	}

	if s.priceDrifted(item.UnitPrice, product.Price) {
		oldPrice, newPrice := item.UnitPrice, product.Price
		found := issue(models.IssuePriceChanged,
			fmt.Sprintf("Price of %s changed from %s to %s", product.Name, oldPrice.StringFixed(2), newPrice.StringFixed(2)),
			models.ActionReviewPrice)
		found.OldPrice = &oldPrice
		found.NewPrice = &newPrice
		result.Warnings = append(result.Warnings, found)
	}
}

// priceDrifted reports whether current differs from the snapshot by more than
// the drift threshold, relative to the snapshot.
func (s *validationService) priceDrifted(snapshot, current decimal.Decimal) bool {
	if snapshot.IsZero() {
		return !current.IsZero()
	}

	drift := current.Sub(snapshot).Abs().Div(snapshot.Abs())

	return drift.GreaterThan(s.rules.PriceDriftThreshold)
}
