package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/aaravmahajanofficial/storefront-cart/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type CartService interface {
	// GetCart returns the owner's live cart, or an empty cart when the owner
	// has none or it has expired.
	GetCart(ctx context.Context, owner models.OwnerKey) (*models.CartResult, error)
	// FindActiveCart returns nil without error when the owner has no live cart.
	FindActiveCart(ctx context.Context, owner models.OwnerKey) (*models.Cart, error)
	AddItem(ctx context.Context, owner models.OwnerKey, productID uuid.UUID, quantity int) (*models.AddToCartResult, error)
	UpdateItemQuantity(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error)
	RemoveItem(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID) (*models.RemoveFromCartResult, error)
	Clear(ctx context.Context, owner models.OwnerKey) (*models.ClearCartResult, error)
}

type cartService struct {
	repo    repository.CartRepository
	catalog repository.CatalogReader
	totals  *TotalsCalculator
	expiry  time.Duration
	now     func() time.Time
}

type CartServiceOption func(*cartService)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) CartServiceOption {
	return func(s *cartService) { s.now = now }
}

// NewCartService wires the mutation path. catalog must read the source of
// truth directly; a cached reader here would weaken the stock checks.
func NewCartService(repo repository.CartRepository, catalog repository.CatalogReader, totals *TotalsCalculator, expiry time.Duration, opts ...CartServiceOption) CartService {
	s := &cartService{
		repo:    repo,
		catalog: catalog,
		totals:  totals,
		expiry:  expiry,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ValidateOwner requires exactly one of user id and session id.
func ValidateOwner(owner models.OwnerKey) error {
	switch {
	case owner.HasUser() && owner.HasSession():
		return appErrors.OwnerKeyAmbiguousError()
	case owner.IsZero():
		return appErrors.OwnerKeyMissingError()
	}

	return nil
}

func isBusinessError(err error) bool {
	appErr, ok := appErrors.IsAppError(err)
	return ok && !appErr.IsRetryable()
}

func (s *cartService) GetCart(ctx context.Context, owner models.OwnerKey) (*models.CartResult, error) {

	cart, err := s.FindActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	if cart == nil {
		cart = models.EmptyCart(owner)
	}

	return &models.CartResult{Cart: cart, Summary: models.Summarize(cart)}, nil
}

func (s *cartService) FindActiveCart(ctx context.Context, owner models.OwnerKey) (*models.Cart, error) {

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetCartByOwner(ctx, owner, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.DatabaseError("Failed to fetch cart").WithError(err)
	}

	if cart.IsExpired(s.now()) {
		return nil, nil
	}

	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, owner models.OwnerKey, productID uuid.UUID, quantity int) (*models.AddToCartResult, error) {

	ctx, span := tracing.Start(ctx, "CartService.AddItem", attribute.String("product.id", productID.String()), attribute.Int("quantity", quantity))
	defer span.End()

	logger := middleware.LoggerFromContext(ctx)

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	if quantity < 1 {
		return nil, appErrors.ValidationError("Quantity must be at least 1")
	}

	var result *models.AddToCartResult

	err := s.repo.WithinTx(ctx, func(store repository.CartStore) error {

		now := s.now()

		product, err := s.activeProduct(ctx, productID)
		if err != nil {
			return err
		}

		cart, isNew, err := s.lockOrCreateCart(ctx, store, owner, now)
		if err != nil {
			return err
		}

		requested := quantity
		existing := cart.FindProduct(productID)
		if existing != nil {
			requested += existing.Quantity
		}

		if product.StockQuantity == 0 {
			return appErrors.OutOfStockError(product.Name)
		}

		if product.StockQuantity < requested {
			return appErrors.InsufficientStockError(product.Name, requested, product.StockQuantity)
		}

		var affected models.CartItem

		if existing != nil {
			existing.Quantity = requested
			existing.Reprice(product.Price)

			if err := store.UpdateItem(ctx, existing); err != nil {
				return appErrors.DatabaseError("Failed to update cart item").WithError(err)
			}
			affected = *existing
		} else {
			item := models.CartItem{
				ID:        uuid.New(),
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
			}
			item.Reprice(product.Price)

			if err := store.InsertItem(ctx, &item); err != nil {
				return appErrors.DatabaseError("Failed to add cart item").WithError(err)
			}
			cart.Items = append(cart.Items, item)
			affected = item
		}

		if err := s.recalculate(ctx, store, cart); err != nil {
			return err
		}

		result = &models.AddToCartResult{
			Cart:      cart,
			AddedItem: &affected,
			Summary:   models.Summarize(cart),
			IsNewCart: isNew,
		}

		return nil
	})

	metrics.RecordCartMutation("add", err, isBusinessError)

	if err != nil {
		logger.Warn("Add to cart failed", slog.String("owner", owner.String()), slog.String("productId", productID.String()), slog.String("error", err.Error()))
		return nil, err
	}

	if result.IsNewCart {
		metrics.RecordCartCreated()
	}

	logger.Info("Item added to cart", slog.String("cartId", result.Cart.ID.String()), slog.String("productId", productID.String()), slog.Int("quantity", result.AddedItem.Quantity))

	return result, nil
}

// lockOrCreateCart returns the owner's cart locked for the rest of the unit of
// work, creating it if needed. An expired cart the sweeper has not reached yet
// is emptied and given a fresh expiry, and counts as new.
func (s *cartService) lockOrCreateCart(ctx context.Context, store repository.CartStore, owner models.OwnerKey, now time.Time) (*models.Cart, bool, error) {

	cart, err := store.GetCartByOwner(ctx, owner, true)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.DatabaseError("Failed to fetch cart").WithError(err)
	}

	if cart == nil {
		cart = models.NewCart(owner, now, s.expiry)

		created, err := store.CreateCart(ctx, cart)
		if err != nil {
			return nil, false, appErrors.DatabaseError("Failed to create cart").WithError(err)
		}

		if created || !cart.IsExpired(now) {
			return cart, created, nil
		}
	}

	if !cart.IsExpired(now) {
		return cart, false, nil
	}

	if _, err := store.DeleteItems(ctx, cart.ID); err != nil {
		return nil, false, appErrors.DatabaseError("Failed to reset expired cart").WithError(err)
	}

	expiresAt := now.Add(s.expiry)
	if err := store.RenewCart(ctx, cart.ID, expiresAt); err != nil {
		return nil, false, appErrors.DatabaseError("Failed to reset expired cart").WithError(err)
	}

	cart.Items = []models.CartItem{}
	cart.ExpiresAt = expiresAt

	return cart, true, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error) {

	ctx, span := tracing.Start(ctx, "CartService.UpdateItemQuantity", attribute.String("cart_item.id", itemID.String()), attribute.Int("quantity", quantity))
	defer span.End()

	logger := middleware.LoggerFromContext(ctx)

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	if quantity < 0 {
		return nil, appErrors.ValidationError("Quantity must not be negative")
	}

	var result *models.UpdateCartItemResult

	err := s.repo.WithinTx(ctx, func(store repository.CartStore) error {

		cart, item, err := s.lockOwnedItem(ctx, store, owner, itemID)
		if err != nil {
			return err
		}

		// Zero behaves exactly like RemoveItem, which an expired cart allows.
		if quantity == 0 {
			if err := s.deleteItem(ctx, store, cart, item.ID); err != nil {
				return err
			}

			result = &models.UpdateCartItemResult{Cart: cart, Removed: true, Summary: models.Summarize(cart)}
			return nil
		}

		if cart.IsExpired(s.now()) {
			return appErrors.CartExpiredError()
		}

		product, err := s.activeProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}

		if quantity > product.StockQuantity {
			return appErrors.InsufficientStockError(product.Name, quantity, product.StockQuantity)
		}

		item.Quantity = quantity
		item.Reprice(product.Price)

		if err := store.UpdateItem(ctx, item); err != nil {
			return appErrors.DatabaseError("Failed to update cart item").WithError(err)
		}

		if err := s.recalculate(ctx, store, cart); err != nil {
			return err
		}

		updated := *item
		result = &models.UpdateCartItemResult{Cart: cart, UpdatedItem: &updated, Summary: models.Summarize(cart)}

		return nil
	})

	metrics.RecordCartMutation("update", err, isBusinessError)

	if err != nil {
		logger.Warn("Cart item update failed", slog.String("owner", owner.String()), slog.String("cartItemId", itemID.String()), slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("Cart item updated", slog.String("cartId", result.Cart.ID.String()), slog.String("cartItemId", itemID.String()), slog.Int("quantity", quantity))

	return result, nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID) (*models.RemoveFromCartResult, error) {

	logger := middleware.LoggerFromContext(ctx)

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	var result *models.RemoveFromCartResult

	err := s.repo.WithinTx(ctx, func(store repository.CartStore) error {

		cart, item, err := s.lockOwnedItem(ctx, store, owner, itemID)
		if err != nil {
			return err
		}

		if err := s.deleteItem(ctx, store, cart, item.ID); err != nil {
			return err
		}

		result = &models.RemoveFromCartResult{Cart: cart, RemovedItemID: itemID, Summary: models.Summarize(cart)}

		return nil
	})

	metrics.RecordCartMutation("remove", err, isBusinessError)

	if err != nil {
		logger.Warn("Cart item removal failed", slog.String("owner", owner.String()), slog.String("cartItemId", itemID.String()), slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("Cart item removed", slog.String("cartId", result.Cart.ID.String()), slog.String("cartItemId", itemID.String()))

	return result, nil
}

func (s *cartService) Clear(ctx context.Context, owner models.OwnerKey) (*models.ClearCartResult, error) {

	logger := middleware.LoggerFromContext(ctx)

	if err := ValidateOwner(owner); err != nil {
		return nil, err
	}

	var result *models.ClearCartResult

	err := s.repo.WithinTx(ctx, func(store repository.CartStore) error {

		cart, err := store.GetCartByOwner(ctx, owner, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				empty := models.EmptyCart(owner)
				result = &models.ClearCartResult{Cart: empty, Summary: models.Summarize(empty)}
				return nil
			}
			return appErrors.DatabaseError("Failed to fetch cart").WithError(err)
		}

		removed, err := store.DeleteItems(ctx, cart.ID)
		if err != nil {
			return appErrors.DatabaseError("Failed to clear cart").WithError(err)
		}

		cart.Items = []models.CartItem{}

		if err := s.recalculate(ctx, store, cart); err != nil {
			return err
		}

		result = &models.ClearCartResult{Cart: cart, RemovedCount: removed, Summary: models.Summarize(cart)}

		return nil
	})

	metrics.RecordCartMutation("clear", err, isBusinessError)

	if err != nil {
		logger.Error("Failed to clear cart", slog.String("owner", owner.String()), slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("Cart cleared", slog.String("owner", owner.String()), slog.Int("removedCount", result.RemovedCount))

	return result, nil
}

// lockOwnedItem loads and locks the owner's cart and resolves itemID within
// it. An item that exists in someone else's cart is an ownership mismatch.
func (s *cartService) lockOwnedItem(ctx context.Context, store repository.CartStore, owner models.OwnerKey, itemID uuid.UUID) (*models.Cart, *models.CartItem, error) {

	cart, err := store.GetCartByOwner(ctx, owner, true)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.DatabaseError("Failed to fetch cart").WithError(err)
	}

	if cart != nil {
		if item := cart.FindItem(itemID); item != nil {
			return cart, item, nil
		}
	}

	if _, err := store.GetItem(ctx, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.CartItemNotFoundError()
		}
		return nil, nil, appErrors.DatabaseError("Failed to fetch cart item").WithError(err)
	}

	return nil, nil, appErrors.OwnershipMismatchError()
}

func (s *cartService) deleteItem(ctx context.Context, store repository.CartStore, cart *models.Cart, itemID uuid.UUID) error {

	if err := store.DeleteItem(ctx, itemID); err != nil {
		return appErrors.DatabaseError("Failed to remove cart item").WithError(err)
	}

	remaining := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ID != itemID {
			remaining = append(remaining, item)
		}
	}
	cart.Items = remaining

	return s.recalculate(ctx, store, cart)
}

func (s *cartService) activeProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ProductNotFoundError(productID.String())
		}
		return nil, appErrors.DatabaseError("Failed to fetch product").WithError(err)
	}

	if !product.IsActive() {
		return nil, appErrors.ProductInactiveError(product.Name)
	}

	return product, nil
}

func (s *cartService) recalculate(ctx context.Context, store repository.CartStore, cart *models.Cart) error {

	s.totals.Apply(cart)

	if err := store.UpdateTotals(ctx, cart); err != nil {
		return appErrors.DatabaseError("Failed to update cart totals").WithError(err)
	}

	return nil
}
