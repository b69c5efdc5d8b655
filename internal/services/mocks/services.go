package mocks

import (
	"context"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	service "github.com/aaravmahajanofficial/storefront-cart/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type CartService struct {
	mock.Mock
}

var _ service.CartService = (*CartService)(nil)

func (m *CartService) GetCart(ctx context.Context, owner models.OwnerKey) (*models.CartResult, error) {
	args := m.Called(ctx, owner)
	result, _ := args.Get(0).(*models.CartResult)

	return result, args.Error(1)
}

func (m *CartService) FindActiveCart(ctx context.Context, owner models.OwnerKey) (*models.Cart, error) {
	args := m.Called(ctx, owner)
	cart, _ := args.Get(0).(*models.Cart)

	return cart, args.Error(1)
}

func (m *CartService) AddItem(ctx context.Context, owner models.OwnerKey, productID uuid.UUID, quantity int) (*models.AddToCartResult, error) {
	args := m.Called(ctx, owner, productID, quantity)
	result, _ := args.Get(0).(*models.AddToCartResult)

	return result, args.Error(1)
}

func (m *CartService) UpdateItemQuantity(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error) {
	args := m.Called(ctx, owner, itemID, quantity)
	result, _ := args.Get(0).(*models.UpdateCartItemResult)

	return result, args.Error(1)
}

func (m *CartService) RemoveItem(ctx context.Context, owner models.OwnerKey, itemID uuid.UUID) (*models.RemoveFromCartResult, error) {
	args := m.Called(ctx, owner, itemID)
	result, _ := args.Get(0).(*models.RemoveFromCartResult)

	return result, args.Error(1)
}

func (m *CartService) Clear(ctx context.Context, owner models.OwnerKey) (*models.ClearCartResult, error) {
	args := m.Called(ctx, owner)
	result, _ := args.Get(0).(*models.ClearCartResult)

	return result, args.Error(1)
}

type ValidationService struct {
	mock.Mock
}

var _ service.ValidationService = (*ValidationService)(nil)

func (m *ValidationService) Validate(ctx context.Context, cart *models.Cart) (*models.ValidationResult, error) {
	args := m.Called(ctx, cart)
	result, _ := args.Get(0).(*models.ValidationResult)

	return result, args.Error(1)
}

func (m *ValidationService) ValidateCart(ctx context.Context, owner models.OwnerKey) (*models.ValidationResult, error) {
	args := m.Called(ctx, owner)
	result, _ := args.Get(0).(*models.ValidationResult)

	return result, args.Error(1)
}

type MergeService struct {
	mock.Mock
}

var _ service.MergeService = (*MergeService)(nil)

func (m *MergeService) SyncGuestCartToUser(ctx context.Context, guestSessionID string, userID uuid.UUID, strategy models.MergeStrategy) (*models.MergeResult, error) {
	args := m.Called(ctx, guestSessionID, userID, strategy)
	result, _ := args.Get(0).(*models.MergeResult)

	return result, args.Error(1)
}
