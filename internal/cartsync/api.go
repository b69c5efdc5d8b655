package cartsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
)

// CartAPI is the server side of the cart as the synchronizer sees it.
type CartAPI interface {
	GetCart(ctx context.Context) (*models.CartResult, error)
	AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*models.AddToCartResult, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) (*models.RemoveFromCartResult, error)
	ClearCart(ctx context.Context) (*models.ClearCartResult, error)
}

// APIError is a failure reported by the cart API in its error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

const genericFailure = "We couldn't update your cart. Please try again."

// userMessage is the text shown for a failed mutation. Only messages the API
// chose to return are passed through.
func userMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return genericFailure
}
