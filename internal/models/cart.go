package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnerKey identifies whose cart a request targets: an authenticated user or a
// guest session. Exactly one of the two must be set.
type OwnerKey struct {
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

func UserOwner(userID uuid.UUID) OwnerKey {
	return OwnerKey{UserID: &userID}
}

func SessionOwner(sessionID string) OwnerKey {
	return OwnerKey{SessionID: sessionID}
}

func (k OwnerKey) HasUser() bool {
	return k.UserID != nil && *k.UserID != uuid.Nil
}

func (k OwnerKey) HasSession() bool {
	return k.SessionID != ""
}

func (k OwnerKey) IsZero() bool {
	return !k.HasUser() && !k.HasSession()
}

// String is used for log attributes and rate-limit keys.
func (k OwnerKey) String() string {
	if k.HasUser() {
		return "user:" + k.UserID.String()
	}

	return "session:" + k.SessionID
}

// Owns reports whether the cart belongs to this owner.
func (k OwnerKey) Owns(cart *Cart) bool {
	if cart == nil {
		return false
	}

	if k.HasUser() {
		return cart.UserID != nil && *cart.UserID == *k.UserID
	}

	return cart.SessionID != nil && *cart.SessionID == k.SessionID
}

type CartItem struct {
	ID        uuid.UUID       `json:"id"`
	CartID    uuid.UUID       `json:"cart_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Reprice snapshots the given unit price and recomputes the line total.
func (i *CartItem) Reprice(unitPrice decimal.Decimal) {
	i.UnitPrice = unitPrice
	i.Total = unitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID             uuid.UUID       `json:"id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	SessionID      *string         `json:"session_id,omitempty"`
	Items          []CartItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	// Version increases with every committed change to the cart.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCart builds an empty cart for owner expiring after ttl.
func NewCart(owner OwnerKey, now time.Time, ttl time.Duration) *Cart {
	cart := &Cart{
		ID:        uuid.New(),
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if owner.HasUser() {
		userID := *owner.UserID
		cart.UserID = &userID
	} else {
		sessionID := owner.SessionID
		cart.SessionID = &sessionID
	}

	return cart
}

// EmptyCart is returned to owners that have no cart yet.
func EmptyCart(owner OwnerKey) *Cart {
	cart := &Cart{Items: []CartItem{}}

	if owner.HasUser() {
		userID := *owner.UserID
		cart.UserID = &userID
	} else if owner.HasSession() {
		sessionID := owner.SessionID
		cart.SessionID = &sessionID
	}

	return cart
}

func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

func (c *Cart) Owner() OwnerKey {
	if c.UserID != nil {
		return UserOwner(*c.UserID)
	}

	if c.SessionID != nil {
		return SessionOwner(*c.SessionID)
	}

	return OwnerKey{}
}

func (c *Cart) FindItem(itemID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}

	return nil
}

func (c *Cart) FindProduct(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}

	return nil
}

// ItemHighlight points at a notable line of the cart.
type ItemHighlight struct {
	CartItemID uuid.UUID       `json:"cart_item_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Total      decimal.Decimal `json:"total"`
}

// CartSummary is derived from a cart on every read and mutation; it is never
// stored.
type CartSummary struct {
	ItemCount         int             `json:"item_count"`
	UniqueItems       int             `json:"unique_items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	ShippingAmount    decimal.Decimal `json:"shipping_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	Total             decimal.Decimal `json:"total"`
	HeaviestItem      *ItemHighlight  `json:"heaviest_item,omitempty"`
	MostExpensiveItem *ItemHighlight  `json:"most_expensive_item,omitempty"`
}

func Summarize(cart *Cart) CartSummary {
	summary := CartSummary{
		UniqueItems:    len(cart.Items),
		Subtotal:       cart.Subtotal,
		TaxAmount:      cart.TaxAmount,
		ShippingAmount: cart.ShippingAmount,
		DiscountAmount: cart.DiscountAmount,
		Total:          cart.Total,
	}

	for _, item := range cart.Items {
		summary.ItemCount += item.Quantity

		if summary.HeaviestItem == nil || item.Quantity > summary.HeaviestItem.Quantity {
			summary.HeaviestItem = highlight(item)
		}

		if summary.MostExpensiveItem == nil || item.Total.GreaterThan(summary.MostExpensiveItem.Total) {
			summary.MostExpensiveItem = highlight(item)
		}
	}

	return summary
}

func highlight(item CartItem) *ItemHighlight {
	return &ItemHighlight{
		CartItemID: item.ID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		Total:      item.Total,
	}
}

type MergeStrategy string

const (
	MergeStrategyMerge      MergeStrategy = "merge"
	MergeStrategyReplace    MergeStrategy = "replace"
	MergeStrategyKeepLatest MergeStrategy = "keep_latest"
)

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"   validate:"omitempty,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type MergeCartRequest struct {
	GuestSessionID string        `json:"guest_session_id" validate:"required"`
	Strategy       MergeStrategy `json:"merge_strategy"   validate:"omitempty,oneof=merge replace keep_latest"`
}

type CartResult struct {
	Cart       *Cart             `json:"cart"`
	Summary    CartSummary       `json:"summary"`
	Validation *ValidationResult `json:"validation,omitempty"`
}

type AddToCartResult struct {
	Cart      *Cart       `json:"cart"`
	AddedItem *CartItem   `json:"added_item"`
	Summary   CartSummary `json:"summary"`
	IsNewCart bool        `json:"is_new_cart"`
}

type UpdateCartItemResult struct {
	Cart        *Cart       `json:"cart"`
	UpdatedItem *CartItem   `json:"updated_item,omitempty"`
	Removed     bool        `json:"removed"`
	Summary     CartSummary `json:"summary"`
}

type RemoveFromCartResult struct {
	Cart          *Cart       `json:"cart"`
	RemovedItemID uuid.UUID   `json:"removed_item_id"`
	Summary       CartSummary `json:"summary"`
}

type ClearCartResult struct {
	Cart         *Cart       `json:"cart"`
	RemovedCount int         `json:"removed_count"`
	Summary      CartSummary `json:"summary"`
}

type MergeResult struct {
	Cart          *Cart       `json:"cart"`
	Summary       CartSummary `json:"summary"`
	MergedItems   int         `json:"merged_items"`
	FailedItems   int         `json:"failed_items"`
	ReplacedItems int         `json:"replaced_items"`
}
