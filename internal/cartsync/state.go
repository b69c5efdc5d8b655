// Package cartsync keeps a client-side optimistic projection of a cart in step
// with the cart API. Local edits are applied immediately, quantity changes are
// debounced per item, and failed mutations roll back to the last server value.
package cartsync

import (
	"slices"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemStatus int

const (
	Settled ItemStatus = iota
	PendingLocalChange
	InFlight
	RolledBack
)

func (s ItemStatus) String() string {
	switch s {
	case Settled:
		return "settled"
	case PendingLocalChange:
		return "pending"
	case InFlight:
		return "in_flight"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Line tracks one cart item across local edits and server round trips.
type Line struct {
	Status ItemStatus
	// Confirmed is the last server-confirmed value of the item.
	Confirmed models.CartItem
	// Position is the item's index in the last confirmed cart.
	Position int
	Removing bool
	Error    string
}

// State is the client-visible cart. Cart and Summary may run ahead of the
// server while lines are pending.
type State struct {
	Cart    models.Cart
	Summary models.CartSummary
	Lines   map[uuid.UUID]Line
	// Cleared holds the cart as it was before an optimistic clear.
	Cleared   *models.Cart
	LastError string
}

func (s State) Line(itemID uuid.UUID) (Line, bool) {
	line, ok := s.Lines[itemID]
	return line, ok
}

func (s State) Quantity(itemID uuid.UUID) (int, bool) {
	item := s.Cart.FindItem(itemID)
	if item == nil {
		return 0, false
	}
	return item.Quantity, true
}

// Settled reports whether nothing is pending or in flight.
func (s State) Settled() bool {
	if s.Cleared != nil {
		return false
	}
	for _, line := range s.Lines {
		if line.Status == PendingLocalChange || line.Status == InFlight {
			return false
		}
	}
	return true
}

func (s State) clone() State {
	out := s
	out.Cart = cloneCart(s.Cart)
	out.Lines = make(map[uuid.UUID]Line, len(s.Lines))
	for id, line := range s.Lines {
		out.Lines[id] = line
	}
	if s.Cleared != nil {
		cleared := cloneCart(*s.Cleared)
		out.Cleared = &cleared
	}
	return out
}

func cloneCart(c models.Cart) models.Cart {
	out := c
	out.Items = slices.Clone(c.Items)
	if out.Items == nil {
		out.Items = []models.CartItem{}
	}
	return out
}

// Estimator recomputes cart amounts from its items while the server value is
// not yet known.
type Estimator interface {
	Apply(cart *models.Cart)
}

// KeepRates recomputes the subtotal and total from line totals and carries the
// last known tax, shipping and discount through unchanged.
type KeepRates struct{}

func (KeepRates) Apply(cart *models.Cart) {
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		subtotal = subtotal.Add(item.Total)
	}
	cart.Subtotal = subtotal
	cart.Total = subtotal.Add(cart.TaxAmount).Add(cart.ShippingAmount).Sub(cart.DiscountAmount)
}
