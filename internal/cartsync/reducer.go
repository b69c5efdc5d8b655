package cartsync

import (
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is one input to the reducer. The concrete types below are the only
// implementations.
type Action interface {
	action()
}

// Loaded adopts a cart fetched or returned by the server outside of a
// tracked mutation.
type Loaded struct {
	Cart *models.Cart
}

// QuantityChanged is a local edit, applied before anything is sent.
type QuantityChanged struct {
	ItemID   uuid.UUID
	Quantity int
}

type SyncStarted struct {
	ItemID   uuid.UUID
	Quantity int
}

type SyncSucceeded struct {
	ItemID uuid.UUID
	Cart   *models.Cart
}

type SyncFailed struct {
	ItemID  uuid.UUID
	Message string
}

type RemoveStarted struct {
	ItemID uuid.UUID
}

type RemoveSucceeded struct {
	ItemID uuid.UUID
	Cart   *models.Cart
}

type RemoveFailed struct {
	ItemID  uuid.UUID
	Message string
}

type ClearStarted struct{}

type ClearSucceeded struct {
	Cart *models.Cart
}

type ClearFailed struct {
	Message string
}

// ErrorDismissed clears the error shown for an item, or the cart-level error
// when ItemID is uuid.Nil.
type ErrorDismissed struct {
	ItemID uuid.UUID
}

func (Loaded) action()          {}
func (QuantityChanged) action() {}
func (SyncStarted) action()     {}
func (SyncSucceeded) action()   {}
func (SyncFailed) action()      {}
func (RemoveStarted) action()   {}
func (RemoveSucceeded) action() {}
func (RemoveFailed) action()    {}
func (ClearStarted) action()    {}
func (ClearSucceeded) action()  {}
func (ClearFailed) action()     {}
func (ErrorDismissed) action()  {}

// Reducer computes the next State from the current one and an action. It
// never mutates its input.
type Reducer struct {
	Estimator Estimator
}

func (r Reducer) estimator() Estimator {
	if r.Estimator == nil {
		return KeepRates{}
	}
	return r.Estimator
}

func (r Reducer) Reduce(s State, a Action) State {

	next := s.clone()

	switch a := a.(type) {
	case Loaded:
		return r.adopt(next, a.Cart)

	case QuantityChanged:
		line, ok := next.Lines[a.ItemID]
		item := next.Cart.FindItem(a.ItemID)
		if !ok || item == nil || line.Removing || a.Quantity < 0 {
			return s
		}
		item.Quantity = a.Quantity
		item.Reprice(item.UnitPrice)
		line.Status = PendingLocalChange
		line.Error = ""
		next.Lines[a.ItemID] = line
		return r.estimate(next)

	case SyncStarted:
		line, ok := next.Lines[a.ItemID]
		if !ok {
			return s
		}
		line.Status = InFlight
		next.Lines[a.ItemID] = line
		return next

	case SyncSucceeded:
		// A line still marked in flight has nothing newer queued behind this
		// response.
		if line, ok := next.Lines[a.ItemID]; ok && line.Status == InFlight && !line.Removing {
			line.Status = Settled
			next.Lines[a.ItemID] = line
		}
		return r.adopt(next, a.Cart)

	case SyncFailed:
		line, ok := next.Lines[a.ItemID]
		if !ok || line.Removing {
			return s
		}
		next.LastError = a.Message
		line.Error = a.Message

		// A newer local value is queued: keep it and let it be sent.
		if line.Status == PendingLocalChange {
			next.Lines[a.ItemID] = line
			return next
		}

		if item := next.Cart.FindItem(a.ItemID); item != nil {
			*item = line.Confirmed
		}
		line.Status = RolledBack
		next.Lines[a.ItemID] = line
		return r.estimate(next)

	case RemoveStarted:
		line, ok := next.Lines[a.ItemID]
		if !ok || line.Removing {
			return s
		}
		line.Removing = true
		line.Status = InFlight
		line.Error = ""
		next.Lines[a.ItemID] = line
		next.Cart.Items = withoutItem(next.Cart.Items, a.ItemID)
		return r.estimate(next)

	case RemoveSucceeded:
		return r.adopt(next, a.Cart)

	case RemoveFailed:
		line, ok := next.Lines[a.ItemID]
		if !ok {
			return s
		}
		line.Removing = false
		line.Status = RolledBack
		line.Error = a.Message
		next.Lines[a.ItemID] = line
		next.LastError = a.Message
		if next.Cleared == nil {
			next.Cart.Items = insertItem(next.Cart.Items, line.Position, line.Confirmed)
		}
		return r.estimate(next)

	case ClearStarted:
		if next.Cleared != nil {
			return s
		}
		before := cloneCart(next.Cart)
		next.Cleared = &before
		next.Cart.Items = []models.CartItem{}
		next.Cart.Subtotal = decimal.Zero
		next.Cart.TaxAmount = decimal.Zero
		next.Cart.ShippingAmount = decimal.Zero
		next.Cart.DiscountAmount = decimal.Zero
		next.LastError = ""
		return r.estimate(next)

	case ClearSucceeded:
		next.Cleared = nil
		next.Lines = map[uuid.UUID]Line{}
		return r.adopt(next, a.Cart)

	case ClearFailed:
		if next.Cleared == nil {
			return s
		}
		next.Cart = *next.Cleared
		next.Cleared = nil
		next.LastError = a.Message

		// The clear discarded unsent edits, so those lines go back to what
		// the server last confirmed.
		rolledBack := false
		for id, line := range next.Lines {
			if line.Removing || line.Status != PendingLocalChange {
				continue
			}
			if item := next.Cart.FindItem(id); item != nil {
				*item = line.Confirmed
			}
			line.Status = RolledBack
			line.Error = a.Message
			next.Lines[id] = line
			rolledBack = true
		}

		if rolledBack {
			return r.estimate(next)
		}
		next.Summary = models.Summarize(&next.Cart)
		return next

	case ErrorDismissed:
		if a.ItemID == uuid.Nil {
			next.LastError = ""
			return next
		}
		line, ok := next.Lines[a.ItemID]
		if !ok {
			return s
		}
		line.Error = ""
		if line.Status == RolledBack {
			line.Status = Settled
		}
		next.Lines[a.ItemID] = line
		return next
	}

	return s
}

// adopt makes the server cart the confirmed baseline and replays local lines
// that are still pending or in flight on top of it. Server amounts are kept
// as-is unless something had to be replayed. A snapshot of the same cart with
// a lower version than the one last adopted is ignored: mutations serialize
// per cart, so the newer snapshot already contains its writes.
func (r Reducer) adopt(s State, server *models.Cart) State {

	if server == nil {
		return s
	}

	last := s.Cart
	if s.Cleared != nil {
		last = *s.Cleared
	}
	if server.ID == last.ID && server.Version < last.Version {
		return s
	}

	cart := cloneCart(*server)
	lines := make(map[uuid.UUID]Line, len(cart.Items))
	replayed := false
	items := make([]models.CartItem, 0, len(cart.Items))

	for i, confirmed := range cart.Items {
		prev, seen := s.Lines[confirmed.ID]
		line := Line{Confirmed: confirmed, Position: i}
		item := confirmed

		if seen {
			line.Status = prev.Status
			line.Error = prev.Error
			line.Removing = prev.Removing
		}

		switch {
		case line.Removing:
			replayed = true
			lines[confirmed.ID] = line
			continue
		case line.Status == PendingLocalChange || line.Status == InFlight:
			if local := s.Cart.FindItem(confirmed.ID); local != nil && local.Quantity != confirmed.Quantity {
				item.Quantity = local.Quantity
				item.Reprice(confirmed.UnitPrice)
				replayed = true
			}
		}

		lines[confirmed.ID] = line
		items = append(items, item)
	}

	cart.Items = items
	s.Lines = lines

	if s.Cleared != nil {
		s.Cleared = &cart
		s.Cart = cloneCart(cart)
		s.Cart.Items = []models.CartItem{}
		s.Cart.Subtotal = decimal.Zero
		s.Cart.TaxAmount = decimal.Zero
		s.Cart.ShippingAmount = decimal.Zero
		s.Cart.DiscountAmount = decimal.Zero
		return r.estimate(s)
	}

	s.Cart = cart
	if replayed {
		return r.estimate(s)
	}
	s.Summary = models.Summarize(&s.Cart)
	return s
}

func (r Reducer) estimate(s State) State {
	r.estimator().Apply(&s.Cart)
	s.Summary = models.Summarize(&s.Cart)
	return s
}

func withoutItem(items []models.CartItem, itemID uuid.UUID) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != itemID {
			out = append(out, item)
		}
	}
	return out
}

func insertItem(items []models.CartItem, at int, item models.CartItem) []models.CartItem {
	at = max(0, min(at, len(items)))
	out := make([]models.CartItem, 0, len(items)+1)
	out = append(out, items[:at]...)
	out = append(out, item)
	return append(out, items[at:]...)
}
