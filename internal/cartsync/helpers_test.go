package cartsync

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// manualClock fires timers only when Advance moves past their deadline.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Duration
	fn    func()
	done  bool
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.done && t.at <= c.now {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(due, func(a, b *manualTimer) int { return int(a.at - b.at) })
	for _, t := range due {
		t.fn()
	}
}

type update struct {
	ItemID   uuid.UUID
	Quantity int
}

// fakeAPI is an in-memory cart server. Amounts are untaxed and shipping is
// free so totals equal subtotals.
type fakeAPI struct {
	mu         sync.Mutex
	cart       models.Cart
	updates    []update
	failUpdate error
	failRemove error
	failClear  error

	// When set, UpdateItem reports each call on started and then waits for
	// release to be closed.
	started chan update
	release chan struct{}
}

func newFakeAPI(items ...models.CartItem) *fakeAPI {
	f := &fakeAPI{cart: models.Cart{ID: uuid.New(), Items: items}}
	f.touch()
	return f
}

// touch recomputes amounts and advances the cart's version.
func (f *fakeAPI) touch() {
	reprice(&f.cart)
	f.cart.Version++
	f.cart.UpdatedAt = time.Unix(1_700_000_000, 0).Add(time.Duration(f.cart.Version) * time.Second)
}

func newItem(quantity int, price string) models.CartItem {
	item := models.CartItem{ID: uuid.New(), ProductID: uuid.New(), Quantity: quantity}
	item.Reprice(decimal.RequireFromString(price))
	return item
}

func reprice(cart *models.Cart) {
	subtotal := decimal.Zero
	for i := range cart.Items {
		cart.Items[i].Reprice(cart.Items[i].UnitPrice)
		subtotal = subtotal.Add(cart.Items[i].Total)
	}
	cart.Subtotal = subtotal
	cart.Total = subtotal
}

func (f *fakeAPI) snapshot() *models.Cart {
	out := cloneCart(f.cart)
	return &out
}

func (f *fakeAPI) calls() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

func (f *fakeAPI) GetCart(ctx context.Context) (*models.CartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.snapshot()
	return &models.CartResult{Cart: cart, Summary: models.Summarize(cart)}, nil
}

func (f *fakeAPI) AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*models.AddToCartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := models.CartItem{ID: uuid.New(), ProductID: productID, Quantity: quantity}
	item.Reprice(decimal.NewFromInt(5))
	f.cart.Items = append(f.cart.Items, item)
	f.touch()
	cart := f.snapshot()
	return &models.AddToCartResult{Cart: cart, AddedItem: &item, Summary: models.Summarize(cart)}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error) {

	f.mu.Lock()
	f.updates = append(f.updates, update{ItemID: itemID, Quantity: quantity})
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- update{ItemID: itemID, Quantity: quantity}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpdate != nil {
		return nil, f.failUpdate
	}

	removed := quantity == 0
	if removed {
		f.cart.Items = withoutItem(f.cart.Items, itemID)
	} else if item := f.cart.FindItem(itemID); item != nil {
		item.Quantity = quantity
	}
	f.touch()

	cart := f.snapshot()
	return &models.UpdateCartItemResult{Cart: cart, UpdatedItem: cart.FindItem(itemID), Removed: removed, Summary: models.Summarize(cart)}, nil
}

func (f *fakeAPI) RemoveItem(ctx context.Context, itemID uuid.UUID) (*models.RemoveFromCartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove != nil {
		return nil, f.failRemove
	}
	f.cart.Items = withoutItem(f.cart.Items, itemID)
	f.touch()
	cart := f.snapshot()
	return &models.RemoveFromCartResult{Cart: cart, RemovedItemID: itemID, Summary: models.Summarize(cart)}, nil
}

func (f *fakeAPI) ClearCart(ctx context.Context) (*models.ClearCartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClear != nil {
		return nil, f.failClear
	}
	removed := len(f.cart.Items)
	f.cart.Items = []models.CartItem{}
	f.touch()
	cart := f.snapshot()
	return &models.ClearCartResult{Cart: cart, RemovedCount: removed, Summary: models.Summarize(cart)}, nil
}
