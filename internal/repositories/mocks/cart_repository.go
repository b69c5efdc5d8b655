package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/google/uuid"
)

// FakeCartRepository keeps carts in memory and gives WithinTx the same
// all-or-nothing semantics as the postgres implementation: units of work run
// one at a time and a failed unit leaves no trace.
type FakeCartRepository struct {
	txMu sync.Mutex
	mu   sync.Mutex

	carts map[uuid.UUID]models.Cart
	items map[uuid.UUID]models.CartItem
	seq   map[uuid.UUID]int
	next  int

	failures map[string]error
	txCount  int
}

func NewFakeCartRepository() *FakeCartRepository {
	return &FakeCartRepository{
		carts:    make(map[uuid.UUID]models.Cart),
		items:    make(map[uuid.UUID]models.CartItem),
		seq:      make(map[uuid.UUID]int),
		failures: make(map[string]error),
	}
}

var _ repository.CartRepository = (*FakeCartRepository)(nil)

// FailOn makes every later call to the named method return err until
// cleared with a nil err.
func (f *FakeCartRepository) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Transactions reports how many units of work have run.
func (f *FakeCartRepository) Transactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.txCount
}

// Seed stores cart and its items directly.
func (f *FakeCartRepository) Seed(cart models.Cart) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range cart.Items {
		item.CartID = cart.ID
		f.putItem(item)
	}
	cart.Items = nil
	f.carts[cart.ID] = cart
}

func (f *FakeCartRepository) putItem(item models.CartItem) {
	if _, ok := f.seq[item.ID]; !ok {
		f.next++
		f.seq[item.ID] = f.next
	}
	f.items[item.ID] = item
}

func (f *FakeCartRepository) fail(method string) error {
	return f.failures[method]
}

func (f *FakeCartRepository) WithinTx(ctx context.Context, fn func(store repository.CartStore) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	f.txCount++
	carts, items, seq, next := f.snapshot()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.carts, f.items, f.seq, f.next = carts, items, seq, next
		f.mu.Unlock()
		return err
	}

	return nil
}

func (f *FakeCartRepository) snapshot() (map[uuid.UUID]models.Cart, map[uuid.UUID]models.CartItem, map[uuid.UUID]int, int) {
	carts := make(map[uuid.UUID]models.Cart, len(f.carts))
	for k, v := range f.carts {
		carts[k] = v
	}

	items := make(map[uuid.UUID]models.CartItem, len(f.items))
	for k, v := range f.items {
		items[k] = v
	}

	seq := make(map[uuid.UUID]int, len(f.seq))
	for k, v := range f.seq {
		seq[k] = v
	}

	return carts, items, seq, f.next
}

func (f *FakeCartRepository) DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteExpiredCarts"); err != nil {
		return 0, err
	}

	var deleted int64
	for id, cart := range f.carts {
		if cart.ExpiresAt.Before(now) {
			for itemID, item := range f.items {
				if item.CartID == id {
					delete(f.items, itemID)
				}
			}
			delete(f.carts, id)
			deleted++
		}
	}

	return deleted, nil
}

func (f *FakeCartRepository) GetCartByOwner(ctx context.Context, owner models.OwnerKey, lock bool) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("GetCartByOwner"); err != nil {
		return nil, err
	}

	cart, ok := f.findByOwner(owner)
	if !ok {
		return nil, sql.ErrNoRows
	}

	return f.materialize(cart), nil
}

func (f *FakeCartRepository) findByOwner(owner models.OwnerKey) (models.Cart, bool) {
	for _, cart := range f.carts {
		if owner.Owns(&cart) {
			return cart, true
		}
	}

	return models.Cart{}, false
}

func (f *FakeCartRepository) materialize(cart models.Cart) *models.Cart {
	out := cart
	out.Items = f.itemsOf(cart.ID)

	return &out
}

func (f *FakeCartRepository) itemsOf(cartID uuid.UUID) []models.CartItem {
	items := []models.CartItem{}
	for _, item := range f.items {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return f.seq[items[i].ID] < f.seq[items[j].ID] })

	return items
}

func (f *FakeCartRepository) CreateCart(ctx context.Context, cart *models.Cart) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("CreateCart"); err != nil {
		return false, err
	}

	if existing, ok := f.findByOwner(cart.Owner()); ok {
		*cart = *f.materialize(existing)
		return false, nil
	}

	stored := *cart
	stored.Items = nil
	f.carts[cart.ID] = stored

	return true, nil
}

func (f *FakeCartRepository) RenewCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("RenewCart"); err != nil {
		return err
	}

	cart, ok := f.carts[cartID]
	if !ok {
		return sql.ErrNoRows
	}
	cart.ExpiresAt = expiresAt
	cart.UpdatedAt = time.Now()
	f.carts[cartID] = cart

	return nil
}

func (f *FakeCartRepository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("ListItems"); err != nil {
		return nil, err
	}

	return f.itemsOf(cartID), nil
}

func (f *FakeCartRepository) GetItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("GetItem"); err != nil {
		return nil, err
	}

	item, ok := f.items[itemID]
	if !ok {
		return nil, sql.ErrNoRows
	}

	return &item, nil
}

func (f *FakeCartRepository) InsertItem(ctx context.Context, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("InsertItem"); err != nil {
		return err
	}

	for _, existing := range f.items {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			return &duplicateError{}
		}
	}

	now := time.Now()
	item.CreatedAt, item.UpdatedAt = now, now
	f.putItem(*item)

	return nil
}

func (f *FakeCartRepository) UpdateItem(ctx context.Context, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("UpdateItem"); err != nil {
		return err
	}

	if _, ok := f.items[item.ID]; !ok {
		return sql.ErrNoRows
	}

	item.UpdatedAt = time.Now()
	f.items[item.ID] = *item

	return nil
}

func (f *FakeCartRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteItem"); err != nil {
		return err
	}

	if _, ok := f.items[itemID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, itemID)

	return nil
}

func (f *FakeCartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("DeleteItems"); err != nil {
		return 0, err
	}

	removed := 0
	for id, item := range f.items {
		if item.CartID == cartID {
			delete(f.items, id)
			removed++
		}
	}

	return removed, nil
}

func (f *FakeCartRepository) UpdateTotals(ctx context.Context, cart *models.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("UpdateTotals"); err != nil {
		return err
	}

	stored, ok := f.carts[cart.ID]
	if !ok {
		return sql.ErrNoRows
	}

	stored.Subtotal = cart.Subtotal
	stored.TaxAmount = cart.TaxAmount
	stored.ShippingAmount = cart.ShippingAmount
	stored.DiscountAmount = cart.DiscountAmount
	stored.Total = cart.Total
	stored.Version++
	stored.UpdatedAt = time.Now()
	cart.Version = stored.Version
	cart.UpdatedAt = stored.UpdatedAt
	f.carts[cart.ID] = stored

	return nil
}

type duplicateError struct{}

func (*duplicateError) Error() string {
	return "duplicate key value violates unique constraint \"cart_items_cart_product_key\""
}
