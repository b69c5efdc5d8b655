package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils"
	"github.com/google/uuid"
)

// CartStore is the set of cart reads and writes available inside a unit of
// work. Lookups that find nothing return sql.ErrNoRows.
type CartStore interface {
	// GetCartByOwner loads the owner's cart with its items. When lock is set the
	// cart row is held with FOR UPDATE until the surrounding transaction ends.
	GetCartByOwner(ctx context.Context, owner models.OwnerKey, lock bool) (*models.Cart, error)
	// CreateCart inserts cart, or adopts the row a concurrent writer created for
	// the same owner. It reports whether this call inserted the row.
	CreateCart(ctx context.Context, cart *models.Cart) (bool, error)
	RenewCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	UpdateItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) (int, error)
	UpdateTotals(ctx context.Context, cart *models.Cart) error
}

type CartRepository interface {
	CartStore
	// WithinTx runs fn as one atomic unit. Serialization failures and
	// deadlocks restart fn from the beginning.
	WithinTx(ctx context.Context, fn func(store CartStore) error) error
	DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error)
}

type cartRepository struct {
	DB         *sql.DB
	maxRetries uint64
}

type cartStore struct {
	q querier
}

func NewCartRepo(db *sql.DB, maxRetries uint64) CartRepository {
	return &cartRepository{DB: db, maxRetries: maxRetries}
}

func (r *cartRepository) store() *cartStore {
	return &cartStore{q: r.DB}
}

func (r *cartRepository) WithinTx(ctx context.Context, fn func(store CartStore) error) error {
	return runInTx(ctx, r.DB, r.maxRetries, func(tx *sql.Tx) error {
		return fn(&cartStore{q: tx})
	})
}

func (r *cartRepository) DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	result, err := r.DB.ExecContext(dbCtx, `DELETE FROM carts WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired carts: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted rows: %w", err)
	}

	return deleted, nil
}

func (r *cartRepository) GetCartByOwner(ctx context.Context, owner models.OwnerKey, lock bool) (*models.Cart, error) {
	return r.store().GetCartByOwner(ctx, owner, lock)
}

func (r *cartRepository) CreateCart(ctx context.Context, cart *models.Cart) (bool, error) {
	return r.store().CreateCart(ctx, cart)
}

func (r *cartRepository) RenewCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	return r.store().RenewCart(ctx, cartID, expiresAt)
}

func (r *cartRepository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	return r.store().ListItems(ctx, cartID)
}

func (r *cartRepository) GetItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error) {
	return r.store().GetItem(ctx, itemID)
}

func (r *cartRepository) InsertItem(ctx context.Context, item *models.CartItem) error {
	return r.store().InsertItem(ctx, item)
}

func (r *cartRepository) UpdateItem(ctx context.Context, item *models.CartItem) error {
	return r.store().UpdateItem(ctx, item)
}

func (r *cartRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.store().DeleteItem(ctx, itemID)
}

func (r *cartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID) (int, error) {
	return r.store().DeleteItems(ctx, cartID)
}

func (r *cartRepository) UpdateTotals(ctx context.Context, cart *models.Cart) error {
	return r.store().UpdateTotals(ctx, cart)
}

const cartColumns = `id, user_id, session_id, subtotal, tax_amount, shipping_amount, discount_amount, total, version, created_at, updated_at, expires_at`

func scanCart(row interface{ Scan(dest ...any) error }) (*models.Cart, error) {

	cart := &models.Cart{}

	var userID uuid.NullUUID
	var sessionID sql.NullString

	err := row.Scan(&cart.ID, &userID, &sessionID, &cart.Subtotal, &cart.TaxAmount, &cart.ShippingAmount,
		&cart.DiscountAmount, &cart.Total, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt, &cart.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		cart.UserID = &userID.UUID
	}

	if sessionID.Valid {
		cart.SessionID = &sessionID.String
	}

	return cart, nil
}

func (s *cartStore) GetCartByOwner(ctx context.Context, owner models.OwnerKey, lock bool) (*models.Cart, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	var query string
	var arg any

	if owner.HasUser() {
		query = `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
		arg = *owner.UserID
	} else {
		query = `SELECT ` + cartColumns + ` FROM carts WHERE session_id = $1`
		arg = owner.SessionID
	}

	if lock {
		query += ` FOR UPDATE`
	}

	cart, err := scanCart(s.q.QueryRowContext(dbCtx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("querying cart: %w", err)
	}

	items, err := s.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func (s *cartStore) CreateCart(ctx context.Context, cart *models.Cart) (bool, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO carts (id, user_id, session_id, subtotal, tax_amount, shipping_amount, discount_amount, total, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, $4, $4, $5)
		ON CONFLICT DO NOTHING
	`

	result, err := s.q.ExecContext(dbCtx, query, cart.ID, cart.UserID, cart.SessionID, cart.CreatedAt, cart.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to create cart: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get inserted rows: %w", err)
	}

	if inserted == 1 {
		return true, nil
	}

	// Lost the race to another writer for the same owner.
	existing, err := s.GetCartByOwner(ctx, cart.Owner(), true)
	if err != nil {
		return false, err
	}
	*cart = *existing

	return false, nil
}

func (s *cartStore) RenewCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	result, err := s.q.ExecContext(dbCtx, `UPDATE carts SET expires_at = $1, updated_at = clock_timestamp() WHERE id = $2`, expiresAt, cartID)
	if err != nil {
		return fmt.Errorf("failed to renew cart: %w", err)
	}

	return requireRow(result)
}

func (s *cartStore) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, cart_id, product_id, quantity, unit_price, total, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.q.QueryContext(dbCtx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("querying cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}

	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cart items: %w", err)
	}

	return items, nil
}

func (s *cartStore) GetItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, cart_id, product_id, quantity, unit_price, total, created_at, updated_at
		FROM cart_items
		WHERE id = $1
	`

	item := &models.CartItem{}

	err := s.q.QueryRowContext(dbCtx, query, itemID).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Total, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("querying cart item: %w", err)
	}

	return item, nil
}

func (s *cartStore) InsertItem(ctx context.Context, item *models.CartItem) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.q.QueryRowContext(dbCtx, query, item.ID, item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.Total).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}

	return nil
}

func (s *cartStore) UpdateItem(ctx context.Context, item *models.CartItem) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE cart_items
		SET quantity = $1, unit_price = $2, total = $3, updated_at = clock_timestamp()
		WHERE id = $4
		RETURNING updated_at
	`

	err := s.q.QueryRowContext(dbCtx, query, item.Quantity, item.UnitPrice, item.Total, item.ID).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	return nil
}

func (s *cartStore) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	result, err := s.q.ExecContext(dbCtx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	return requireRow(result)
}

func (s *cartStore) DeleteItems(ctx context.Context, cartID uuid.UUID) (int, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	result, err := s.q.ExecContext(dbCtx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart items: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted rows: %w", err)
	}

	return int(deleted), nil
}

func (s *cartStore) UpdateTotals(ctx context.Context, cart *models.Cart) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		UPDATE carts
		SET subtotal = $1, tax_amount = $2, shipping_amount = $3, discount_amount = $4, total = $5,
		    version = version + 1, updated_at = clock_timestamp()
		WHERE id = $6
		RETURNING version, updated_at
	`

	err := s.q.QueryRowContext(dbCtx, query, cart.Subtotal, cart.TaxAmount, cart.ShippingAmount, cart.DiscountAmount, cart.Total, cart.ID).
		Scan(&cart.Version, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to update cart totals: %w", err)
	}

	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
