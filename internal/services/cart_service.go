package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/utils"
)

const maxCartQuantity = 100

// CartService manages the per-user shopping cart
type CartService struct {
	db      *sqlx.DB
	log     *zap.Logger
	pricing Pricing
}

// NewCartService creates a new cart service
func NewCartService(db *sqlx.DB, log *zap.Logger, pricing Pricing) *CartService {
	return &CartService{db: db, log: log.Named("cart"), pricing: pricing}
}

// getOrCreateCart returns the user's cart, creating it on first use
func getOrCreateCart(ctx context.Context, tx *sqlx.Tx, userID string) (*models.Cart, error) {
	now := utils.NowUTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, newID(), userID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var cart models.Cart
	if err := tx.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// AddToCart adds a listing to the cart. A listing already in the cart has its
// quantity increased and keeps the price captured when it was first added.
func (s *CartService) AddToCart(ctx context.Context, userID string, req models.AddToCartRequest) (*models.CartItem, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 || quantity > maxCartQuantity {
		return nil, utils.NewValidationError("quantity", fmt.Sprintf("must be between 1 and %d", maxCartQuantity))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var price decimal.Decimal
	err = tx.GetContext(ctx, &price, "SELECT price FROM service_listings WHERE id = ? AND is_active = 1", req.ServiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	cart, err := getOrCreateCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var existing int
	err = tx.GetContext(ctx, &existing, "SELECT quantity FROM cart_items WHERE cart_id = ? AND service_id = ?", cart.ID, req.ServiceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	if existing+quantity > maxCartQuantity {
		return nil, utils.NewValidationError("quantity", fmt.Sprintf("cart quantity cannot exceed %d", maxCartQuantity))
	}

	now := utils.NowUTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, service_id, quantity, selected_date, unit_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cart_id, service_id) DO UPDATE SET
			quantity = cart_items.quantity + excluded.quantity,
			selected_date = COALESCE(excluded.selected_date, cart_items.selected_date),
			updated_at = excluded.updated_at
	`, newID(), cart.ID, req.ServiceID, quantity, req.SelectedDate.Ptr(), price, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE carts SET updated_at = ? WHERE id = ?", now, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to touch cart: %w", err)
	}

	var item models.CartItem
	if err := tx.GetContext(ctx, &item, "SELECT * FROM cart_items WHERE cart_id = ? AND service_id = ?", cart.ID, req.ServiceID); err != nil {
		return nil, fmt.Errorf("failed to reload cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart update: %w", err)
	}

	s.log.Debug("cart item added", zap.String("user_id", userID), zap.String("service_id", req.ServiceID), zap.Int("quantity", item.Quantity))
	return &item, nil
}

// GetCart returns the cart with resolved listings and totals
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cart, err := getOrCreateCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	items, err := loadCartItems(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart read: %w", err)
	}

	return &models.CartView{
		Cart:      *cart,
		Items:     items,
		ItemCount: len(items),
		Totals:    s.pricing.CartTotals(items),
	}, nil
}

// loadCartItems returns the cart lines in insertion order with their listings.
// Lines whose listing was deleted have a nil Service.
func loadCartItems(ctx context.Context, q sqlx.QueryerContext, cartID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	if err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM cart_items WHERE cart_id = ? ORDER BY created_at ASC, rowid ASC", cartID); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ServiceID
	}
	listings, err := listingsByID(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Service = listings[items[i].ServiceID]
	}
	return items, nil
}

// UpdateCartItemQuantity sets the quantity of a line in the user's cart
func (s *CartService) UpdateCartItemQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity < 1 || quantity > maxCartQuantity {
		return utils.NewValidationError("quantity", fmt.Sprintf("must be between 1 and %d", maxCartQuantity))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?, updated_at = ?
		WHERE id = ? AND cart_id IN (SELECT id FROM carts WHERE user_id = ?)
	`, quantity, utils.NowUTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveCartItem deletes a line from the user's cart
func (s *CartService) RemoveCartItem(ctx context.Context, userID, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE id = ? AND cart_id IN (SELECT id FROM carts WHERE user_id = ?)
	`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCartItems returns the total quantity across the user's cart lines
func (s *CartService) CountCartItems(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COALESCE(SUM(ci.quantity), 0) FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = ?
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}
	return count, nil
}
