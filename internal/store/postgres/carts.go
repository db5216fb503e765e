package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store"
)

func (r *repo) LockCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_id) DO NOTHING
	`, uuid.New().String(), ownerID)
	if err != nil {
		return nil, err
	}

	cart := &domain.Cart{}
	err = r.q.QueryRowContext(ctx, `
		SELECT id, owner_id, total, updated_at
		FROM carts
		WHERE owner_id = $1
		FOR UPDATE
	`, ownerID).Scan(&cart.ID, &cart.OwnerID, &cart.Total, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func (r *repo) ListCartItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT cart_id, product_id, name, quantity, price
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, product_id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.CartID, &item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *repo) GetCartItem(ctx context.Context, cartID, productID string) (*domain.CartItem, error) {
	item := &domain.CartItem{}

	err := r.q.QueryRowContext(ctx, `
		SELECT cart_id, product_id, name, quantity, price
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID).Scan(&item.CartID, &item.ProductID, &item.Name, &item.Quantity, &item.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return item, nil
}

// SaveCartItem inserts the line or overwrites its quantity. The price snapshot
// of an existing line is left untouched.
func (r *repo) SaveCartItem(ctx context.Context, item domain.CartItem) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, name, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, item.CartID, item.ProductID, item.Name, item.Quantity, item.Price)
	return err
}

func (r *repo) DeleteCartItem(ctx context.Context, cartID, productID string) error {
	result, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (r *repo) DeleteCartItems(ctx context.Context, cartID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}

func (r *repo) SetCartTotal(ctx context.Context, cartID string, total decimal.Decimal) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE carts SET total = $2, updated_at = NOW()
		WHERE id = $1
	`, cartID, total)
	return err
}
