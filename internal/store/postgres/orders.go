package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store"
)

const orderColumns = `
	id, user_id, status, shipping_address, payment_method, shipping_method,
	items_price, shipping_price, total,
	is_paid, paid_at, is_shipped, shipped_at, is_delivered, delivered_at,
	payment_provider_order_id, payment_result, created_at, updated_at`

func (r *repo) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, shipping_address, payment_method, shipping_method,
			items_price, shipping_price, total, is_paid, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.ID, order.UserID, order.Status, address, order.PaymentMethod, order.ShippingMethod,
		order.ItemsPrice, order.ShippingPrice, order.Total, order.IsPaid, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity, price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, item.ProductID, item.Name, item.Quantity, item.Price, item.TotalPrice)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *repo) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *repo) GetOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*domain.Order, error) {
	if providerOrderID == "" {
		return nil, store.ErrNotFound
	}
	return r.getOrder(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE payment_provider_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, providerOrderID)
}

func (r *repo) getOrder(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := r.orderItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	return order, nil
}

// ListOrders returns the user's orders, newest first. An empty userID lists
// every order.
func (r *repo) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []domain.Order
	var orderIDs []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.orderItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, nil
}

func (r *repo) orderItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, price, total_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY product_id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price, &item.TotalPrice); err != nil {
			return nil, err
		}
		items[orderID] = append(items[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *repo) UpdateOrder(ctx context.Context, order *domain.Order) error {
	var paymentResult []byte
	if order.PaymentResult != nil {
		var err error
		paymentResult, err = json.Marshal(order.PaymentResult)
		if err != nil {
			return fmt.Errorf("marshal payment result: %w", err)
		}
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE orders SET
			status = $2,
			is_paid = $3, paid_at = $4,
			is_shipped = $5, shipped_at = $6,
			is_delivered = $7, delivered_at = $8,
			payment_provider_order_id = $9,
			payment_result = $10,
			updated_at = $11
		WHERE id = $1
	`, order.ID, order.Status,
		order.IsPaid, nullTime(order.PaidAt),
		order.IsShipped, nullTime(order.ShippedAt),
		order.IsDelivered, nullTime(order.DeliveredAt),
		nullString(order.PaymentProviderOrderID),
		paymentResult,
		order.UpdatedAt)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                        domain.Order
		address, paymentResult       []byte
		paidAt, shippedAt, delivered sql.NullTime
		providerOrderID              sql.NullString
	)

	err := row.Scan(
		&order.ID, &order.UserID, &order.Status, &address, &order.PaymentMethod, &order.ShippingMethod,
		&order.ItemsPrice, &order.ShippingPrice, &order.Total,
		&order.IsPaid, &paidAt, &order.IsShipped, &shippedAt, &order.IsDelivered, &delivered,
		&providerOrderID, &paymentResult, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if len(paymentResult) > 0 {
		order.PaymentResult = &domain.PaymentResult{}
		if err := json.Unmarshal(paymentResult, order.PaymentResult); err != nil {
			return nil, fmt.Errorf("unmarshal payment result: %w", err)
		}
	}

	order.PaidAt = timePtr(paidAt)
	order.ShippedAt = timePtr(shippedAt)
	order.DeliveredAt = timePtr(delivered)
	order.PaymentProviderOrderID = providerOrderID.String

	return &order, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
