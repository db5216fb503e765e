package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store"
)

func seeded() *Store {
	s := New()
	s.PutProduct(domain.Product{ID: "P", Name: "P", Price: decimal.NewFromInt(5), StockQuantity: 3, IsPublished: true})
	return s
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.DecrementStock(ctx, "P", 2))
		require.NoError(t, tx.CreateOrder(ctx, &domain.Order{UserID: "u"}))
		cart, err := tx.LockCart(ctx, "u")
		require.NoError(t, err)
		require.NoError(t, tx.SaveCartItem(ctx, domain.CartItem{CartID: cart.ID, ProductID: "P", Quantity: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)

	orders, err := s.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)

	cart, err := s.LockCart(ctx, "u")
	require.NoError(t, err)
	items, err := s.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	var id string
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.DecrementStock(ctx, "P", 3); err != nil {
			return err
		}
		order := &domain.Order{UserID: "u", Status: domain.OrderStatusPending}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		id = order.ID
		return nil
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockQuantity)

	order, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u", order.UserID)
}

func TestDecrementStock_Conflict(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	assert.ErrorIs(t, s.DecrementStock(ctx, "P", 4), store.ErrStockConflict)
	assert.ErrorIs(t, s.DecrementStock(ctx, "missing", 1), store.ErrStockConflict)
	assert.ErrorIs(t, s.IncrementStock(ctx, "missing", 1), store.ErrNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	order := &domain.Order{UserID: "u", Items: []domain.OrderItem{{ProductID: "P", Quantity: 1}}}
	require.NoError(t, s.CreateOrder(ctx, order))

	got, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 99
	got.IsPaid = true

	again, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
	assert.False(t, again.IsPaid)
}

func TestInTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := seeded().InTx(ctx, func(store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
