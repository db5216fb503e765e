package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store/memstore"
)

func newTestService(t *testing.T, products ...domain.Product) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	for _, p := range products {
		st.PutProduct(p)
	}
	return NewService(st, zap.NewNop()), st
}

func product(id string, price string, stock int) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsPublished:   true,
	}
}

func assertTotalMatchesItems(t *testing.T, cart *domain.Cart) {
	t.Helper()
	assert.True(t, Total(cart.Items).Equal(cart.Total), "total %s does not match items", cart.Total)
}

func TestTotal(t *testing.T) {
	items := []domain.CartItem{
		{Quantity: 3, Price: decimal.RequireFromString("0.10")},
		{Quantity: 1, Price: decimal.RequireFromString("0.20")},
	}
	assert.Equal(t, "0.5", Total(items).String())
	assert.True(t, Total(nil).IsZero())
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates quantity up to stock", func(t *testing.T) {
		svc, _ := newTestService(t, product("P", "10.00", 5))

		cart, err := svc.AddItem(ctx, "owner-1", "P", 2)
		require.NoError(t, err)
		assert.True(t, cart.Total.Equal(decimal.RequireFromString("20.00")))

		cart, err = svc.AddItem(ctx, "owner-1", "P", 3)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 5, cart.Items[0].Quantity)
		assert.True(t, cart.Total.Equal(decimal.RequireFromString("50.00")))

		_, err = svc.AddItem(ctx, "owner-1", "P", 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		cart, err = svc.Get(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, 5, cart.Items[0].Quantity)
		assertTotalMatchesItems(t, cart)
	})

	t.Run("out of stock product leaves cart unchanged", func(t *testing.T) {
		svc, _ := newTestService(t, product("P", "10.00", 5), product("EMPTY", "3.00", 0))

		_, err := svc.AddItem(ctx, "owner-1", "P", 1)
		require.NoError(t, err)

		_, err = svc.AddItem(ctx, "owner-1", "EMPTY", 1)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		cart, err := svc.Get(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, "P", cart.Items[0].ProductID)
		assert.True(t, cart.Total.Equal(decimal.RequireFromString("10")))
	})

	t.Run("missing product", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.AddItem(ctx, "owner-1", "nope", 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unpublished product", func(t *testing.T) {
		draft := product("D", "8.00", 20)
		draft.IsPublished = false
		svc, _ := newTestService(t, draft)

		_, err := svc.AddItem(ctx, "owner-1", "D", 1)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})

	t.Run("rejects non positive quantity", func(t *testing.T) {
		svc, _ := newTestService(t, product("P", "10.00", 5))

		_, err := svc.AddItem(ctx, "owner-1", "P", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("keeps price snapshot when product price changes", func(t *testing.T) {
		svc, st := newTestService(t, product("P", "10.00", 10))

		_, err := svc.AddItem(ctx, "owner-1", "P", 1)
		require.NoError(t, err)

		st.PutProduct(product("P", "12.00", 10))

		cart, err := svc.AddItem(ctx, "owner-1", "P", 1)
		require.NoError(t, err)
		assert.True(t, cart.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
		assert.True(t, cart.Total.Equal(decimal.RequireFromString("20.00")))
	})

	t.Run("carts are per owner", func(t *testing.T) {
		svc, _ := newTestService(t, product("P", "10.00", 10))

		_, err := svc.AddItem(ctx, "owner-1", "P", 2)
		require.NoError(t, err)

		other, err := svc.Get(ctx, "owner-2")
		require.NoError(t, err)
		assert.Empty(t, other.Items)
		assert.True(t, other.Total.IsZero())
	})
}

func TestService_UpdateItem(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t, product("A", "2.50", 10), product("B", "4.00", 3))
	_, err := svc.AddItem(ctx, "owner-1", "A", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "owner-1", "B", 1)
	require.NoError(t, err)

	cart, err := svc.UpdateItem(ctx, "owner-1", "A", 4)
	require.NoError(t, err)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("14.00")))
	assertTotalMatchesItems(t, cart)

	_, err = svc.UpdateItem(ctx, "owner-1", "B", 4)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = svc.UpdateItem(ctx, "owner-1", "B", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.UpdateItem(ctx, "owner-1", "C", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cart, err = svc.UpdateItem(ctx, "owner-1", "B", 0)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("10.00")))
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t, product("A", "2.50", 10), product("B", "4.00", 3))
	_, err := svc.AddItem(ctx, "owner-1", "A", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "owner-1", "B", 3)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "owner-1", "A")
	require.NoError(t, err)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("12.00")))

	_, err = svc.RemoveItem(ctx, "owner-1", "A")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cart, err = svc.Clear(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.Equal(decimal.Zero))

	cart, err = svc.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())
}

func TestService_TotalInvariantAcrossMutations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t,
		product("A", "0.10", 100),
		product("B", "19.99", 100),
		product("C", "7.35", 100),
	)

	steps := []func() (*domain.Cart, error){
		func() (*domain.Cart, error) { return svc.AddItem(ctx, "o", "A", 7) },
		func() (*domain.Cart, error) { return svc.AddItem(ctx, "o", "B", 3) },
		func() (*domain.Cart, error) { return svc.UpdateItem(ctx, "o", "A", 13) },
		func() (*domain.Cart, error) { return svc.AddItem(ctx, "o", "C", 2) },
		func() (*domain.Cart, error) { return svc.RemoveItem(ctx, "o", "B") },
		func() (*domain.Cart, error) { return svc.AddItem(ctx, "o", "A", 1) },
	}

	for i, step := range steps {
		cart, err := step()
		require.NoError(t, err, "step %d", i)
		assertTotalMatchesItems(t, cart)

		stored, err := svc.Get(ctx, "o")
		require.NoError(t, err)
		assert.True(t, stored.Total.Equal(cart.Total), "step %d", i)
	}
}
