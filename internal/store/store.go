// Package store defines the persistence contract shared by the cart, order and
// payment services. Implementations live in the postgres and memstore
// subpackages.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrStockConflict is returned by DecrementStock when the product does not
	// hold enough units at write time.
	ErrStockConflict = errors.New("store: stock conflict")
	// ErrConflict reports a transaction that lost a race with a concurrent
	// writer (serialization failure or deadlock).
	ErrConflict = errors.New("store: transaction conflict")
)

// Tx is the set of reads and writes available both inside and outside a
// transaction.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int) error
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// LockCart returns the owner's cart, creating it when missing. Inside a
	// transaction the cart row stays locked until commit or rollback.
	LockCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	ListCartItems(ctx context.Context, cartID string) ([]domain.CartItem, error)
	GetCartItem(ctx context.Context, cartID, productID string) (*domain.CartItem, error)
	SaveCartItem(ctx context.Context, item domain.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, productID string) error
	DeleteCartItems(ctx context.Context, cartID string) error
	SetCartTotal(ctx context.Context, cartID string, total decimal.Decimal) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// LockOrder reads an order and holds its row lock inside a transaction.
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order) error
}

// Store runs fn in a single atomic transaction. Any error returned by fn rolls
// the whole transaction back.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
