// Package memstore is an in-memory store.Store used by unit tests. Transactions
// are serialized and run against a copy of the state that replaces the
// original only when the transaction function succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store"
)

type state struct {
	products  map[string]*domain.Product
	carts     map[string]*domain.Cart // by owner
	cartItems map[string][]domain.CartItem
	orders    map[string]*domain.Order
}

func newState() *state {
	return &state{
		products:  make(map[string]*domain.Product),
		carts:     make(map[string]*domain.Cart),
		cartItems: make(map[string][]domain.CartItem),
		orders:    make(map[string]*domain.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for owner, cart := range s.carts {
		cp := *cart
		c.carts[owner] = &cp
	}
	for id, items := range s.cartItems {
		c.cartItems[id] = append([]domain.CartItem(nil), items...)
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	return c
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem{}, o.Items...)
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		cp.PaymentResult = &pr
	}
	cp.PaidAt = cloneTime(o.PaidAt)
	cp.ShippedAt = cloneTime(o.ShippedAt)
	cp.DeliveredAt = cloneTime(o.DeliveredAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type Store struct {
	*view
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.view = &view{st: newState(), mu: &s.mu}
	return s
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = &p
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := s.st.clone()
	if err := fn(&view{st: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// view implements store.Tx over a state. Views created by InTx carry no
// mutex because the store lock is already held.
type view struct {
	st *state
	mu *sync.Mutex
}

func (v *view) lock() func() {
	if v.mu == nil {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

func (v *view) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	defer v.lock()()

	p, ok := v.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (v *view) GetProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	defer v.lock()()

	products := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := v.st.products[id]; ok {
			cp := *p
			products[id] = &cp
		}
	}
	return products, nil
}

func (v *view) DecrementStock(_ context.Context, productID string, quantity int) error {
	defer v.lock()()

	p, ok := v.st.products[productID]
	if !ok || p.StockQuantity < quantity {
		return store.ErrStockConflict
	}
	p.StockQuantity -= quantity
	return nil
}

func (v *view) IncrementStock(_ context.Context, productID string, quantity int) error {
	defer v.lock()()

	p, ok := v.st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.StockQuantity += quantity
	return nil
}

func (v *view) LockCart(_ context.Context, ownerID string) (*domain.Cart, error) {
	defer v.lock()()

	cart, ok := v.st.carts[ownerID]
	if !ok {
		cart = &domain.Cart{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Total:     decimal.Zero,
			UpdatedAt: time.Now().UTC(),
		}
		v.st.carts[ownerID] = cart
	}
	cp := *cart
	return &cp, nil
}

func (v *view) ListCartItems(_ context.Context, cartID string) ([]domain.CartItem, error) {
	defer v.lock()()

	return append([]domain.CartItem{}, v.st.cartItems[cartID]...), nil
}

func (v *view) GetCartItem(_ context.Context, cartID, productID string) (*domain.CartItem, error) {
	defer v.lock()()

	for _, item := range v.st.cartItems[cartID] {
		if item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) SaveCartItem(_ context.Context, item domain.CartItem) error {
	defer v.lock()()

	items := v.st.cartItems[item.CartID]
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity = item.Quantity
			return nil
		}
	}
	v.st.cartItems[item.CartID] = append(items, item)
	return nil
}

func (v *view) DeleteCartItem(_ context.Context, cartID, productID string) error {
	defer v.lock()()

	items := v.st.cartItems[cartID]
	for i := range items {
		if items[i].ProductID == productID {
			v.st.cartItems[cartID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (v *view) DeleteCartItems(_ context.Context, cartID string) error {
	defer v.lock()()

	delete(v.st.cartItems, cartID)
	return nil
}

func (v *view) SetCartTotal(_ context.Context, cartID string, total decimal.Decimal) error {
	defer v.lock()()

	for _, cart := range v.st.carts {
		if cart.ID == cartID {
			cart.Total = total
			cart.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return store.ErrNotFound
}

func (v *view) CreateOrder(_ context.Context, order *domain.Order) error {
	defer v.lock()()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	v.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (v *view) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	defer v.lock()()

	o, ok := v.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (v *view) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return v.GetOrder(ctx, id)
}

func (v *view) GetOrderByProviderOrderID(_ context.Context, providerOrderID string) (*domain.Order, error) {
	defer v.lock()()

	if providerOrderID == "" {
		return nil, store.ErrNotFound
	}
	for _, o := range v.st.orders {
		if o.PaymentProviderOrderID == providerOrderID {
			return cloneOrder(o), nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) ListOrders(_ context.Context, userID string) ([]domain.Order, error) {
	defer v.lock()()

	orders := []domain.Order{}
	for _, o := range v.st.orders {
		if userID == "" || o.UserID == userID {
			orders = append(orders, *cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (v *view) UpdateOrder(_ context.Context, order *domain.Order) error {
	defer v.lock()()

	existing, ok := v.st.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := cloneOrder(order)
	// line items are immutable once written
	updated.Items = existing.Items
	v.st.orders[order.ID] = updated
	return nil
}
