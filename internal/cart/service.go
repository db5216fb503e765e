package cart

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/store"
)

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// Get returns the owner's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, domain.Errorf(domain.KindForbidden, "cart owner required")
	}

	var cart *domain.Cart
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		cart, err = tx.LockCart(ctx, ownerID)
		if err != nil {
			return err
		}
		cart.Items, err = tx.ListCartItems(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem adds quantity units of a product. An existing line keeps its price
// snapshot and has its quantity increased.
func (s *Service) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.Errorf(domain.KindInvalidArgument, "quantity must be at least 1")
	}

	cart, err := s.mutate(ctx, ownerID, func(tx store.Tx, cart *domain.Cart) error {
		product, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Errorf(domain.KindNotFound, "product %s not found", productID)
		}
		if err != nil {
			return err
		}
		if !product.IsPublished {
			return domain.Errorf(domain.KindUnavailable, "product %s is not available", productID)
		}

		item := domain.CartItem{
			CartID:    cart.ID,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
		}
		existing, err := tx.GetCartItem(ctx, cart.ID, productID)
		switch {
		case err == nil:
			item = *existing
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		item.Quantity += quantity

		if item.Quantity > product.StockQuantity {
			return domain.Errorf(domain.KindInsufficientStock,
				"only %d of product %s in stock, cart would hold %d", product.StockQuantity, productID, item.Quantity)
		}

		return tx.SaveCartItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("cart item added",
		zap.String("cart_id", cart.ID), zap.String("product_id", productID), zap.Int("quantity", quantity))
	return cart, nil
}

// UpdateItem sets the quantity of a line. Zero removes it.
func (s *Service) UpdateItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, domain.Errorf(domain.KindInvalidArgument, "quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, ownerID, productID)
	}

	return s.mutate(ctx, ownerID, func(tx store.Tx, cart *domain.Cart) error {
		item, err := tx.GetCartItem(ctx, cart.ID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Errorf(domain.KindNotFound, "product %s is not in the cart", productID)
		}
		if err != nil {
			return err
		}

		product, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Errorf(domain.KindNotFound, "product %s not found", productID)
		}
		if err != nil {
			return err
		}
		if quantity > product.StockQuantity {
			return domain.Errorf(domain.KindInsufficientStock,
				"only %d of product %s in stock", product.StockQuantity, productID)
		}

		item.Quantity = quantity
		return tx.SaveCartItem(ctx, *item)
	})
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, func(tx store.Tx, cart *domain.Cart) error {
		err := tx.DeleteCartItem(ctx, cart.ID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Errorf(domain.KindNotFound, "product %s is not in the cart", productID)
		}
		return err
	})
}

func (s *Service) Clear(ctx context.Context, ownerID string) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, func(tx store.Tx, cart *domain.Cart) error {
		return tx.DeleteCartItems(ctx, cart.ID)
	})
}

// mutate runs fn with the owner's cart locked, then recomputes and stores the
// total from the lines as they stand after fn.
func (s *Service) mutate(ctx context.Context, ownerID string, fn func(tx store.Tx, cart *domain.Cart) error) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, domain.Errorf(domain.KindForbidden, "cart owner required")
	}

	var cart *domain.Cart
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		cart, err = tx.LockCart(ctx, ownerID)
		if err != nil {
			return err
		}

		if err := fn(tx, cart); err != nil {
			return err
		}

		return Recompute(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// Recompute reloads the cart lines and persists their total. It must run in
// the transaction that holds the cart lock.
func Recompute(ctx context.Context, tx store.Tx, cart *domain.Cart) error {
	items, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return err
	}

	total := Total(items)
	if err := tx.SetCartTotal(ctx, cart.ID, total); err != nil {
		return err
	}

	cart.Items = items
	cart.Total = total
	return nil
}
