package orders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/store"
)

func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, domain.Errorf(domain.KindForbidden, "order %s belongs to another user", id)
	}
	return order, nil
}

// List returns the actor's orders, newest first. Administrators see every
// order.
func (s *Service) List(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if actor.IsAdmin {
		return s.store.ListOrders(ctx, "")
	}
	if actor.UserID == "" {
		return nil, domain.Errorf(domain.KindForbidden, "caller identity required")
	}
	return s.store.ListOrders(ctx, actor.UserID)
}

// Cancel gives back the stock taken by an order that has not shipped and
// marks it CANCELLED. Cancelling twice is an InvalidState error.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	order, err := s.transition(ctx, id, func(tx store.Tx, order *domain.Order) error {
		if !actor.CanAccess(order.UserID) {
			return domain.Errorf(domain.KindForbidden, "order %s belongs to another user", id)
		}
		switch {
		case order.IsShipped || order.IsDelivered:
			return domain.Errorf(domain.KindInvalidState, "order %s has already shipped", id)
		case order.Status == domain.OrderStatusCancelled:
			return domain.Errorf(domain.KindInvalidState, "order %s is already cancelled", id)
		}

		for _, item := range order.Items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.Errorf(domain.KindConflict, "product %s no longer exists", item.ProductID)
				}
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCancelled(ctx)
	s.publish(ctx, domain.OrderEventCancelled, order)
	logging.FromContext(ctx, s.logger).Info("order cancelled",
		zap.String("order_id", order.ID), zap.String("cancelled_by", actor.UserID))
	return order, nil
}

// Ship marks a paid order as handed to the carrier.
func (s *Service) Ship(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	if !actor.IsAdmin {
		return nil, domain.Errorf(domain.KindForbidden, "admin role required")
	}

	order, err := s.transition(ctx, id, func(_ store.Tx, order *domain.Order) error {
		switch {
		case order.Status == domain.OrderStatusCancelled:
			return domain.Errorf(domain.KindInvalidState, "order %s is cancelled", id)
		case !order.IsPaid:
			return domain.Errorf(domain.KindInvalidState, "order %s is not paid", id)
		case order.IsShipped:
			return domain.Errorf(domain.KindInvalidState, "order %s has already shipped", id)
		}

		now := s.now()
		order.IsShipped = true
		order.ShippedAt = &now
		order.Status = domain.OrderStatusShipped
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("order shipped", zap.String("order_id", order.ID))
	return order, nil
}

func (s *Service) Deliver(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	if !actor.IsAdmin {
		return nil, domain.Errorf(domain.KindForbidden, "admin role required")
	}

	order, err := s.transition(ctx, id, func(_ store.Tx, order *domain.Order) error {
		switch {
		case !order.IsShipped:
			return domain.Errorf(domain.KindInvalidState, "order %s has not shipped", id)
		case order.IsDelivered:
			return domain.Errorf(domain.KindInvalidState, "order %s is already delivered", id)
		}

		now := s.now()
		order.IsDelivered = true
		order.DeliveredAt = &now
		order.Status = domain.OrderStatusDelivered
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("order delivered", zap.String("order_id", order.ID))
	return order, nil
}

// transition locks the order, applies fn and saves the result in one
// transaction.
func (s *Service) transition(ctx context.Context, id string, fn func(tx store.Tx, order *domain.Order) error) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return notFound(err, id)
		}

		if err := fn(tx, order); err != nil {
			return err
		}

		order.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "order %s not found", id)
	}
	return err
}
