// Package orders places orders against product stock and cancels them,
// restoring the stock they took.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/store"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceInput struct {
	UserID          string                 `json:"-"`
	Items           []LineInput            `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ShippingMethod  string                 `json:"shipping_method"`
	ShippingPrice   decimal.Decimal        `json:"shipping_price"`
	// TotalPrice is the total the client expects to pay. Zero skips the check.
	TotalPrice decimal.Decimal `json:"total_price"`
}

type Service struct {
	store     store.Store
	publisher messaging.Publisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, publisher messaging.Publisher, metrics *telemetry.Metrics, logger *zap.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	s := &Service{
		store:     st,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place validates every line against the catalog, then creates the order and
// takes its stock in one transaction. Losing a stock race to a concurrent
// order rolls everything back and returns a Conflict.
func (s *Service) Place(ctx context.Context, in PlaceInput) (*domain.Order, error) {
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	order, err := s.buildOrder(ctx, s.store, in, lines)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		return s.insert(ctx, tx, order)
	})
	if err != nil {
		return nil, s.placeError(ctx, err)
	}

	s.placed(ctx, order, "items")
	return order, nil
}

// PlaceFromCart checks out the caller's cart. The cart lines become the order
// lines and the cart is emptied in the same transaction.
func (s *Service) PlaceFromCart(ctx context.Context, in PlaceInput) (*domain.Order, error) {
	var order *domain.Order

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCart(ctx, in.UserID)
		if err != nil {
			return err
		}
		items, err := tx.ListCartItems(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.Errorf(domain.KindInvalidArgument, "cart is empty")
		}

		lines := make([]LineInput, 0, len(items))
		for _, item := range items {
			lines = append(lines, LineInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err = s.buildOrder(ctx, tx, in, lines)
		if err != nil {
			return err
		}
		if err := s.insert(ctx, tx, order); err != nil {
			return err
		}

		if err := tx.DeleteCartItems(ctx, c.ID); err != nil {
			return err
		}
		return cart.Recompute(ctx, tx, c)
	})
	if err != nil {
		return nil, s.placeError(ctx, err)
	}

	s.placed(ctx, order, "cart")
	return order, nil
}

func mergeLines(items []LineInput) ([]LineInput, error) {
	if len(items) == 0 {
		return nil, domain.Errorf(domain.KindInvalidArgument, "order has no items")
	}

	merged := make([]LineInput, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return nil, domain.Errorf(domain.KindInvalidArgument, "item product_id is required")
		}
		if item.Quantity < 1 {
			return nil, domain.Errorf(domain.KindInvalidArgument, "quantity for product %s must be at least 1", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// buildOrder runs the validation pass and snapshots product name and price
// into the order lines. Nothing is written.
func (s *Service) buildOrder(ctx context.Context, q store.Tx, in PlaceInput, lines []LineInput) (*domain.Order, error) {
	if in.UserID == "" {
		return nil, domain.Errorf(domain.KindForbidden, "order owner required")
	}
	if in.ShippingPrice.IsNegative() {
		return nil, domain.Errorf(domain.KindInvalidArgument, "shipping_price must not be negative")
	}
	if err := checkCents("shipping_price", in.ShippingPrice); err != nil {
		return nil, err
	}
	if err := checkCents("total_price", in.TotalPrice); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := q.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, domain.Errorf(domain.KindNotFound, "product %s not found", line.ProductID)
		}
		if !p.IsPublished {
			return nil, domain.Errorf(domain.KindUnavailable, "product %s is not available", line.ProductID)
		}
		if line.Quantity > p.StockQuantity {
			return nil, domain.Errorf(domain.KindInsufficientStock,
				"only %d of product %s in stock, %d requested", p.StockQuantity, line.ProductID, line.Quantity)
		}
		items = append(items, domain.OrderItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   line.Quantity,
			Price:      p.Price,
			TotalPrice: p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	itemsPrice := domain.ItemsTotal(items)
	total := itemsPrice.Add(in.ShippingPrice)
	if !in.TotalPrice.IsZero() && !in.TotalPrice.Equal(total) {
		return nil, domain.Errorf(domain.KindInvalidArgument,
			"total_price %s does not match computed total %s", in.TotalPrice, total)
	}

	now := s.now()
	return &domain.Order{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ShippingMethod:  in.ShippingMethod,
		ItemsPrice:      itemsPrice,
		ShippingPrice:   in.ShippingPrice,
		Total:           total,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// checkCents rejects amounts the two-decimal money columns would round.
func checkCents(field string, amount decimal.Decimal) error {
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return domain.Errorf(domain.KindInvalidArgument, "%s must have at most 2 decimal places", field)
	}
	return nil
}

func (s *Service) insert(ctx context.Context, tx store.Tx, order *domain.Order) error {
	if err := tx.CreateOrder(ctx, order); err != nil {
		return err
	}
	for _, item := range order.Items {
		if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) placeError(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrStockConflict) {
		s.metrics.StockConflict(ctx)
		return domain.Wrap(domain.KindConflict, err, "stock changed while placing the order, please retry")
	}
	if errors.Is(err, store.ErrConflict) {
		return domain.Wrap(domain.KindConflict, err, "order placement lost a concurrent update, please retry")
	}
	return err
}

func (s *Service) placed(ctx context.Context, order *domain.Order, source string) {
	s.metrics.OrderPlaced(ctx, source)
	s.publish(ctx, domain.OrderEventPlaced, order)
	logging.FromContext(ctx, s.logger).Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Stringer("total", order.Total),
		zap.Int("lines", len(order.Items)),
	)
}

func (s *Service) publish(ctx context.Context, t domain.OrderEventType, order *domain.Order) {
	event := domain.NewOrderEvent(t, order, s.now())
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to publish order event",
			zap.Error(err), zap.String("order_id", order.ID), zap.String("type", string(t)))
	}
}
