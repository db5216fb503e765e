package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/store"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

const orderIDPlaceholder = "{order_id}"

type Config struct {
	Currency string
	// SuccessURL and CancelURL are where the buyer lands after returning from
	// the provider. "{order_id}" is replaced with the order id.
	SuccessURL string
	CancelURL  string
}

type Service struct {
	store     store.Store
	provider  Provider
	deduper   Deduper
	publisher messaging.Publisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

type Option func(*Service)

func WithDeduper(d Deduper) Option {
	return func(s *Service) { s.deduper = d }
}

func WithPublisher(p messaging.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, provider Provider, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		provider:  provider,
		publisher: messaging.NopPublisher{},
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate opens a provider checkout for the order total and records the
// provider order id. Calling it again opens a new provider order and
// overwrites the recorded id.
func (s *Service) Initiate(ctx context.Context, actor domain.Actor, orderID string) (Checkout, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Checkout{}, orderNotFound(err, orderID)
	}
	if err := checkPayable(actor, order); err != nil {
		return Checkout{}, err
	}

	checkout, err := s.provider.CreateCheckoutOrder(ctx, order.ID, order.Total, s.cfg.Currency)
	if err != nil {
		return Checkout{}, domain.Wrap(domain.KindPaymentProviderError, err, "could not create checkout with "+s.provider.Name())
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return orderNotFound(err, orderID)
		}
		if err := checkPayable(actor, locked); err != nil {
			return err
		}
		locked.PaymentProviderOrderID = checkout.ProviderOrderID
		locked.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, locked)
	})
	if err != nil {
		return Checkout{}, err
	}

	logging.FromContext(ctx, s.logger).Info("checkout created",
		zap.String("order_id", orderID),
		zap.String("provider", s.provider.Name()),
		zap.String("provider_order_id", checkout.ProviderOrderID),
	)
	return checkout, nil
}

func checkPayable(actor domain.Actor, order *domain.Order) error {
	switch {
	case order.UserID != actor.UserID:
		return domain.Errorf(domain.KindForbidden, "order %s belongs to another user", order.ID)
	case order.IsPaid:
		return domain.Errorf(domain.KindAlreadyPaid, "order %s is already paid", order.ID)
	case order.Status == domain.OrderStatusCancelled:
		return domain.Errorf(domain.KindInvalidState, "order %s is cancelled", order.ID)
	}
	return nil
}

// Confirm handles the buyer returning from an approved checkout. It captures
// the payment unless the order is already paid, and returns where to send
// the buyer next.
func (s *Service) Confirm(ctx context.Context, token string) (string, error) {
	order, err := s.store.GetOrderByProviderOrderID(ctx, token)
	if err != nil {
		return "", providerOrderNotFound(err, token)
	}
	if order.IsPaid {
		return s.redirect(s.cfg.SuccessURL, order.ID), nil
	}
	if order.Status == domain.OrderStatusCancelled {
		return "", domain.Errorf(domain.KindInvalidState, "order %s is cancelled", order.ID)
	}

	capture, err := s.provider.CaptureOrder(ctx, token)
	if err != nil {
		return "", domain.Wrap(domain.KindPaymentProviderError, err, "could not capture payment with "+s.provider.Name())
	}
	if !capture.Completed {
		return "", domain.Errorf(domain.KindPaymentProviderError, "payment was not completed, provider status %q", capture.Status)
	}

	result := domain.PaymentResult{
		ID:           capture.PaymentID,
		Status:       capture.Status,
		UpdateTime:   capture.Timestamp,
		EmailAddress: capture.PayerEmail,
	}
	if _, err := s.markPaid(ctx, order.ID, result, "confirm"); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			logging.FromContext(ctx, s.logger).Error("payment captured for an order cancelled during checkout",
				zap.String("order_id", order.ID), zap.String("payment_id", result.ID))
		}
		return "", err
	}

	return s.redirect(s.cfg.SuccessURL, order.ID), nil
}

// CancelCheckout handles the buyer abandoning the provider page. The order is
// left as is and can be paid with a new checkout.
func (s *Service) CancelCheckout(ctx context.Context, token string) (string, error) {
	order, err := s.store.GetOrderByProviderOrderID(ctx, token)
	if err != nil {
		return "", providerOrderNotFound(err, token)
	}

	logging.FromContext(ctx, s.logger).Info("checkout abandoned",
		zap.String("order_id", order.ID), zap.String("provider_order_id", token))
	return s.redirect(s.cfg.CancelURL, order.ID), nil
}

func (s *Service) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (WebhookEvent, error) {
	return s.provider.ParseWebhook(ctx, r, body)
}

// HandleWebhook marks the referenced order paid on a capture-completed event.
// Other event types are ignored. The event itself is the proof of payment;
// no capture call is made.
func (s *Service) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	log := logging.FromContext(ctx, s.logger).With(
		zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if !ev.CaptureCompleted {
		log.Debug("webhook event ignored")
		return nil
	}

	if s.deduper != nil && ev.ID != "" {
		first, err := s.deduper.Claim(ctx, ev.ID)
		if err != nil {
			log.Warn("webhook dedupe unavailable", zap.Error(err))
		} else if !first {
			log.Info("duplicate webhook delivery")
			return nil
		}
	}

	err := s.applyWebhook(ctx, ev)
	if err != nil && s.deduper != nil && ev.ID != "" {
		if relErr := s.deduper.Release(ctx, ev.ID); relErr != nil {
			log.Warn("failed to release webhook claim", zap.Error(relErr))
		}
	}
	return err
}

func (s *Service) applyWebhook(ctx context.Context, ev WebhookEvent) error {
	order, err := s.store.GetOrderByProviderOrderID(ctx, ev.ProviderOrderID)
	if err != nil {
		return providerOrderNotFound(err, ev.ProviderOrderID)
	}
	if order.IsPaid {
		return nil
	}
	if order.Status == domain.OrderStatusCancelled {
		s.refuseCancelled(ctx, order.ID, ev)
		return nil
	}

	at := ev.Time
	if at.IsZero() {
		at = s.now()
	}
	result := domain.PaymentResult{
		ID:           ev.PaymentID,
		Status:       ev.Status,
		UpdateTime:   at,
		EmailAddress: ev.PayerEmail,
	}
	_, err = s.markPaid(ctx, order.ID, result, "webhook")
	if errors.Is(err, domain.ErrInvalidState) {
		s.refuseCancelled(ctx, order.ID, ev)
		return nil
	}
	return err
}

// refuseCancelled records a capture that arrived for a cancelled order. The
// order stays cancelled and unpaid; the captured funds need a manual refund.
func (s *Service) refuseCancelled(ctx context.Context, orderID string, ev WebhookEvent) {
	logging.FromContext(ctx, s.logger).Error("capture reported for cancelled order, not marking paid",
		zap.String("order_id", orderID),
		zap.String("payment_id", ev.PaymentID),
		zap.String("event_id", ev.ID),
	)
}

// markPaid is the single paid transition. The order row is locked and
// re-read, so concurrent confirmations apply it once; later calls are no-ops
// and report false. A cancelled order is never marked paid.
func (s *Service) markPaid(ctx context.Context, orderID string, result domain.PaymentResult, via string) (bool, error) {
	var (
		order   *domain.Order
		changed bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return orderNotFound(err, orderID)
		}

		if !order.IsPaid && order.Status == domain.OrderStatusCancelled {
			return domain.Errorf(domain.KindInvalidState, "order %s is cancelled", orderID)
		}
		changed = order.MarkPaid(result, s.now())
		if !changed {
			return nil
		}
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.metrics.PaymentMarkedPaid(ctx, via)
	event := domain.NewOrderEvent(domain.OrderEventPaid, order, s.now())
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to publish order event",
			zap.Error(err), zap.String("order_id", order.ID), zap.String("type", string(event.Type)))
	}
	logging.FromContext(ctx, s.logger).Info("order paid",
		zap.String("order_id", order.ID),
		zap.String("payment_id", result.ID),
		zap.String("via", via),
	)
	return true, nil
}

func (s *Service) redirect(template, orderID string) string {
	return strings.ReplaceAll(template, orderIDPlaceholder, orderID)
}

func orderNotFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "order %s not found", id)
	}
	return err
}

func providerOrderNotFound(err error, token string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "no order for payment %q", token)
	}
	return err
}
