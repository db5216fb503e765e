package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/store/memstore"
)

var (
	buyer    = domain.Actor{UserID: "buyer-1"}
	fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fakeProvider struct {
	mu         sync.Mutex
	created    int
	captures   int
	createErr  error
	captureErr error
	capture    Capture
	amounts    []decimal.Decimal
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateCheckoutOrder(_ context.Context, referenceID string, amount decimal.Decimal, _ string) (Checkout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return Checkout{}, p.createErr
	}
	p.created++
	p.amounts = append(p.amounts, amount)
	id := fmt.Sprintf("PP-%d", p.created)
	return Checkout{ProviderOrderID: id, ApprovalURL: "https://pay.example/approve/" + id}, nil
}

func (p *fakeProvider) CaptureOrder(context.Context, string) (Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++
	if p.captureErr != nil {
		return Capture{}, p.captureErr
	}
	return p.capture, nil
}

func (p *fakeProvider) ParseWebhook(_ context.Context, _ *http.Request, body []byte) (WebhookEvent, error) {
	return parsePayPalWebhook(body)
}

type memDeduper struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (d *memDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

func (d *memDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, key)
	return nil
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	provider *fakeProvider
	deduper  *memDeduper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	provider := &fakeProvider{capture: Capture{
		PaymentID:  "CAP-1",
		Status:     "COMPLETED",
		PayerEmail: "buyer@example.com",
		Timestamp:  fixedNow,
		Completed:  true,
	}}
	deduper := &memDeduper{claimed: map[string]bool{}}
	svc := NewService(st, provider, Config{
		Currency:   "USD",
		SuccessURL: "https://shop.example/orders/{order_id}?payment=success",
		CancelURL:  "https://shop.example/orders/{order_id}?payment=cancelled",
	}, zap.NewNop(), WithDeduper(deduper), WithClock(func() time.Time { return fixedNow }))
	return &fixture{svc: svc, store: st, provider: provider, deduper: deduper}
}

func (f *fixture) order(t *testing.T, total string) *domain.Order {
	t.Helper()
	order := &domain.Order{
		UserID:    buyer.UserID,
		Status:    domain.OrderStatusPending,
		Items:     []domain.OrderItem{{ProductID: "P", Name: "P", Quantity: 1, Price: decimal.RequireFromString(total), TotalPrice: decimal.RequireFromString(total)}},
		Total:     decimal.RequireFromString(total),
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), order))
	return order
}

func (f *fixture) reload(t *testing.T, id string) *domain.Order {
	t.Helper()
	order, err := f.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

func captureWebhook(eventID, providerOrderID string) WebhookEvent {
	return WebhookEvent{
		ID:               eventID,
		Type:             paypalCaptureCompleted,
		ProviderOrderID:  providerOrderID,
		PaymentID:        "CAP-WH",
		Status:           "COMPLETED",
		Time:             fixedNow.Add(time.Minute),
		CaptureCompleted: true,
	}
}

func TestService_WebhookThenConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, "50.00")

	checkout, err := f.svc.Initiate(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/approve/PP-1", checkout.ApprovalURL)
	assert.True(t, f.provider.amounts[0].Equal(decimal.RequireFromString("50")))

	stored := f.reload(t, order.ID)
	assert.Equal(t, "PP-1", stored.PaymentProviderOrderID)
	assert.Equal(t, domain.PaymentStateProviderOrderCreated, stored.PaymentState())

	require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-1")))

	paid := f.reload(t, order.ID)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, domain.OrderStatusProcessing, paid.Status)
	require.NotNil(t, paid.PaymentResult)
	assert.Equal(t, "CAP-WH", paid.PaymentResult.ID)
	assert.Equal(t, domain.PaymentStatePaid, paid.PaymentState())

	target, err := f.svc.Confirm(ctx, "PP-1")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/orders/"+order.ID+"?payment=success", target)
	assert.Equal(t, 0, f.provider.captures, "paid orders are not captured again")
	assert.Equal(t, paid, f.reload(t, order.ID))
}

func TestService_ConfirmThenWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, "20.00")

	_, err := f.svc.Initiate(ctx, buyer, order.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "PP-1")
	require.NoError(t, err)
	afterConfirm := f.reload(t, order.ID)
	assert.True(t, afterConfirm.IsPaid)
	assert.Equal(t, "buyer@example.com", afterConfirm.PaymentResult.EmailAddress)
	assert.Equal(t, "CAP-1", afterConfirm.PaymentResult.ID)

	require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-1")))
	require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-2", "PP-1")))
	_, err = f.svc.Confirm(ctx, "PP-1")
	require.NoError(t, err)

	assert.Equal(t, afterConfirm, f.reload(t, order.ID))
	assert.Equal(t, 1, f.provider.captures)
}

func TestService_ConcurrentConfirmations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, "20.00")
	_, err := f.svc.Initiate(ctx, buyer, order.ID)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := f.svc.markPaid(ctx, order.ID, domain.PaymentResult{ID: fmt.Sprintf("CAP-%d", i)}, "test")
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
	assert.True(t, f.reload(t, order.ID).IsPaid)
}

func TestService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Initiate(ctx, buyer, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("someone else's order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		_, err := f.svc.Initiate(ctx, domain.Actor{UserID: "other"}, order.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, 0, f.provider.created)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		order.MarkPaid(domain.PaymentResult{ID: "X"}, fixedNow)
		require.NoError(t, f.store.UpdateOrder(ctx, order))

		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	})

	t.Run("cancelled order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		order.Status = domain.OrderStatusCancelled
		require.NoError(t, f.store.UpdateOrder(ctx, order))

		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("provider failure leaves order untouched", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		f.provider.createErr = errors.New("connection reset")

		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		assert.ErrorIs(t, err, domain.ErrPaymentProviderError)
		assert.Empty(t, f.reload(t, order.ID).PaymentProviderOrderID)
	})

	t.Run("second call replaces provider order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")

		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)
		_, err = f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)

		assert.Equal(t, 2, f.provider.created)
		assert.Equal(t, "PP-2", f.reload(t, order.ID).PaymentProviderOrderID)

		_, err = f.svc.Confirm(ctx, "PP-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestService_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Confirm(ctx, "PP-404")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 0, f.provider.captures)
	})

	t.Run("capture failure", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)
		f.provider.captureErr = errors.New("503 from provider")

		_, err = f.svc.Confirm(ctx, "PP-1")
		assert.ErrorIs(t, err, domain.ErrPaymentProviderError)

		stored := f.reload(t, order.ID)
		assert.False(t, stored.IsPaid)
		assert.Equal(t, "PP-1", stored.PaymentProviderOrderID)
	})

	t.Run("capture not completed", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)
		f.provider.capture = Capture{Status: "PENDING"}

		_, err = f.svc.Confirm(ctx, "PP-1")
		assert.ErrorIs(t, err, domain.ErrPaymentProviderError)
		assert.False(t, f.reload(t, order.ID).IsPaid)
	})
}

func TestService_CancelCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, "10.00")
	_, err := f.svc.Initiate(ctx, buyer, order.ID)
	require.NoError(t, err)
	before := f.reload(t, order.ID)

	target, err := f.svc.CancelCheckout(ctx, "PP-1")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/orders/"+order.ID+"?payment=cancelled", target)
	assert.Equal(t, before, f.reload(t, order.ID))

	_, err = f.svc.CancelCheckout(ctx, "PP-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the order can still be paid with a fresh checkout
	_, err = f.svc.Initiate(ctx, buyer, order.ID)
	assert.NoError(t, err)
}

func TestService_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("ignores other event types", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)

		err = f.svc.HandleWebhook(ctx, WebhookEvent{ID: "WH-1", Type: "CHECKOUT.ORDER.APPROVED", ProviderOrderID: "PP-1"})
		require.NoError(t, err)
		assert.False(t, f.reload(t, order.ID).IsPaid)
	})

	t.Run("unknown provider order", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-404"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, f.deduper.claimed["WH-1"], "failed deliveries are released for retry")
	})

	t.Run("duplicate delivery is skipped", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "10.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)

		require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-1")))
		first := f.reload(t, order.ID)

		require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-1")))
		assert.Equal(t, first, f.reload(t, order.ID))
		assert.True(t, f.deduper.claimed["WH-1"])
	})
}

func (f *fixture) cancel(t *testing.T, id string) {
	t.Helper()
	order := f.reload(t, id)
	order.Status = domain.OrderStatusCancelled
	require.NoError(t, f.store.UpdateOrder(context.Background(), order))
}

func TestService_CancelledDuringCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm does not capture", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "30.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)
		f.cancel(t, order.ID)

		_, err = f.svc.Confirm(ctx, "PP-1")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, 0, f.provider.captures)

		stored := f.reload(t, order.ID)
		assert.False(t, stored.IsPaid)
		assert.Nil(t, stored.PaymentResult)
		assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	})

	t.Run("webhook is acknowledged but not applied", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "30.00")
		_, err := f.svc.Initiate(ctx, buyer, order.ID)
		require.NoError(t, err)
		f.cancel(t, order.ID)

		require.NoError(t, f.svc.HandleWebhook(ctx, captureWebhook("WH-1", "PP-1")))

		stored := f.reload(t, order.ID)
		assert.False(t, stored.IsPaid)
		assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
		assert.True(t, f.deduper.claimed["WH-1"], "redelivery would be refused again")
	})

	t.Run("paid transition re-checks under lock", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, "30.00")
		f.cancel(t, order.ID)

		changed, err := f.svc.markPaid(ctx, order.ID, domain.PaymentResult{ID: "CAP-1"}, "test")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.False(t, changed)
		assert.False(t, f.reload(t, order.ID).IsPaid)
	})
}
