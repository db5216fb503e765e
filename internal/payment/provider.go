// Package payment reconciles orders with a hosted checkout provider. Payment
// can be confirmed by the browser returning from the provider or by a
// provider webhook, and both paths converge on one idempotent transition.
package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is a hosted checkout such as PayPal Orders or Stripe Checkout.
type Provider interface {
	Name() string
	// CreateCheckoutOrder opens a provider order for amount and returns the
	// URL the buyer must visit to approve it.
	CreateCheckoutOrder(ctx context.Context, referenceID string, amount decimal.Decimal, currency string) (Checkout, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (Capture, error)
	// ParseWebhook authenticates and decodes a webhook delivery.
	ParseWebhook(ctx context.Context, r *http.Request, body []byte) (WebhookEvent, error)
}

type Checkout struct {
	ProviderOrderID string
	ApprovalURL     string
}

type Capture struct {
	PaymentID  string
	Status     string
	PayerEmail string
	Timestamp  time.Time
	// Completed is false when the provider accepted the call but the funds
	// were not captured (declined, pending review).
	Completed bool
}

// WebhookEvent is the provider-neutral form of a webhook delivery. Only
// events with CaptureCompleted set move an order to paid.
type WebhookEvent struct {
	ID               string
	Type             string
	ProviderOrderID  string
	PaymentID        string
	Status           string
	PayerEmail       string
	Time             time.Time
	CaptureCompleted bool
}
