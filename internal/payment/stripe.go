package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"
)

// checkoutSessionToken is replaced by Stripe with the session id when the
// buyer is redirected back.
const checkoutSessionToken = "{CHECKOUT_SESSION_ID}"

type StripeConfig struct {
	SecretKey string
	// WebhookSecret enables Stripe-Signature verification.
	WebhookSecret string
	ReturnURL     string
	CancelURL     string
}

// StripeProvider maps checkout orders onto Stripe Checkout Sessions. The
// session id plays the role of the provider order id.
type StripeProvider struct {
	cfg StripeConfig
}

var _ Provider = (*StripeProvider)(nil)

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	stripe.Key = cfg.SecretKey
	return &StripeProvider{cfg: cfg}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateCheckoutOrder(ctx context.Context, referenceID string, amount decimal.Decimal, currency string) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(referenceID),
		SuccessURL:        stripe.String(withToken(p.cfg.ReturnURL)),
		CancelURL:         stripe.String(withToken(p.cfg.CancelURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(currency)),
				UnitAmount: stripe.Int64(minorUnits(amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + referenceID),
				},
			},
		}},
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{ProviderOrderID: s.ID, ApprovalURL: s.URL}, nil
}

// CaptureOrder reads the session back. Checkout captures on approval, so the
// session payment status is authoritative.
func (p *StripeProvider) CaptureOrder(ctx context.Context, providerOrderID string) (Capture, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(providerOrderID, params)
	if err != nil {
		return Capture{}, err
	}
	return captureFromSession(s), nil
}

func (p *StripeProvider) ParseWebhook(_ context.Context, r *http.Request, body []byte) (WebhookEvent, error) {
	var event stripe.Event
	if p.cfg.WebhookSecret != "" {
		var err error
		event, err = webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), p.cfg.WebhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("verify stripe webhook: %w", err)
		}
	} else if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode stripe webhook: %w", err)
	}

	ev := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Time: time.Unix(event.Created, 0).UTC(),
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted || event.Data == nil {
		return ev, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}
	c := captureFromSession(&s)
	ev.ProviderOrderID = s.ID
	ev.PaymentID = c.PaymentID
	ev.Status = c.Status
	ev.PayerEmail = c.PayerEmail
	ev.CaptureCompleted = c.Completed
	return ev, nil
}

func captureFromSession(s *stripe.CheckoutSession) Capture {
	c := Capture{
		PaymentID: s.ID,
		Status:    string(s.PaymentStatus),
		Timestamp: time.Now().UTC(),
		Completed: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		c.PaymentID = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil {
		c.PayerEmail = s.CustomerDetails.Email
	}
	return c
}

func withToken(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "token=" + checkoutSessionToken
}

// minorUnits converts a two-decimal currency amount to cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
