package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

const (
	paypalCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	paypalStatusCompleted  = "COMPLETED"
)

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	APIBase      string
	// WebhookID enables signature verification of webhook deliveries.
	WebhookID string
	ReturnURL string
	CancelURL string
}

type PayPalProvider struct {
	client *paypal.Client
	cfg    PayPalConfig
}

var _ Provider = (*PayPalProvider)(nil)

func NewPayPalProvider(cfg PayPalConfig) (*PayPalProvider, error) {
	client, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("create paypal client: %w", err)
	}
	client.Client = &http.Client{Timeout: 15 * time.Second}
	return &PayPalProvider{client: client, cfg: cfg}, nil
}

func (p *PayPalProvider) Name() string { return "paypal" }

func (p *PayPalProvider) CreateCheckoutOrder(ctx context.Context, referenceID string, amount decimal.Decimal, currency string) (Checkout, error) {
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture,
		[]paypal.PurchaseUnitRequest{{
			ReferenceID: referenceID,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: currency,
				Value:    amount.StringFixed(2),
			},
		}},
		nil,
		&paypal.ApplicationContext{
			ReturnURL: p.cfg.ReturnURL,
			CancelURL: p.cfg.CancelURL,
		},
	)
	if err != nil {
		return Checkout{}, err
	}

	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return Checkout{ProviderOrderID: order.ID, ApprovalURL: link.Href}, nil
		}
	}
	return Checkout{}, fmt.Errorf("paypal order %s has no approval link", order.ID)
}

func (p *PayPalProvider) CaptureOrder(ctx context.Context, providerOrderID string) (Capture, error) {
	resp, err := p.client.CaptureOrder(ctx, providerOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return Capture{}, err
	}

	capture := Capture{
		PaymentID: resp.ID,
		Status:    resp.Status,
		Timestamp: time.Now().UTC(),
		Completed: resp.Status == paypalStatusCompleted,
	}
	if resp.Payer != nil {
		capture.PayerEmail = resp.Payer.EmailAddress
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			capture.PaymentID = unit.Payments.Captures[0].ID
			break
		}
	}
	return capture, nil
}

type paypalWebhook struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	CreateTime time.Time `json:"create_time"`
	Resource   struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (p *PayPalProvider) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (WebhookEvent, error) {
	if p.cfg.WebhookID != "" {
		verifyReq := r.Clone(ctx)
		verifyReq.Body = io.NopCloser(bytes.NewReader(body))

		resp, err := p.client.VerifyWebhookSignature(ctx, verifyReq, p.cfg.WebhookID)
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("verify paypal webhook: %w", err)
		}
		if resp.VerificationStatus != "SUCCESS" {
			return WebhookEvent{}, errors.New("paypal webhook signature rejected")
		}
	}

	return parsePayPalWebhook(body)
}

func parsePayPalWebhook(body []byte) (WebhookEvent, error) {
	var hook paypalWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode paypal webhook: %w", err)
	}

	return WebhookEvent{
		ID:               hook.ID,
		Type:             hook.EventType,
		ProviderOrderID:  hook.Resource.SupplementaryData.RelatedIDs.OrderID,
		PaymentID:        hook.Resource.ID,
		Status:           hook.Resource.Status,
		Time:             hook.CreateTime,
		CaptureCompleted: hook.EventType == paypalCaptureCompleted,
	}, nil
}
