package payment

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paypalCaptureHook = `{
  "id": "WH-58D329510W468432D-8HN650336L201105X",
  "event_type": "PAYMENT.CAPTURE.COMPLETED",
  "create_time": "2025-03-01T12:05:00Z",
  "resource": {
    "id": "42311647XV020574X",
    "status": "COMPLETED",
    "supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
  }
}`

func TestParsePayPalWebhook(t *testing.T) {
	ev, err := parsePayPalWebhook([]byte(paypalCaptureHook))
	require.NoError(t, err)

	assert.Equal(t, "WH-58D329510W468432D-8HN650336L201105X", ev.ID)
	assert.Equal(t, "5O190127TN364715T", ev.ProviderOrderID)
	assert.Equal(t, "42311647XV020574X", ev.PaymentID)
	assert.Equal(t, "COMPLETED", ev.Status)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC), ev.Time.UTC())
	assert.True(t, ev.CaptureCompleted)
}

func TestParsePayPalWebhook_OtherEvents(t *testing.T) {
	ev, err := parsePayPalWebhook([]byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"5O190127TN364715T"}}`))
	require.NoError(t, err)
	assert.False(t, ev.CaptureCompleted)
	assert.Equal(t, "CHECKOUT.ORDER.APPROVED", ev.Type)

	_, err = parsePayPalWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestStripeParseWebhook_Unsigned(t *testing.T) {
	p := &StripeProvider{}
	body := `{
	  "id": "evt_1",
	  "object": "event",
	  "type": "checkout.session.completed",
	  "created": 1740830700,
	  "data": {"object": {
	    "id": "cs_test_1",
	    "object": "checkout.session",
	    "payment_status": "paid",
	    "payment_intent": "pi_1",
	    "customer_details": {"email": "buyer@example.com"}
	  }}
	}`

	ev, err := p.ParseWebhook(context.Background(), httptest.NewRequest("POST", "/payments/webhook", nil), []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "cs_test_1", ev.ProviderOrderID)
	assert.Equal(t, "pi_1", ev.PaymentID)
	assert.Equal(t, "buyer@example.com", ev.PayerEmail)
	assert.True(t, ev.CaptureCompleted)
	assert.Equal(t, int64(1740830700), ev.Time.Unix())
}

func TestStripeParseWebhook_UnpaidSession(t *testing.T) {
	p := &StripeProvider{}
	body := `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid"}}}`

	ev, err := p.ParseWebhook(context.Background(), httptest.NewRequest("POST", "/payments/webhook", nil), []byte(body))
	require.NoError(t, err)
	assert.False(t, ev.CaptureCompleted)
	assert.Equal(t, "cs_2", ev.ProviderOrderID)
}

func TestStripeParseWebhook_BadSignature(t *testing.T) {
	p := &StripeProvider{cfg: StripeConfig{WebhookSecret: "whsec_test"}}
	req := httptest.NewRequest("POST", "/payments/webhook", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	_, err := p.ParseWebhook(context.Background(), req, []byte(`{"id":"evt_1"}`))
	assert.Error(t, err)
}

func TestWithToken(t *testing.T) {
	assert.Equal(t, "https://api.example/payments/return?token={CHECKOUT_SESSION_ID}",
		withToken("https://api.example/payments/return"))
	assert.Equal(t, "https://api.example/payments/return?src=stripe&token={CHECKOUT_SESSION_ID}",
		withToken("https://api.example/payments/return?src=stripe"))
}

func TestMinorUnits(t *testing.T) {
	for in, want := range map[string]int64{
		"50.00": 5000,
		"19.99": 1999,
		"0.1":   10,
		"3.005": 301,
	} {
		assert.Equal(t, want, minorUnits(decimal.RequireFromString(in)), in)
	}
}
