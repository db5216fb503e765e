package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

var paidTemplate = template.Must(template.New("paid").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Thanks for your order</h2>
  <p>We received your payment for order <strong>{{.OrderID}}</strong>.</p>
  <table style="border-collapse: collapse;">
    <tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
    {{range .Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{.TotalPrice.StringFixed 2}}</td></tr>
    {{end}}
  </table>
  <p><strong>Total: {{.Total.StringFixed 2}}</strong></p>
  {{if .OrderURL}}<p><a href="{{.OrderURL}}">View your order</a></p>{{end}}
</body>
</html>`))

var cancelledTemplate = template.Must(template.New("cancelled").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Your order was cancelled</h2>
  <p>Order <strong>{{.OrderID}}</strong> was cancelled.</p>
  <p>You paid {{.Total.StringFixed 2}} for this order. Please contact our support team with your order number to arrange the refund.</p>
</body>
</html>`))

// Handler consumes order events and emails the payer on payment and on
// cancellation of a paid order. Other events are only logged.
type Handler struct {
	mailer      Mailer
	frontendURL string
	logger      *zap.Logger
}

func NewHandler(mailer Mailer, frontendURL string, logger *zap.Logger) *Handler {
	return &Handler{mailer: mailer, frontendURL: frontendURL, logger: logger}
}

type templateData struct {
	domain.OrderEvent
	OrderURL string
}

// Handle processes one order event. Undecodable payloads are logged and
// skipped since redelivery cannot fix them; mail failures are returned so the
// message is retried.
func (h *Handler) Handle(ctx context.Context, msg messaging.Message) error {
	log := logging.FromContext(ctx, h.logger).With(
		zap.String("order_id", msg.Key), zap.String("event_type", msg.EventType))

	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error("skipping undecodable order event", zap.Error(err))
		return nil
	}

	var (
		tmpl    *template.Template
		subject string
	)
	switch {
	case event.Type == domain.OrderEventPaid && event.PayerEmail != "":
		tmpl, subject = paidTemplate, "Payment received for order "+event.OrderID
	case event.Type == domain.OrderEventCancelled && event.PayerEmail != "":
		tmpl, subject = cancelledTemplate, "Order "+event.OrderID+" cancelled"
	default:
		log.Info("order event received", zap.String("status", string(event.Status)))
		return nil
	}

	data := templateData{OrderEvent: event}
	if h.frontendURL != "" {
		data.OrderURL = h.frontendURL + "/orders/" + event.OrderID
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s email: %w", event.Type, err)
	}

	if err := h.mailer.Send(ctx, Email{To: event.PayerEmail, Subject: subject, HTML: body.String()}); err != nil {
		log.Error("failed to send order email", zap.Error(err))
		return err
	}

	log.Info("order email sent", zap.String("to", event.PayerEmail))
	return nil
}
