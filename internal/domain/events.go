package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventPlaced    OrderEventType = "order.placed"
	OrderEventPaid      OrderEventType = "order.paid"
	OrderEventCancelled OrderEventType = "order.cancelled"
)

type OrderEvent struct {
	Type       OrderEventType  `json:"type"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Status     OrderStatus     `json:"status"`
	Items      []OrderItem     `json:"items"`
	Total      decimal.Decimal `json:"total"`
	PayerEmail string          `json:"payer_email,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func NewOrderEvent(t OrderEventType, o *Order, at time.Time) OrderEvent {
	ev := OrderEvent{
		Type:      t,
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Items:     o.Items,
		Total:     o.Total,
		Timestamp: at,
	}
	if o.PaymentResult != nil {
		ev.PayerEmail = o.PaymentResult.EmailAddress
	}
	return ev
}

func (e OrderEvent) EventType() string { return string(e.Type) }
