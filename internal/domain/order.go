package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

type PaymentState string

const (
	PaymentStateUnpaid               PaymentState = "UNPAID"
	PaymentStateProviderOrderCreated PaymentState = "PROVIDER_ORDER_CREATED"
	PaymentStatePaid                 PaymentState = "PAID"
	PaymentStateCancelled            PaymentState = "CANCELLED"
)

type OrderItem struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// PaymentResult is what the payment provider reported when the order was paid.
type PaymentResult struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	UpdateTime   time.Time `json:"update_time"`
	EmailAddress string    `json:"email_address,omitempty"`
}

type Order struct {
	ID                     string          `json:"id"`
	UserID                 string          `json:"user_id"`
	Status                 OrderStatus     `json:"status"`
	Items                  []OrderItem     `json:"items"`
	ShippingAddress        ShippingAddress `json:"shipping_address"`
	PaymentMethod          string          `json:"payment_method"`
	ShippingMethod         string          `json:"shipping_method"`
	ItemsPrice             decimal.Decimal `json:"items_price"`
	ShippingPrice          decimal.Decimal `json:"shipping_price"`
	Total                  decimal.Decimal `json:"total"`
	IsPaid                 bool            `json:"is_paid"`
	PaidAt                 *time.Time      `json:"paid_at,omitempty"`
	IsShipped              bool            `json:"is_shipped"`
	ShippedAt              *time.Time      `json:"shipped_at,omitempty"`
	IsDelivered            bool            `json:"is_delivered"`
	DeliveredAt            *time.Time      `json:"delivered_at,omitempty"`
	PaymentProviderOrderID string          `json:"payment_provider_order_id,omitempty"`
	PaymentResult          *PaymentResult  `json:"payment_result,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

func (o *Order) PaymentState() PaymentState {
	switch {
	case o.IsPaid:
		return PaymentStatePaid
	case o.Status == OrderStatusCancelled:
		return PaymentStateCancelled
	case o.PaymentProviderOrderID != "":
		return PaymentStateProviderOrderCreated
	default:
		return PaymentStateUnpaid
	}
}

// MarkPaid records a captured payment. It reports false when the order was
// already paid or is cancelled, in which case nothing is changed.
func (o *Order) MarkPaid(result PaymentResult, now time.Time) bool {
	if o.IsPaid || o.Status == OrderStatusCancelled {
		return false
	}
	o.IsPaid = true
	o.PaidAt = &now
	o.PaymentResult = &result
	if o.Status == OrderStatusPending {
		o.Status = OrderStatusProcessing
	}
	o.UpdatedAt = now
	return true
}

// ItemsTotal sums quantity times snapshot price over the order lines.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
