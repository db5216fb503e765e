package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart belongs to exactly one owner and is created on first access.
type Cart struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartItem keeps the product price seen when the line was first added.
type CartItem struct {
	CartID    string          `json:"-"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
