// Package cart manages one shopping cart per owner. Every mutation rewrites
// the cart total from the stored lines in the same transaction.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// Total returns the sum of quantity times snapshot price over items.
func Total(items []domain.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
