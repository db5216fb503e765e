package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsPublished   bool            `json:"is_published"`
}
