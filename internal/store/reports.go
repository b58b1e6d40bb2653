package store

import (
	"context"
	"fmt"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// StockSummary computes stock value and sale/restock totals
func (q queries) StockSummary(ctx context.Context) (*StockSummary, error) {
	var summary StockSummary

	err := sqlx.GetContext(ctx, q.ext, &summary.StockValue,
		"SELECT COALESCE(SUM(cost_price * quantity), 0) FROM products")
	if err != nil {
		return nil, err
	}

	totals := `SELECT COALESCE(SUM(quantity), 0) AS total_qty,
			COALESCE(SUM(quantity * %s), 0) AS total_value
		FROM transactions WHERE type = $1`

	if err := sqlx.GetContext(ctx, q.ext, &summary.TotalSales,
		fmt.Sprintf(totals, "selling_price"), models.TransactionTypeSale); err != nil {
		return nil, err
	}
	if err := sqlx.GetContext(ctx, q.ext, &summary.TotalPurchases,
		fmt.Sprintf(totals, "cost_price"), models.TransactionTypeRestock); err != nil {
		return nil, err
	}
	return &summary, nil
}

// TopSelling ranks products by units sold
func (q queries) TopSelling(ctx context.Context, limit int) ([]TopSeller, error) {
	if limit <= 0 {
		limit = 5
	}

	top := []TopSeller{}
	err := sqlx.SelectContext(ctx, q.ext, &top, `
		SELECT p.id, p.sku, p.name, p.category, p.sub_category, p.description, p.unit, p.supplier,
			p.cost_price, p.selling_price, p.quantity, p.reorder_level, p.archived,
			p.created_at, p.updated_at, s.total_qty
		FROM (
			SELECT product_id, SUM(quantity) AS total_qty
			FROM transactions WHERE type = $1
			GROUP BY product_id
		) s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.total_qty DESC, p.id
		LIMIT $2`, models.TransactionTypeSale, limit)
	return top, err
}

// LowStockProducts lists active products at or below their reorder level
func (q queries) LowStockProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 || limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}

	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+` FROM products
		WHERE archived = FALSE AND quantity <= reorder_level
		ORDER BY quantity, id LIMIT $1`, limit)
	return products, err
}
